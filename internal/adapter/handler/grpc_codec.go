package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// The posting API is served over gRPC with JSON payloads, so messages are
// plain Go structs and clients select the codec by content subtype.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type PostRequest struct {
	RequestId string `json:"request_id"`
	UserId    string `json:"user_id"`
	Kind      string `json:"kind"`
	ItemId    string `json:"item_id"`
	Quantity  string `json:"quantity"`
	Note      string `json:"note"`
}

type PostResponse struct {
	Success    bool                `json:"success"`
	Kind       string              `json:"kind,omitempty"`
	Message    string              `json:"message"`
	Shortfalls []ShortfallResponse `json:"shortfalls,omitempty"`
	Movements  []MovementResponse  `json:"movements,omitempty"`
}

type ListMovementsRequest struct {
	ItemId string `json:"item_id"`
	Kind   string `json:"kind"`
	Limit  int32  `json:"limit"`
}

type ListMovementsResponse struct {
	Movements []MovementResponse `json:"movements"`
}

type PostingServiceServer interface {
	Post(context.Context, *PostRequest) (*PostResponse, error)
	ListMovements(context.Context, *ListMovementsRequest) (*ListMovementsResponse, error)
}

const (
	postingServiceName  = "stockledger.v1.PostingService"
	postMethod          = "/" + postingServiceName + "/Post"
	listMovementsMethod = "/" + postingServiceName + "/ListMovements"
)

func postHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PostRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PostingServiceServer).Post(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: postMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PostingServiceServer).Post(ctx, req.(*PostRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listMovementsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListMovementsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PostingServiceServer).ListMovements(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listMovementsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PostingServiceServer).ListMovements(ctx, req.(*ListMovementsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var postingServiceDesc = grpc.ServiceDesc{
	ServiceName: postingServiceName,
	HandlerType: (*PostingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Post", Handler: postHandler},
		{MethodName: "ListMovements", Handler: listMovementsHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterPostingServiceServer(s grpc.ServiceRegistrar, srv PostingServiceServer) {
	s.RegisterService(&postingServiceDesc, srv)
}

type PostingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewPostingServiceClient(cc grpc.ClientConnInterface) *PostingServiceClient {
	return &PostingServiceClient{cc: cc}
}

func (c *PostingServiceClient) Post(ctx context.Context, in *PostRequest, opts ...grpc.CallOption) (*PostResponse, error) {
	out := new(PostResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, postMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PostingServiceClient) ListMovements(ctx context.Context, in *ListMovementsRequest, opts ...grpc.CallOption) (*ListMovementsResponse, error) {
	out := new(ListMovementsResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, listMovementsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
