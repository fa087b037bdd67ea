package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

type GRPCHandler struct {
	postingService *service.PostingService
}

func NewGRPCHandler(postingService *service.PostingService) *GRPCHandler {
	return &GRPCHandler{postingService: postingService}
}

// Post reports business rejections in the response body and reserves gRPC
// status errors for malformed calls and store failures.
func (h *GRPCHandler) Post(ctx context.Context, req *PostRequest) (*PostResponse, error) {
	if req.UserId == "" {
		return nil, status.Error(codeFor(domain.KindUnauthenticated), "user_id is required")
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid quantity %q", req.Quantity)
	}
	request, err := domain.NewPostingRequest(domain.RequestKind(strings.ToUpper(req.Kind)), req.ItemId, quantity, req.Note)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	movements, err := h.postingService.Post(ctx, domain.PostingCommand{
		RequestID: req.RequestId,
		ActorID:   req.UserId,
		Request:   request,
	})
	if err != nil {
		kind := domain.KindOf(err)
		if kind == domain.KindPersistence || kind == domain.KindInternal {
			return nil, status.Error(codeFor(kind), err.Error())
		}
		resp := &PostResponse{Success: false, Kind: string(kind), Message: err.Error()}
		var insufficient *domain.InsufficientStockError
		if errors.As(err, &insufficient) {
			resp.Shortfalls = toShortfallResponses(insufficient.Shortfalls)
		}
		return resp, nil
	}

	return &PostResponse{
		Success:   true,
		Message:   postedMessage(movements),
		Movements: toMovementResponses(movements),
	}, nil
}

func (h *GRPCHandler) ListMovements(ctx context.Context, req *ListMovementsRequest) (*ListMovementsResponse, error) {
	movements, err := h.postingService.ListMovements(ctx, domain.MovementFilter{
		ItemID: req.ItemId,
		Kind:   domain.MovementKind(strings.ToUpper(req.Kind)),
		Limit:  int(req.Limit),
	})
	if err != nil {
		return nil, status.Error(codeFor(domain.KindOf(err)), err.Error())
	}
	return &ListMovementsResponse{Movements: toMovementResponses(movements)}, nil
}

func codeFor(kind domain.ErrorKind) codes.Code {
	switch kind {
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindValidation:
		return codes.InvalidArgument
	case domain.KindInsufficientStock, domain.KindNoRecipe:
		return codes.FailedPrecondition
	case domain.KindDuplicateRequest:
		return codes.AlreadyExists
	case domain.KindUnauthenticated:
		return codes.Unauthenticated
	case domain.KindForbidden:
		return codes.PermissionDenied
	case domain.KindPersistence:
		return codes.Unavailable
	}
	return codes.Internal
}
