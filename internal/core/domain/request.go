package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type RequestKind string

const (
	RequestIntakeRawMaterial    RequestKind = "INTAKE_RAW_MATERIAL"
	RequestWithdrawFinishedGood RequestKind = "WITHDRAW_FINISHED_GOOD"
	RequestAdjustment           RequestKind = "ADJUSTMENT"
	RequestProduceFinishedGood  RequestKind = "PRODUCE_FINISHED_GOOD"
)

// PostingRequest is one of IntakeRequest, WithdrawalRequest,
// AdjustmentRequest or ProductionRequest.
type PostingRequest interface {
	Kind() RequestKind
	TargetItemID() string
	Validate() error
	isPostingRequest()
}

type IntakeRequest struct {
	ItemID   string
	Quantity decimal.Decimal
	Note     string
}

type WithdrawalRequest struct {
	ItemID   string
	Quantity decimal.Decimal
	Note     string
}

// AdjustmentRequest sets the item's stock to TargetStock.
type AdjustmentRequest struct {
	ItemID      string
	TargetStock decimal.Decimal
	Note        string
}

type ProductionRequest struct {
	ItemID   string
	Quantity decimal.Decimal
	Note     string
}

func (IntakeRequest) Kind() RequestKind     { return RequestIntakeRawMaterial }
func (WithdrawalRequest) Kind() RequestKind { return RequestWithdrawFinishedGood }
func (AdjustmentRequest) Kind() RequestKind { return RequestAdjustment }
func (ProductionRequest) Kind() RequestKind { return RequestProduceFinishedGood }

func (r IntakeRequest) TargetItemID() string     { return r.ItemID }
func (r WithdrawalRequest) TargetItemID() string { return r.ItemID }
func (r AdjustmentRequest) TargetItemID() string { return r.ItemID }
func (r ProductionRequest) TargetItemID() string { return r.ItemID }

func (IntakeRequest) isPostingRequest()     {}
func (WithdrawalRequest) isPostingRequest() {}
func (AdjustmentRequest) isPostingRequest() {}
func (ProductionRequest) isPostingRequest() {}

func (r IntakeRequest) Validate() error {
	return validatePositive(r.ItemID, r.Quantity)
}

func (r WithdrawalRequest) Validate() error {
	return validatePositive(r.ItemID, r.Quantity)
}

func (r ProductionRequest) Validate() error {
	return validatePositive(r.ItemID, r.Quantity)
}

func (r AdjustmentRequest) Validate() error {
	if strings.TrimSpace(r.ItemID) == "" {
		return NewValidationError("item_id", "is required", ErrInvalidRequest)
	}
	if r.TargetStock.IsNegative() {
		return NewValidationError("target_stock", "must not be negative", ErrInvalidQuantity)
	}
	return CheckScale("target_stock", r.TargetStock)
}

func validatePositive(itemID string, quantity decimal.Decimal) error {
	if strings.TrimSpace(itemID) == "" {
		return NewValidationError("item_id", "is required", ErrInvalidRequest)
	}
	if !quantity.IsPositive() {
		return NewValidationError("quantity", "must be greater than zero", ErrInvalidQuantity)
	}
	return CheckScale("quantity", quantity)
}

// NewPostingRequest builds the request variant for kind. For adjustments
// quantity is the target absolute stock.
func NewPostingRequest(kind RequestKind, itemID string, quantity decimal.Decimal, note string) (PostingRequest, error) {
	switch kind {
	case RequestIntakeRawMaterial:
		return IntakeRequest{ItemID: itemID, Quantity: quantity, Note: note}, nil
	case RequestWithdrawFinishedGood:
		return WithdrawalRequest{ItemID: itemID, Quantity: quantity, Note: note}, nil
	case RequestAdjustment:
		return AdjustmentRequest{ItemID: itemID, TargetStock: quantity, Note: note}, nil
	case RequestProduceFinishedGood:
		return ProductionRequest{ItemID: itemID, Quantity: quantity, Note: note}, nil
	}
	return nil, NewValidationError("kind", "unknown posting kind "+string(kind), ErrInvalidRequest)
}

// PostingCommand is a posting request attributed to an acting user.
// RequestID, when set, makes the command idempotent.
type PostingCommand struct {
	RequestID string
	ActorID   string
	Request   PostingRequest
}
