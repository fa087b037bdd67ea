package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrWrongItemKind    = errors.New("wrong item kind")
	ErrDuplicateCode    = errors.New("duplicate item code")
	ErrItemInUse        = errors.New("item in use")
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrConflict         = errors.New("concurrent update conflict")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
)

type ErrorKind string

const (
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindValidation        ErrorKind = "VALIDATION"
	KindInsufficientStock ErrorKind = "INSUFFICIENT_STOCK"
	KindNoRecipe          ErrorKind = "NO_RECIPE"
	KindDuplicateRequest  ErrorKind = "DUPLICATE_REQUEST"
	KindUnauthenticated   ErrorKind = "UNAUTHENTICATED"
	KindForbidden         ErrorKind = "FORBIDDEN"
	KindPersistence       ErrorKind = "PERSISTENCE"
	KindInternal          ErrorKind = "INTERNAL"
)

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NewItemNotFound(id string) error {
	return &NotFoundError{Entity: "item", ID: id}
}

// ValidationError reports a malformed or out-of-range field. Err is one of
// the sentinel errors above and is reachable through errors.Is.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func NewValidationError(field, reason string, err error) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + " " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewWrongItemKind(item Item, want ItemKind) error {
	return NewValidationError("item_id",
		fmt.Sprintf("item %s is %s, expected %s", item.Code, item.Kind, want), ErrWrongItemKind)
}

type Shortfall struct {
	ItemID    string
	ItemCode  string
	Required  decimal.Decimal
	Available decimal.Decimal
}

// InsufficientStockError lists every item that could not cover its requirement.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s (required %s, available %s)",
			s.ItemCode, s.Required.String(), s.Available.String()))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

type NoRecipeError struct {
	FinishedGoodID   string
	FinishedGoodCode string
}

func (e *NoRecipeError) Error() string {
	return fmt.Sprintf("finished good %s has no usable recipe", e.FinishedGoodCode)
}

// PersistenceError wraps a store failure and keeps its message intact.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// KindOf classifies err for presentation layers.
func KindOf(err error) ErrorKind {
	var (
		notFound     *NotFoundError
		validation   *ValidationError
		insufficient *InsufficientStockError
		noRecipe     *NoRecipeError
		persistence  *PersistenceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &insufficient):
		return KindInsufficientStock
	case errors.As(err, &noRecipe):
		return KindNoRecipe
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &notFound), errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicateRequest):
		return KindDuplicateRequest
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.As(err, &persistence), errors.Is(err, ErrConflict):
		return KindPersistence
	}
	return KindInternal
}
