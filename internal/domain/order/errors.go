package order

import (
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
)

var (
	ErrCustomerNotFound      = errors.New("order: customer not found")
	ErrProductNotFound       = errors.New("order: product not found")
	ErrInsufficientStock     = errors.New("order: insufficient stock")
	ErrInvalidRequest        = errors.New("order: invalid request")
	ErrPersistence           = errors.New("order: persistence failure")
	ErrPostCommitStockUpdate = errors.New("order: stock update failed after order was committed")
)

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("order: could not find product %s", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("order: insufficient stock for product %s (available %d)", e.ProductID, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// PostCommitStockUpdateError reports that the order was stored but the stock
// decrement that follows it failed. Order is durable; Updates are the absolute
// levels the failed decrement tried to set.
type PostCommitStockUpdateError struct {
	Order   *Order
	Updates []inventory.StockUpdate
	Err     error
}

func (e *PostCommitStockUpdateError) Error() string {
	return fmt.Sprintf("order: order %s committed but stock update failed: %v", e.Order.ID, e.Err)
}

func (e *PostCommitStockUpdateError) Is(target error) bool { return target == ErrPostCommitStockUpdate }

func (e *PostCommitStockUpdateError) Unwrap() error { return e.Err }

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, reason)
}

// Persistence wraps a collaborator failure without hiding the cause.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
