package customer

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("customer: not found")

type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Lookup resolves customer identifiers. Absence is reported as ErrNotFound.
type Lookup interface {
	FindByID(ctx context.Context, id string) (*Customer, error)
}
