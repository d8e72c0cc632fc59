package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/customer"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
)

type OrderRepository struct {
	db  *sql.DB
	ids id.Generator
}

func NewOrderRepository(db *sql.DB, ids id.Generator) *OrderRepository {
	if ids == nil {
		ids = id.NewUUIDGenerator()
	}
	return &OrderRepository{db: db, ids: ids}
}

// Create inserts the order and its lines inside a single transaction.
func (r *OrderRepository) Create(ctx context.Context, c *customer.Customer, lines []domain.Line) (*domain.Order, error) {
	if c == nil || c.ID == "" {
		return nil, fmt.Errorf("order repository: customer is required")
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("order repository: at least one line is required")
	}
	o := domain.New(r.ids.NewID(), c.ID, lines)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (id, customer_id) VALUES ($1, $2) RETURNING created_at`,
		o.ID, o.CustomerID,
	).Scan(&o.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for i, l := range o.Lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, position, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			o.ID, i, l.ProductID, l.Quantity, l.UnitPrice,
		); err != nil {
			return nil, fmt.Errorf("insert order_line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	o := &domain.Order{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, customer_id, created_at FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.CustomerID, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}
	o.CreatedAt = o.CreatedAt.UTC()

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price
		FROM order_lines WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("select order_lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.Line
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order_line: %w", err)
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}
