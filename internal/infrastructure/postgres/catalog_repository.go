package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/lib/pq"
)

type CatalogRepository struct{ db *sql.DB }

func NewCatalogRepository(db *sql.DB) *CatalogRepository { return &CatalogRepository{db: db} }

func (r *CatalogRepository) FindAllByID(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, price, stock_quantity FROM products WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Product, 0, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Price, &p.StockQuantity); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateQuantity sets the absolute stock level of every listed product in a
// single transaction. Rows are locked in id order so concurrent batches over
// overlapping products cannot deadlock.
func (r *CatalogRepository) UpdateQuantity(ctx context.Context, updates []domain.StockUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	ids := make([]string, 0, len(updates))
	for _, u := range updates {
		if err := u.Validate(); err != nil {
			return err
		}
		ids = append(ids, u.ProductID)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	locked := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan product id: %w", err)
		}
		locked[id] = struct{}{}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, u := range updates {
		if _, ok := locked[u.ProductID]; !ok {
			return domain.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET stock_quantity = $2 WHERE id = $1`, u.ProductID, u.Quantity,
		); err != nil {
			return fmt.Errorf("update product %s: %w", u.ProductID, mapCheckViolation(err))
		}
	}
	return tx.Commit()
}

// mapCheckViolation turns the stock_quantity >= 0 constraint into ErrNegativeStock.
func mapCheckViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23514" {
		return domain.ErrNegativeStock
	}
	return err
}
