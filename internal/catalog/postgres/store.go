// Package postgres implements catalog.Store on top of a pgx connection pool.
//
// Expected table:
//
//	CREATE TABLE products (
//	    id          BIGSERIAL PRIMARY KEY,
//	    name        TEXT           NOT NULL,
//	    price       NUMERIC(12, 2) NOT NULL DEFAULT 0 CHECK (price >= 0),
//	    description TEXT           NOT NULL DEFAULT '',
//	    color       TEXT,
//	    stock       INT            NOT NULL DEFAULT 0 CHECK (stock >= 0)
//	);
package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/PayeTonKawa2025/products-api/internal/catalog"
	"github.com/PayeTonKawa2025/products-api/internal/platform/observability"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectColumns = `SELECT id, name, price::text, description, color, stock FROM products`

// Store is a catalog.Store backed by Postgres.
type Store struct {
	repository
	pool   *pgxpool.Pool
	logger observability.Logger
}

// NewStore creates a Store using the given pool.
func NewStore(pool *pgxpool.Pool, logger observability.Logger) *Store {
	return &Store{
		repository: repository{q: pool},
		pool:       pool,
		logger:     logger,
	}
}

// Lock opens a transaction, takes row locks on ids in ascending order with
// SELECT ... FOR UPDATE and runs fn against the transaction. The transaction
// commits only when fn returns nil.
func (s *Store) Lock(ctx context.Context, ids []int64, fn func(ctx context.Context, repo catalog.Repository) error) error {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `SELECT id FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ordered)
	if err != nil {
		return fmt.Errorf("failed to lock products: %w", err)
	}
	locked := 0
	for rows.Next() {
		locked++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to lock products: %w", err)
	}
	s.logger.Debug("Locked product rows", zap.Int64s("product_ids", ordered), zap.Int("locked", locked))

	if err := fn(ctx, repository{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type repository struct {
	q querier
}

func (r repository) FindByID(ctx context.Context, id int64) (catalog.Product, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	if err != nil {
		return catalog.Product{}, fmt.Errorf("failed to query product %d: %w", id, err)
	}
	return p, nil
}

func (r repository) FindAll(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.q.Query(ctx, selectColumns+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Save inserts a product when ID is zero and upserts it otherwise. Inside Lock
// each write runs in its own savepoint, so a rejected row leaves the
// transaction usable for the remaining writes.
func (r repository) Save(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if err := p.Validate(); err != nil {
		return catalog.Product{}, err
	}

	tx, ok := r.q.(pgx.Tx)
	if !ok {
		return save(ctx, r.q, p)
	}
	sp, err := tx.Begin(ctx)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("failed to open savepoint: %w", err)
	}
	saved, err := save(ctx, sp, p)
	if err != nil {
		_ = sp.Rollback(ctx)
		return catalog.Product{}, err
	}
	if err := sp.Commit(ctx); err != nil {
		return catalog.Product{}, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return saved, nil
}

func save(ctx context.Context, q querier, p catalog.Product) (catalog.Product, error) {
	var err error
	if p.ID == 0 {
		err = q.QueryRow(ctx,
			`INSERT INTO products (name, price, description, color, stock)
			 VALUES ($1, $2::numeric, $3, $4, $5) RETURNING id`,
			p.Name, p.Price.String(), p.Description, p.Color, p.Stock,
		).Scan(&p.ID)
	} else {
		_, err = q.Exec(ctx,
			`INSERT INTO products (id, name, price, description, color, stock)
			 VALUES ($1, $2, $3::numeric, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE
			 SET name = $2, price = $3::numeric, description = $4, color = $5, stock = $6`,
			p.ID, p.Name, p.Price.String(), p.Description, p.Color, p.Stock,
		)
	}
	if err != nil {
		return catalog.Product{}, fmt.Errorf("failed to save product %d: %w", p.ID, err)
	}
	return p, nil
}

func (r repository) DeleteByID(ctx context.Context, id int64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete product %d: %w", id, err)
	}
	return nil
}

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var (
		p     catalog.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.Description, &p.Color, &p.Stock); err != nil {
		return catalog.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("invalid price %q: %w", price, err)
	}
	p.Price = d
	return p, nil
}
