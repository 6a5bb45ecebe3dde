package catalog

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"Storefront/internal/product"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
)

// PostgresSource reads the seed list from the products table:
//
//	id text primary key, name text, price numeric, quantity int, position int
type PostgresSource struct {
	db *sql.DB
}

// OpenPostgres opens a pool through the pgx stdlib driver and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := withTimeout(ctx, pingTimeout, db.PingContext); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresSource) Seed(ctx context.Context) ([]product.Product, error) {
	var out []product.Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, name, price, quantity
			FROM products
			ORDER BY position ASC, id ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]product.Product, 0, 16)
		for rows.Next() {
			var p product.Product
			if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Quantity); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
