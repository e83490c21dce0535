package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"fieldservice/backend/services/visit-service/internal/models"
)

// ErrCustomerNotFound indicates missing customer id.
var ErrCustomerNotFound = errors.New("customer not found")

// CustomerRepository handles persistence of customers and their maps.
type CustomerRepository struct {
	db *sql.DB
}

// NewCustomerRepository returns repository.
func NewCustomerRepository(db *sql.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// List returns all customers ordered by name.
func (r *CustomerRepository) List(ctx context.Context) ([]models.Customer, error) {
	const query = `
		SELECT id, name, address, maps, updated_at
		FROM customers
		ORDER BY name, id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]models.Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

// Get returns one customer.
func (r *CustomerRepository) Get(ctx context.Context, id string) (models.Customer, error) {
	const query = `
		SELECT id, name, address, maps, updated_at
		FROM customers
		WHERE id = $1
	`
	c, err := scanCustomer(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Customer{}, ErrCustomerNotFound
	}
	return c, err
}

// Update replaces name, address and maps of an existing customer.
func (r *CustomerRepository) Update(ctx context.Context, customer models.Customer) (models.Customer, error) {
	maps := customer.Maps
	if maps == nil {
		maps = []models.Map{}
	}
	payload, err := json.Marshal(maps)
	if err != nil {
		return models.Customer{}, fmt.Errorf("encode maps: %w", err)
	}

	const query = `
		UPDATE customers
		SET name = $2,
		    address = $3,
		    maps = $4::jsonb,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = r.db.QueryRowContext(ctx, query, customer.ID, customer.Name, customer.Address, string(payload)).
		Scan(&customer.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Customer{}, ErrCustomerNotFound
	}
	if err != nil {
		return models.Customer{}, err
	}
	customer.Maps = maps
	return customer, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (models.Customer, error) {
	var (
		c    models.Customer
		maps []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Address, &maps, &c.UpdatedAt); err != nil {
		return models.Customer{}, err
	}
	if len(maps) > 0 {
		if err := json.Unmarshal(maps, &c.Maps); err != nil {
			return models.Customer{}, fmt.Errorf("decode maps of customer %s: %w", c.ID, err)
		}
	}
	if c.Maps == nil {
		c.Maps = []models.Map{}
	}
	return c, nil
}
