package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/v10ss/escashop/internal/models"
	"github.com/v10ss/escashop/internal/store"
)

func (s *Store) ListCounters(ctx context.Context) ([]models.Counter, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, display_order, is_active, current_customer_id
		FROM counters
		ORDER BY display_order ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []models.Counter
	for rows.Next() {
		var (
			c       models.Counter
			current sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.DisplayOrder, &c.IsActive, &current); err != nil {
			return nil, err
		}
		if current.Valid {
			id := current.Int64
			c.CurrentCustomerID = &id
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

// CounterDisplay feeds the public waiting-area monitor: every active
// counter with the customer it is serving.
func (s *Store) CounterDisplay(ctx context.Context) ([]models.CounterDisplay, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ct.id, ct.name, ct.is_active,
			c.id, c.name, c.token_number, c.queue_status, c.priority_flags
		FROM counters ct
		LEFT JOIN customers c ON c.id = ct.current_customer_id
		WHERE ct.is_active
		ORDER BY ct.display_order ASC, ct.id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var display []models.CounterDisplay
	for rows.Next() {
		var (
			d        models.CounterDisplay
			custID   sql.NullInt64
			custName sql.NullString
			token    sql.NullInt32
			status   sql.NullString
			flagsRaw []byte
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.IsActive, &custID, &custName, &token, &status, &flagsRaw); err != nil {
			return nil, err
		}
		if custID.Valid {
			cust := models.DisplayCustomer{
				ID:          custID.Int64,
				Name:        custName.String,
				TokenNumber: int(token.Int32),
				QueueStatus: status.String,
			}
			if len(flagsRaw) > 0 {
				if err := json.Unmarshal(flagsRaw, &cust.PriorityFlags); err != nil {
					return nil, err
				}
			}
			d.CurrentCustomer = &cust
		}
		display = append(display, d)
	}
	return display, rows.Err()
}

func (s *Store) CreateCounter(ctx context.Context, name string, displayOrder int) (models.Counter, error) {
	var c models.Counter
	err := s.pool.QueryRow(ctx, `
		INSERT INTO counters (name, display_order, is_active)
		VALUES ($1, $2, TRUE)
		RETURNING id, name, display_order, is_active
	`, name, displayOrder).Scan(&c.ID, &c.Name, &c.DisplayOrder, &c.IsActive)
	return c, err
}

func (s *Store) UpdateCounter(ctx context.Context, counterID int64, name *string, isActive *bool) (models.Counter, error) {
	var (
		sets []string
		args []any
	)
	if name != nil {
		args = append(args, *name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if isActive != nil {
		args = append(args, *isActive)
		sets = append(sets, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(sets) == 0 {
		return s.getCounter(ctx, counterID)
	}

	// Deactivating a counter also releases whoever it was serving.
	if isActive != nil && !*isActive {
		sets = append(sets, "current_customer_id = NULL")
	}

	args = append(args, counterID)
	var (
		c       models.Counter
		current sql.NullInt64
	)
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE counters SET %s WHERE id = $%d
		RETURNING id, name, display_order, is_active, current_customer_id
	`, strings.Join(sets, ", "), len(args)), args...).Scan(&c.ID, &c.Name, &c.DisplayOrder, &c.IsActive, &current)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Counter{}, store.ErrCounterNotFound
	}
	if err != nil {
		return models.Counter{}, err
	}
	if current.Valid {
		id := current.Int64
		c.CurrentCustomerID = &id
	}
	return c, nil
}

func (s *Store) getCounter(ctx context.Context, counterID int64) (models.Counter, error) {
	var (
		c       models.Counter
		current sql.NullInt64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, display_order, is_active, current_customer_id
		FROM counters WHERE id = $1
	`, counterID).Scan(&c.ID, &c.Name, &c.DisplayOrder, &c.IsActive, &current)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Counter{}, store.ErrCounterNotFound
	}
	if err != nil {
		return models.Counter{}, err
	}
	if current.Valid {
		id := current.Int64
		c.CurrentCustomerID = &id
	}
	return c, nil
}
