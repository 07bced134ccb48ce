package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/v10ss/escashop/internal/models"
	"github.com/v10ss/escashop/internal/queue"
	"github.com/v10ss/escashop/internal/store"
)

func (s *Store) ListQueue(ctx context.Context, status string) ([]models.QueueEntry, error) {
	return s.listQueue(ctx, s.pool, status)
}

func (s *Store) listQueue(ctx context.Context, q querier, status string) ([]models.QueueEntry, error) {
	query := `SELECT ` + customerColumns + customerFrom
	var args []any
	if status != "" {
		query += ` WHERE c.queue_status = $1`
		args = append(args, status)
	} else {
		query += ` WHERE c.queue_status IN ('waiting', 'serving', 'processing')`
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []models.Customer
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
	return s.rankEntries(customers), nil
}

// rankEntries orders customers by status bucket and then by the waiting
// order, assigning positions and wait estimates to the waiting ones.
func (s *Store) rankEntries(customers []models.Customer) []models.QueueEntry {
	byID := make(map[int64]models.Customer, len(customers))
	grouped := make(map[int][]queue.Candidate)
	for _, c := range customers {
		byID[c.ID] = c
		bucket := queue.StatusBucket(c.QueueStatus)
		grouped[bucket] = append(grouped[bucket], queue.Candidate{
			CustomerID:     c.ID,
			Flags:          c.PriorityFlags,
			ManualPosition: c.ManualPosition,
			CreatedAt:      c.CreatedAt,
		})
	}

	entries := make([]models.QueueEntry, 0, len(customers))
	for bucket := 0; bucket <= 5; bucket++ {
		cands, ok := grouped[bucket]
		if !ok {
			continue
		}
		for i, cand := range queue.Rank(cands) {
			c := byID[cand.CustomerID]
			entry := models.QueueEntry{
				CustomerID:    c.ID,
				Customer:      c,
				PriorityScore: queue.Score(c.PriorityFlags),
			}
			if c.QueueStatus == models.StatusWaiting {
				entry.Position = i + 1
				entry.EstimatedWaitMins = queue.EstimatedWait(i+1, s.avgServiceMinutes)
			}
			entries = append(entries, entry)
		}
	}
	return entries
}

func (s *Store) GetPosition(ctx context.Context, customerID int64) (models.QueueEntry, error) {
	customer, err := getCustomerByID(ctx, s.pool, customerID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	entry := models.QueueEntry{
		CustomerID:    customer.ID,
		Customer:      customer,
		PriorityScore: queue.Score(customer.PriorityFlags),
	}
	if customer.QueueStatus != models.StatusWaiting {
		return entry, nil
	}

	entries, err := s.listQueue(ctx, s.pool, models.StatusWaiting)
	if err != nil {
		return models.QueueEntry{}, err
	}
	for _, e := range entries {
		if e.CustomerID == customerID {
			return e, nil
		}
	}
	return entry, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Customer, error) {
	return s.callCustomer(ctx, 0, input.CounterID, input.CalledAt)
}

func (s *Store) CallCustomer(ctx context.Context, input store.CallCustomerInput) (models.Customer, error) {
	if input.CustomerID <= 0 {
		return models.Customer{}, store.ErrCustomerNotFound
	}
	return s.callCustomer(ctx, input.CustomerID, input.CounterID, input.CalledAt)
}

// callCustomer moves one waiting customer to serving at the given
// counter. A zero customerID picks the head of the waiting order.
func (s *Store) callCustomer(ctx context.Context, customerID, counterID int64, calledAt time.Time) (models.Customer, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Customer{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var (
		isActive  bool
		currentID sql.NullInt64
	)
	err = tx.QueryRow(ctx, `
		SELECT is_active, current_customer_id FROM counters
		WHERE id = $1
		FOR UPDATE
	`, counterID).Scan(&isActive, &currentID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = store.ErrCounterNotFound
		return models.Customer{}, err
	}
	if err != nil {
		return models.Customer{}, err
	}
	if !isActive {
		err = store.ErrCounterNotFound
		return models.Customer{}, err
	}
	if currentID.Valid {
		err = store.ErrCounterOccupied
		return models.Customer{}, err
	}

	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	var (
		target   queue.Candidate
		position = 1
	)
	if customerID == 0 {
		target, err = claimNextWaiting(ctx, tx, calledAt)
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrNoCustomerWaiting
			return models.Customer{}, err
		}
		if err != nil {
			return models.Customer{}, err
		}
	} else {
		var (
			flagsRaw []byte
			manual   sql.NullInt32
			status   string
		)
		err = tx.QueryRow(ctx, `
			SELECT priority_flags, manual_position, created_at, queue_status FROM customers
			WHERE id = $1
			FOR UPDATE
		`, customerID).Scan(&flagsRaw, &manual, &target.CreatedAt, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrCustomerNotFound
			return models.Customer{}, err
		}
		if err != nil {
			return models.Customer{}, err
		}
		if status != models.StatusWaiting {
			err = store.ErrInvalidTransition
			return models.Customer{}, err
		}
		target.CustomerID = customerID
		if manual.Valid {
			pos := int(manual.Int32)
			target.ManualPosition = &pos
		}
		if len(flagsRaw) > 0 {
			if err = json.Unmarshal(flagsRaw, &target.Flags); err != nil {
				return models.Customer{}, err
			}
		}

		// Snapshot the waiting order for the event record only; no locks
		// are taken beyond the target row.
		var rows pgx.Rows
		rows, err = tx.Query(ctx, `
			SELECT id, priority_flags, manual_position, created_at
			FROM customers
			WHERE queue_status = 'waiting'
		`)
		if err != nil {
			return models.Customer{}, err
		}
		var cands []queue.Candidate
		cands, err = scanCandidates(rows)
		if err != nil {
			return models.Customer{}, err
		}
		if p := queue.Position(cands, customerID); p > 0 {
			position = p
		}

		var tag pgconn.CommandTag
		tag, err = tx.Exec(ctx, `
			UPDATE customers
			SET queue_status = 'serving', manual_position = NULL, called_at = $2, updated_at = $2
			WHERE id = $1 AND queue_status = 'waiting'
		`, customerID, calledAt)
		if err != nil {
			return models.Customer{}, err
		}
		if tag.RowsAffected() == 0 {
			err = store.ErrConflict
			return models.Customer{}, err
		}
	}

	if _, err = tx.Exec(ctx, `UPDATE counters SET current_customer_id = $1 WHERE id = $2`, target.CustomerID, counterID); err != nil {
		return models.Customer{}, err
	}

	wait := minutesBetween(target.CreatedAt, calledAt)
	if err = insertQueueEvent(ctx, tx, queueEventInput{
		CustomerID:    target.CustomerID,
		EventType:     store.EventCalled,
		FromStatus:    models.StatusWaiting,
		ToStatus:      models.StatusServing,
		CounterID:     &counterID,
		QueuePosition: &position,
		WaitMinutes:   &wait,
		IsPriority:    target.Flags.Any(),
		CreatedAt:     calledAt,
	}); err != nil {
		return models.Customer{}, err
	}

	customer, err := getCustomerByID(ctx, tx, target.CustomerID)
	if err != nil {
		return models.Customer{}, err
	}

	if err = insertOutboxEvent(ctx, tx, store.EventQueueStatusChanged, map[string]any{
		"customer":    customer,
		"from_status": models.StatusWaiting,
		"to_status":   models.StatusServing,
		"counter_id":  counterID,
	}); err != nil {
		return models.Customer{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Customer{}, err
	}
	return customer, nil
}

// claimNextWaiting claims exactly the head of the waiting order. The
// single-row FOR UPDATE SKIP LOCKED claim lets concurrent calls from
// different counters each take a distinct customer instead of blocking
// or seeing an empty queue. The ORDER BY mirrors queue.Less: manual
// pins first, then priority tier, then arrival, then id. Returns
// pgx.ErrNoRows when nothing is claimable.
func claimNextWaiting(ctx context.Context, tx pgx.Tx, calledAt time.Time) (queue.Candidate, error) {
	var (
		cand     queue.Candidate
		flagsRaw []byte
	)
	err := tx.QueryRow(ctx, `
		WITH next_customer AS (
			SELECT id
			FROM customers
			WHERE queue_status = 'waiting'
			ORDER BY
				manual_position ASC NULLS LAST,
				CASE
					WHEN (priority_flags->>'senior_citizen')::boolean THEN 1000
					WHEN (priority_flags->>'pwd')::boolean THEN 900
					WHEN (priority_flags->>'pregnant')::boolean THEN 800
					ELSE 0
				END DESC,
				created_at ASC,
				id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE customers
		SET queue_status = 'serving', manual_position = NULL, called_at = $1, updated_at = $1
		FROM next_customer
		WHERE customers.id = next_customer.id
		RETURNING customers.id, customers.priority_flags, customers.created_at
	`, calledAt).Scan(&cand.CustomerID, &flagsRaw, &cand.CreatedAt)
	if err != nil {
		return queue.Candidate{}, err
	}
	if len(flagsRaw) > 0 {
		if err := json.Unmarshal(flagsRaw, &cand.Flags); err != nil {
			return queue.Candidate{}, err
		}
	}
	return cand, nil
}

func scanCandidates(rows pgx.Rows) ([]queue.Candidate, error) {
	defer rows.Close()
	var cands []queue.Candidate
	for rows.Next() {
		var (
			cand     queue.Candidate
			flagsRaw []byte
			manual   sql.NullInt32
		)
		if err := rows.Scan(&cand.CustomerID, &flagsRaw, &manual, &cand.CreatedAt); err != nil {
			return nil, err
		}
		if manual.Valid {
			pos := int(manual.Int32)
			cand.ManualPosition = &pos
		}
		if len(flagsRaw) > 0 {
			if err := json.Unmarshal(flagsRaw, &cand.Flags); err != nil {
				return nil, err
			}
		}
		cands = append(cands, cand)
	}
	return cands, rows.Err()
}

func (s *Store) ChangeStatus(ctx context.Context, input store.ChangeStatusInput) (models.Customer, error) {
	if !models.ValidQueueStatus(input.ToStatus) {
		return models.Customer{}, store.ErrInvalidTransition
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Customer{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var (
		fromStatus string
		calledAt   sql.NullTime
		flagsRaw   []byte
	)
	err = tx.QueryRow(ctx, `
		SELECT queue_status, called_at, priority_flags FROM customers
		WHERE id = $1
		FOR UPDATE
	`, input.CustomerID).Scan(&fromStatus, &calledAt, &flagsRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		err = store.ErrCustomerNotFound
		return models.Customer{}, err
	}
	if err != nil {
		return models.Customer{}, err
	}
	if !store.ValidTransition(fromStatus, input.ToStatus) {
		err = store.ErrInvalidTransition
		return models.Customer{}, err
	}
	var flags models.PriorityFlags
	if len(flagsRaw) > 0 {
		if err = json.Unmarshal(flagsRaw, &flags); err != nil {
			return models.Customer{}, err
		}
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	tag, err := tx.Exec(ctx, `
		UPDATE customers
		SET queue_status = $2, updated_at = $3
		WHERE id = $1 AND queue_status = $4
	`, input.CustomerID, input.ToStatus, occurredAt, fromStatus)
	if err != nil {
		return models.Customer{}, err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrConflict
		return models.Customer{}, err
	}

	event := queueEventInput{
		CustomerID: input.CustomerID,
		FromStatus: fromStatus,
		ToStatus:   input.ToStatus,
		CounterID:  input.CounterID,
		IsPriority: flags.Any(),
		CreatedAt:  occurredAt,
	}
	switch input.ToStatus {
	case models.StatusProcessing:
		event.EventType = store.EventProcessing
	case models.StatusCompleted:
		event.EventType = store.EventServed
		if calledAt.Valid {
			mins := minutesBetween(calledAt.Time, occurredAt)
			event.ServiceMinutes = &mins
		}
	case models.StatusCancelled:
		event.EventType = store.EventCancelled
	default:
		event.EventType = store.EventCalled
	}

	// Leaving the serving area frees whichever counter held the customer.
	if input.ToStatus == models.StatusCompleted || input.ToStatus == models.StatusCancelled {
		if _, err = tx.Exec(ctx, `UPDATE counters SET current_customer_id = NULL WHERE current_customer_id = $1`, input.CustomerID); err != nil {
			return models.Customer{}, err
		}
	}

	if err = insertQueueEvent(ctx, tx, event); err != nil {
		return models.Customer{}, err
	}

	customer, err := getCustomerByID(ctx, tx, input.CustomerID)
	if err != nil {
		return models.Customer{}, err
	}

	if err = insertOutboxEvent(ctx, tx, store.EventQueueStatusChanged, map[string]any{
		"customer":    customer,
		"from_status": fromStatus,
		"to_status":   input.ToStatus,
		"counter_id":  input.CounterID,
		"reason":      input.Reason,
	}); err != nil {
		return models.Customer{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Customer{}, err
	}
	return customer, nil
}

func (s *Store) ReorderQueue(ctx context.Context, items []store.ReorderItem, userID int64) ([]models.QueueEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, item := range items {
		var tag pgconn.CommandTag
		tag, err = tx.Exec(ctx, `
			UPDATE customers SET manual_position = $2, updated_at = now()
			WHERE id = $1 AND queue_status = 'waiting'
		`, item.CustomerID, item.Position)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			var status string
			lookupErr := tx.QueryRow(ctx, `SELECT queue_status FROM customers WHERE id = $1`, item.CustomerID).Scan(&status)
			if errors.Is(lookupErr, pgx.ErrNoRows) {
				err = store.ErrCustomerNotFound
			} else if lookupErr != nil {
				err = lookupErr
			} else {
				err = store.ErrInvalidTransition
			}
			return nil, err
		}
	}

	entries, err := s.listQueue(ctx, tx, models.StatusWaiting)
	if err != nil {
		return nil, err
	}

	if err = insertOutboxEvent(ctx, tx, store.EventQueueReordered, map[string]any{
		"queue":   entries,
		"user_id": userID,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) ResetQueue(ctx context.Context, input store.ResetQueueInput) (store.ResetResult, error) {
	toStatus := models.StatusCancelled
	eventType := store.EventReset
	if input.Policy == store.ResetPolicyArchive {
		toStatus = models.StatusCompleted
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.ResetResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	resetAt := input.OccursAt
	if resetAt.IsZero() {
		resetAt = time.Now().UTC()
	}

	rows, err := tx.Query(ctx, `
		SELECT id, queue_status, priority_flags FROM customers
		WHERE queue_status IN ('waiting', 'serving', 'processing')
		FOR UPDATE
	`)
	if err != nil {
		return store.ResetResult{}, err
	}
	type active struct {
		id     int64
		status string
		flags  models.PriorityFlags
	}
	var actives []active
	for rows.Next() {
		var (
			a        active
			flagsRaw []byte
		)
		if err = rows.Scan(&a.id, &a.status, &flagsRaw); err != nil {
			rows.Close()
			return store.ResetResult{}, err
		}
		if len(flagsRaw) > 0 {
			if err = json.Unmarshal(flagsRaw, &a.flags); err != nil {
				rows.Close()
				return store.ResetResult{}, err
			}
		}
		actives = append(actives, a)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return store.ResetResult{}, err
	}

	for _, a := range actives {
		if _, err = tx.Exec(ctx, `
			UPDATE customers SET queue_status = $2, manual_position = NULL, updated_at = $3
			WHERE id = $1
		`, a.id, toStatus, resetAt); err != nil {
			return store.ResetResult{}, err
		}
		if err = insertQueueEvent(ctx, tx, queueEventInput{
			CustomerID: a.id,
			EventType:  eventType,
			FromStatus: a.status,
			ToStatus:   toStatus,
			IsPriority: a.flags.Any(),
			CreatedAt:  resetAt,
		}); err != nil {
			return store.ResetResult{}, err
		}
	}

	if _, err = tx.Exec(ctx, `UPDATE counters SET current_customer_id = NULL WHERE current_customer_id IS NOT NULL`); err != nil {
		return store.ResetResult{}, err
	}

	result := store.ResetResult{Affected: len(actives), Policy: input.Policy, ResetAt: resetAt}
	if err = insertOutboxEvent(ctx, tx, store.EventQueueReset, map[string]any{
		"affected": result.Affected,
		"policy":   input.Policy,
		"admin_id": input.AdminID,
		"reason":   input.Reason,
		"reset_at": resetAt,
	}); err != nil {
		return store.ResetResult{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return store.ResetResult{}, err
	}
	return result, nil
}

func (s *Store) QueueStatistics(ctx context.Context) (models.QueueStatistics, error) {
	var stats models.QueueStatistics
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE queue_status = 'waiting'),
			COUNT(*) FILTER (WHERE queue_status = 'serving'),
			COUNT(*) FILTER (WHERE queue_status = 'processing'),
			COUNT(*) FILTER (WHERE queue_status = 'completed'),
			COUNT(*) FILTER (WHERE queue_status = 'cancelled')
		FROM customers
		WHERE created_at::date = CURRENT_DATE
	`).Scan(&stats.Total, &stats.Waiting, &stats.Serving, &stats.Processing, &stats.Completed, &stats.Cancelled)
	if err != nil {
		return models.QueueStatistics{}, err
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(wait_time_minutes), 0)
		FROM queue_events
		WHERE event_type = 'called' AND created_at::date = CURRENT_DATE
	`).Scan(&stats.AvgWaitMinutes)
	if err != nil {
		return models.QueueStatistics{}, err
	}
	return stats, nil
}

func (s *Store) ListQueueEvents(ctx context.Context, customerID int64) ([]store.QueueEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, customer_id, seq, event_type, COALESCE(from_status, ''), COALESCE(to_status, ''),
			counter_id, queue_position, wait_time_minutes, service_time_minutes, is_priority,
			created_at, prev_hash, hash
		FROM queue_events
		WHERE customer_id = $1
		ORDER BY seq ASC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.QueueEvent
	for rows.Next() {
		var (
			ev       store.QueueEvent
			counter  sql.NullInt64
			position sql.NullInt32
			wait     sql.NullFloat64
			service  sql.NullFloat64
		)
		if err := rows.Scan(&ev.ID, &ev.CustomerID, &ev.Seq, &ev.EventType, &ev.FromStatus, &ev.ToStatus,
			&counter, &position, &wait, &service, &ev.IsPriority, &ev.CreatedAt, &ev.PrevHash, &ev.Hash); err != nil {
			return nil, err
		}
		if counter.Valid {
			id := counter.Int64
			ev.CounterID = &id
		}
		if position.Valid {
			pos := int(position.Int32)
			ev.QueuePosition = &pos
		}
		if wait.Valid {
			v := wait.Float64
			ev.WaitMinutes = &v
		}
		if service.Valid {
			v := service.Float64
			ev.ServiceMinutes = &v
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
