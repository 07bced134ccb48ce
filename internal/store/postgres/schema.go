package postgres

import "context"

// EnsureSchema creates the tables and indexes the store expects. Safe to
// run on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id),
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS counters (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	display_order INT NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	current_customer_id BIGINT
);

CREATE TABLE IF NOT EXISTS customers (
	id BIGSERIAL PRIMARY KEY,
	or_number TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	contact_number TEXT NOT NULL,
	email TEXT,
	age INT NOT NULL,
	address TEXT,
	occupation TEXT,
	distribution_info TEXT,
	sales_agent_id BIGINT REFERENCES users(id),
	doctor_assigned TEXT,
	prescription JSONB NOT NULL DEFAULT '{}'::jsonb,
	grade_type TEXT,
	lens_type TEXT,
	frame_code TEXT,
	payment_mode TEXT NOT NULL,
	payment_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
	remarks TEXT,
	priority_flags JSONB NOT NULL DEFAULT '{}'::jsonb,
	queue_status TEXT NOT NULL DEFAULT 'waiting',
	token_number INT NOT NULL,
	manual_position INT,
	called_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_customers_queue_status ON customers (queue_status);
CREATE INDEX IF NOT EXISTS idx_customers_created_at ON customers (created_at);

CREATE TABLE IF NOT EXISTS daily_token_counters (
	day DATE PRIMARY KEY,
	next_number INT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id BIGSERIAL PRIMARY KEY,
	customer_id BIGINT NOT NULL REFERENCES customers(id),
	or_number TEXT NOT NULL UNIQUE,
	amount NUMERIC(12,2) NOT NULL,
	payment_mode TEXT NOT NULL,
	sales_agent_id BIGINT REFERENCES users(id),
	cashier_id BIGINT REFERENCES users(id),
	paid_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
	balance_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
	payment_status TEXT NOT NULL DEFAULT 'unpaid',
	transaction_date TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions (transaction_date);
CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions (customer_id);

CREATE TABLE IF NOT EXISTS settlements (
	id BIGSERIAL PRIMARY KEY,
	transaction_id BIGINT NOT NULL REFERENCES transactions(id),
	amount NUMERIC(12,2) NOT NULL,
	payment_mode TEXT NOT NULL,
	cashier_id BIGINT REFERENCES users(id),
	notes TEXT,
	paid_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_settlements_transaction ON settlements (transaction_id);

CREATE TABLE IF NOT EXISTS queue_events (
	id BIGSERIAL PRIMARY KEY,
	customer_id BIGINT NOT NULL REFERENCES customers(id),
	seq INT NOT NULL,
	event_type TEXT NOT NULL,
	from_status TEXT,
	to_status TEXT,
	counter_id BIGINT,
	queue_position INT,
	wait_time_minutes DOUBLE PRECISION,
	service_time_minutes DOUBLE PRECISION,
	is_priority BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	prev_hash TEXT NOT NULL DEFAULT '',
	hash TEXT NOT NULL,
	UNIQUE (customer_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_queue_events_created_at ON queue_events (created_at);

CREATE TABLE IF NOT EXISTS daily_reports (
	day DATE PRIMARY KEY,
	total_cash NUMERIC(12,2) NOT NULL DEFAULT 0,
	total_gcash NUMERIC(12,2) NOT NULL DEFAULT 0,
	total_maya NUMERIC(12,2) NOT NULL DEFAULT 0,
	total_credit_card NUMERIC(12,2) NOT NULL DEFAULT 0,
	total_bank_transfer NUMERIC(12,2) NOT NULL DEFAULT 0,
	petty_cash_start NUMERIC(12,2) NOT NULL DEFAULT 0,
	petty_cash_end NUMERIC(12,2) NOT NULL DEFAULT 0,
	expenses JSONB NOT NULL DEFAULT '[]'::jsonb,
	funds JSONB NOT NULL DEFAULT '[]'::jsonb,
	cash_turnover NUMERIC(12,2) NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outbox_events (
	event_id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_outbox_created_event ON outbox_events (created_at, event_id);
`
