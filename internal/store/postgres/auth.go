package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/v10ss/escashop/internal/models"
	"github.com/v10ss/escashop/internal/store"
)

func (s *Store) Login(ctx context.Context, email, password string, ttl time.Duration) (models.User, models.Session, error) {
	var (
		user models.User
		hash string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, full_name, role, active, password_hash, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email)).Scan(&user.ID, &user.Email, &user.FullName, &user.Role, &user.Active, &hash, &user.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, models.Session{}, store.ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, models.Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return models.User{}, models.Session{}, store.ErrInvalidCredentials
	}
	if !user.Active {
		return models.User{}, models.Session{}, store.ErrAccessDenied
	}

	session := models.Session{
		SessionID: uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at) VALUES ($1, $2, $3)
	`, session.SessionID, session.UserID, session.ExpiresAt); err != nil {
		return models.User{}, models.Session{}, err
	}
	return user, session, nil
}

func (s *Store) Logout(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error) {
	var (
		session models.Session
		user    models.User
	)
	err := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, s.expires_at,
			u.id, u.email, u.full_name, u.role, u.active, u.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.session_id = $1
	`, sessionID).Scan(&session.SessionID, &session.UserID, &session.ExpiresAt,
		&user.ID, &user.Email, &user.FullName, &user.Role, &user.Active, &user.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, models.User{}, store.ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, models.User{}, err
	}
	if time.Now().UTC().After(session.ExpiresAt) {
		_, _ = s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
		return models.Session{}, models.User{}, store.ErrSessionNotFound
	}
	if !user.Active {
		return models.Session{}, models.User{}, store.ErrAccessDenied
	}
	return session, user, nil
}

func (s *Store) CreateUser(ctx context.Context, input store.CreateUserInput) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	err = s.pool.QueryRow(ctx, `
		INSERT INTO users (email, full_name, password_hash, role, active)
		VALUES (lower($1), $2, $3, $4, TRUE)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, email, full_name, role, active, created_at
	`, strings.TrimSpace(input.Email), input.FullName, string(hash), input.Role).
		Scan(&user.ID, &user.Email, &user.FullName, &user.Role, &user.Active, &user.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, store.ErrDuplicateEmail
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, full_name, role, active, created_at
		FROM users
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.Active, &u.Created); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
