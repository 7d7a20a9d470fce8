package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"orderline/internal/domain"
)

// UpsertConnection stores or replaces an actor's task-hub credential.
func (r Repo) UpsertConnection(ctx context.Context, c domain.Connection) error {
	if c.ActorID == "" {
		return errors.New("actor_id required")
	}
	if c.AccessToken == "" {
		return errors.New("access_token required")
	}
	if c.UpdatedAt == "" {
		c.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO connections(actor_id,access_token,refresh_token,updated_at) VALUES (?,?,?,?)
ON CONFLICT(actor_id) DO UPDATE SET access_token=excluded.access_token, refresh_token=excluded.refresh_token, updated_at=excluded.updated_at`,
		c.ActorID, c.AccessToken, nullable(c.RefreshToken), c.UpdatedAt)
	return err
}

// GetConnection returns the task-hub credential for an actor.
func (r Repo) GetConnection(ctx context.Context, actorID string) (domain.Connection, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT actor_id,access_token,COALESCE(refresh_token,''),updated_at FROM connections WHERE actor_id=?`, actorID)
	var c domain.Connection
	err := row.Scan(&c.ActorID, &c.AccessToken, &c.RefreshToken, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Connection{}, ErrNotFound
	}
	return c, err
}

// DeleteConnection removes an actor's credential.
func (r Repo) DeleteConnection(ctx context.Context, actorID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM connections WHERE actor_id=?`, actorID)
	return err
}
