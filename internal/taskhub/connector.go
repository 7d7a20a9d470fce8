package taskhub

import (
	"context"
	"errors"
	"time"

	"orderline/internal/config"
	"orderline/internal/domain"
	"orderline/internal/repo"
	"orderline/internal/workflow"
)

// Connector builds per-actor hub clients from the stored connections table.
// It satisfies workflow.ClientSource.
type Connector struct {
	Repo   repo.Repo
	Config *config.Config
}

func (c Connector) ClientFor(ctx context.Context, actorID string) (workflow.Client, error) {
	conn, err := c.Repo.GetConnection(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, &workflow.NotConnectedError{ActorID: actorID}
	}
	if err != nil {
		return nil, err
	}
	client := New(Options{
		BaseURL:      c.Config.Hub.BaseURL,
		ClientID:     c.Config.Hub.ClientID,
		ClientSecret: c.Config.Hub.ClientSecret,
		Credential: Credential{
			AccessToken:  conn.AccessToken,
			RefreshToken: conn.RefreshToken,
		},
		OnRefresh: func(cred Credential) error {
			return c.Repo.UpsertConnection(context.Background(), domain.Connection{
				ActorID:      actorID,
				AccessToken:  cred.AccessToken,
				RefreshToken: cred.RefreshToken,
				UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
			})
		},
	})
	return client, nil
}
