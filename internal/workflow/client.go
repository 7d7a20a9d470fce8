package workflow

import "context"

// Client is the slice of the task hub the strategies need. Each call returns
// the created resource id. Retry with backoff on rate limits and credential
// refresh belong to the implementation; by the time an error reaches a
// strategy it is final.
type Client interface {
	CreateList(ctx context.Context, projectID, name, description string) (string, error)
	CreateGroup(ctx context.Context, listID, name string) (string, error)
	CreateTask(ctx context.Context, containerID, name, description string) (string, error)
}

// ClientSource yields an authenticated Client for an actor, or
// *NotConnectedError when the actor has no stored credential.
type ClientSource interface {
	ClientFor(ctx context.Context, actorID string) (Client, error)
}

// Result counts what one product's generation created.
type Result struct {
	Lists int `json:"lists"`
	Tasks int `json:"tasks"`
}
