package app

import (
	"context"
	"errors"
	"fmt"

	"orderline/internal/domain"
	"orderline/internal/repo"
)

// ResolveOrder picks the active order for a CLI invocation. It prefers the
// override (matched by id, then by order number), falling back to the single
// order in the workspace.
func ResolveOrder(ctx context.Context, override string, r repo.Repo) (domain.Order, error) {
	if override != "" {
		o, err := r.GetOrder(ctx, override)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.Order{}, err
		}
		o, err = r.GetOrderByNumber(ctx, override)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("order %q not found", override)
		}
		return o, err
	}
	o, err := r.SingleOrder(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Order{}, fmt.Errorf("no orders in workspace; run ol order create")
	}
	return o, err
}
