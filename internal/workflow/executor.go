package workflow

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"orderline/internal/config"
	"orderline/internal/domain"
	"orderline/internal/events"
	"orderline/internal/repo"
)

// Executor runs every applicable product's generation for one order and
// merges the per-product results into a single Outcome.
type Executor struct {
	Repo     repo.Repo
	Clients  ClientSource
	Config   *config.Config
	Events   events.Writer
	Log      *log.Logger
	Products []ProductDefinition
}

// Outcome is the transient result of one run. It is returned to the caller
// and never persisted; only a summary event row records that the run
// happened.
type Outcome struct {
	Success     bool              `json:"success"`
	NothingToDo bool              `json:"nothing_to_do,omitempty"`
	Succeeded   []string          `json:"succeeded"`
	Failed      []string          `json:"failed"`
	Errors      map[string]string `json:"errors,omitempty"`
	Created     int               `json:"created"`
	Lists       int               `json:"lists"`
	Tasks       int               `json:"tasks"`
}

func New(r repo.Repo, clients ClientSource, cfg *config.Config, logger *log.Logger) Executor {
	return Executor{
		Repo:     r,
		Clients:  clients,
		Config:   cfg,
		Events:   events.Writer{DB: r.DB},
		Log:      logger,
		Products: Products(),
	}
}

func (x Executor) logger() *log.Logger {
	if x.Log != nil {
		return x.Log
	}
	return log.Default()
}

// Execute loads the order graph, obtains the actor's hub client, and runs
// each applicable product in isolation. A product failure is recorded and
// the loop continues; only a missing hub connection aborts the whole run.
func (x Executor) Execute(ctx context.Context, orderID, actorID string) (Outcome, error) {
	graph, err := x.Repo.LoadOrderGraph(ctx, orderID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	client, err := x.Clients.ClientFor(ctx, actorID)
	if err != nil {
		return Outcome{}, err
	}

	products := x.Products
	if products == nil {
		products = Products()
	}
	logger := x.logger().With("order_id", orderID, "order_number", graph.Order.OrderNumber)
	outcome := Outcome{
		Succeeded: []string{},
		Failed:    []string{},
		Errors:    map[string]string{},
	}
	applicable := 0
	for _, def := range products {
		matched := def.MatchingReports(graph.Reports)
		if len(matched) == 0 {
			continue
		}
		applicable++
		res, err := x.runProduct(ctx, client, def, graph, matched)
		if err != nil {
			logger.Error("product generation failed",
				"product", def.Name,
				"report_ids", reportIDs(matched),
				"error", err)
			outcome.Failed = append(outcome.Failed, def.Name)
			outcome.Errors[def.Name] = err.Error()
			continue
		}
		logger.Info("product generated",
			"product", def.Name,
			"lists", res.Lists,
			"tasks", res.Tasks)
		outcome.Succeeded = append(outcome.Succeeded, def.Name)
		outcome.Lists += res.Lists
		outcome.Tasks += res.Tasks
	}

	if applicable == 0 {
		outcome.NothingToDo = true
	}
	outcome.Created = len(outcome.Succeeded)
	outcome.Success = outcome.Created > 0
	x.appendRunEvent(ctx, orderID, actorID, outcome)
	return outcome, nil
}

// runProduct resolves the product's project and dispatches to its strategy.
// A panic below the strategy boundary surfaces as an error for that product.
func (x Executor) runProduct(ctx context.Context, client Client, def ProductDefinition, graph repo.OrderGraph, matched []domain.Report) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in %s generation: %v", def.Strategy, p)
		}
	}()
	projectID, err := ResolveProjectID(x.Config, def)
	if err != nil {
		return Result{}, err
	}
	run, err := strategyFor(def.Strategy)
	if err != nil {
		return Result{}, err
	}
	return run(ctx, client, projectID, graph.Order, matched, def)
}

func (x Executor) appendRunEvent(ctx context.Context, orderID, actorID string, outcome Outcome) {
	err := x.Events.Append(ctx, nil, "workflow.run", orderID, "order", orderID, actorID, events.EventPayload{
		"success":       outcome.Success,
		"nothing_to_do": outcome.NothingToDo,
		"succeeded":     outcome.Succeeded,
		"failed":        outcome.Failed,
		"lists":         outcome.Lists,
		"tasks":         outcome.Tasks,
	})
	if err != nil {
		x.logger().Warn("append workflow.run event failed", "order_id", orderID, "error", err)
	}
}

type strategyFunc func(context.Context, Client, string, domain.Order, []domain.Report, ProductDefinition) (Result, error)

func strategyFor(s Strategy) (strategyFunc, error) {
	switch s {
	case StrategyFlat:
		return runFlat, nil
	case StrategyGrouped:
		return runGrouped, nil
	}
	return nil, &ValidationError{Reason: fmt.Sprintf("unknown strategy %q", s)}
}

func reportIDs(reports []domain.Report) []int64 {
	ids := make([]int64, 0, len(reports))
	for _, r := range reports {
		ids = append(ids, r.ID)
	}
	return ids
}
