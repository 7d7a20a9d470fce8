package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"orderline/internal/config"
	"orderline/internal/db"
	"orderline/internal/domain"
	"orderline/internal/migrate"
	"orderline/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func testConfig(t *testing.T, projects map[string]string) *config.Config {
	t.Helper()
	for _, key := range []string{"federal_runsheets", "state_runsheets", "federal_abstracts", "state_abstracts"} {
		t.Setenv(config.ProjectEnvVar(key), "")
	}
	cfg := config.Default()
	cfg.Hub.Projects = projects
	return cfg
}

type fakeSource struct {
	client Client
	err    error
}

func (s fakeSource) ClientFor(context.Context, string) (Client, error) {
	return s.client, s.err
}

func seedOrder(t *testing.T, r repo.Repo) domain.Order {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	order := domain.Order{ID: "o-test", OrderNumber: "ORD-1", OrderDate: "2025-01-15", CreatedAt: now}
	if err := r.InsertOrder(context.Background(), order); err != nil {
		t.Fatalf("insert order: %v", err)
	}
	return order
}

func seedReport(t *testing.T, r repo.Repo, orderID string, kind domain.ReportKind, leaseNumbers ...string) domain.Report {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339)
	rep, err := r.InsertReport(ctx, domain.Report{OrderID: orderID, Kind: kind, LegalDescription: "Sec 1: All", CreatedAt: now})
	if err != nil {
		t.Fatalf("insert report: %v", err)
	}
	for _, num := range leaseNumbers {
		l, err := r.InsertLease(ctx, domain.Lease{LeaseNumber: num, Agency: domain.AgencyFederal, CreatedAt: now})
		if err != nil {
			t.Fatalf("insert lease: %v", err)
		}
		if err := r.AttachLease(ctx, rep.ID, l.ID); err != nil {
			t.Fatalf("attach lease: %v", err)
		}
	}
	return rep
}

func TestExecuteRunsApplicableProducts(t *testing.T) {
	r := newTestRepo(t)
	order := seedOrder(t, r)
	seedReport(t, r, order.ID, domain.KindRunsheet, "L-100")
	seedReport(t, r, order.ID, domain.KindBaseAbstract, "L-200")

	cfg := testConfig(t, map[string]string{
		"federal_runsheets": "proj-run",
		"federal_abstracts": "proj-abs",
	})
	hub := &fakeHub{}
	x := New(r, fakeSource{client: hub}, cfg, nil)

	out, err := x.Execute(context.Background(), order.ID, "actor-1")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.Success || out.NothingToDo {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Created != 2 || len(out.Succeeded) != 2 || len(out.Failed) != 0 {
		t.Fatalf("outcome = %+v, want two succeeded products", out)
	}
	if out.Lists != 2 {
		t.Fatalf("lists = %d, want 2", out.Lists)
	}

	events, err := r.LatestEvents(context.Background(), 10, order.ID, "workflow.run")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d workflow.run events, want 1", len(events))
	}
	if events[0].ActorID != "actor-1" {
		t.Fatalf("event actor = %q", events[0].ActorID)
	}
}

func TestExecuteIsolatesProductFailure(t *testing.T) {
	r := newTestRepo(t)
	order := seedOrder(t, r)
	seedReport(t, r, order.ID, domain.KindRunsheet, "L-100")
	seedReport(t, r, order.ID, domain.KindBaseAbstract, "L-200")

	cfg := testConfig(t, map[string]string{
		"federal_runsheets": "proj-run",
		"federal_abstracts": "proj-abs",
	})
	hub := &fakeHub{failOn: "Abstract"}
	x := New(r, fakeSource{client: hub}, cfg, nil)

	out, err := x.Execute(context.Background(), order.ID, "actor-1")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.Success {
		t.Fatalf("a failing product must not sink the run: %+v", out)
	}
	if len(out.Succeeded) != 1 || out.Succeeded[0] != "Federal Runsheets" {
		t.Fatalf("succeeded = %v", out.Succeeded)
	}
	if len(out.Failed) != 1 || out.Failed[0] != "Federal Abstracts" {
		t.Fatalf("failed = %v", out.Failed)
	}
	if out.Errors["Federal Abstracts"] == "" {
		t.Fatalf("missing error detail: %+v", out.Errors)
	}
}

func TestExecuteMissingConnectionIsFatal(t *testing.T) {
	r := newTestRepo(t)
	order := seedOrder(t, r)
	seedReport(t, r, order.ID, domain.KindRunsheet, "L-100")

	cfg := testConfig(t, map[string]string{"federal_runsheets": "proj-run"})
	x := New(r, fakeSource{err: &NotConnectedError{ActorID: "actor-1"}}, cfg, nil)

	_, err := x.Execute(context.Background(), order.ID, "actor-1")
	var nce *NotConnectedError
	if !errors.As(err, &nce) {
		t.Fatalf("err = %v, want NotConnectedError", err)
	}
}

func TestExecuteNothingToDo(t *testing.T) {
	r := newTestRepo(t)
	order := seedOrder(t, r)

	cfg := testConfig(t, map[string]string{"federal_runsheets": "proj-run"})
	hub := &fakeHub{}
	x := New(r, fakeSource{client: hub}, cfg, nil)

	out, err := x.Execute(context.Background(), order.ID, "actor-1")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.NothingToDo || out.Success {
		t.Fatalf("outcome = %+v, want nothing-to-do", out)
	}
	if len(hub.calls) != 0 {
		t.Fatalf("hub was called: %+v", hub.calls)
	}
}

func TestExecuteMissingProjectLocator(t *testing.T) {
	r := newTestRepo(t)
	order := seedOrder(t, r)
	seedReport(t, r, order.ID, domain.KindRunsheet, "L-100")

	cfg := testConfig(t, nil)
	hub := &fakeHub{}
	x := New(r, fakeSource{client: hub}, cfg, nil)

	out, err := x.Execute(context.Background(), order.ID, "actor-1")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Success {
		t.Fatalf("outcome = %+v, want failure", out)
	}
	if len(out.Failed) != 1 || out.Failed[0] != "Federal Runsheets" {
		t.Fatalf("failed = %v", out.Failed)
	}
	msg := out.Errors["Federal Runsheets"]
	if !strings.Contains(msg, config.ProjectEnvVar("federal_runsheets")) {
		t.Fatalf("error %q does not name the env var to set", msg)
	}
}

func TestExecuteUnknownOrder(t *testing.T) {
	r := newTestRepo(t)
	cfg := testConfig(t, nil)
	x := New(r, fakeSource{client: &fakeHub{}}, cfg, nil)

	_, err := x.Execute(context.Background(), "missing", "actor-1")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
