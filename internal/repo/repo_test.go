package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"orderline/internal/db"
	"orderline/internal/domain"
	"orderline/internal/migrate"
)

func newRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn}
}

func ts() string { return time.Now().UTC().Format(time.RFC3339) }

func TestOrderRoundTrip(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	o := domain.Order{ID: "o1", OrderNumber: "ORD-1", OrderDate: "2025-01-15", DeliveryLink: "https://x/y", CreatedAt: ts()}
	if err := r.InsertOrder(ctx, o); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetOrder(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OrderNumber != "ORD-1" || got.DeliveryLink != "https://x/y" {
		t.Fatalf("got %+v", got)
	}

	byNum, err := r.GetOrderByNumber(ctx, "ORD-1")
	if err != nil || byNum.ID != "o1" {
		t.Fatalf("by number: %+v %v", byNum, err)
	}

	if _, err := r.GetOrder(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSingleOrder(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	if _, err := r.SingleOrder(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty workspace err = %v", err)
	}

	if err := r.InsertOrder(ctx, domain.Order{ID: "o1", OrderNumber: "A", OrderDate: "2025-01-01", CreatedAt: ts()}); err != nil {
		t.Fatal(err)
	}
	o, err := r.SingleOrder(ctx)
	if err != nil || o.ID != "o1" {
		t.Fatalf("single: %+v %v", o, err)
	}

	if err := r.InsertOrder(ctx, domain.Order{ID: "o2", OrderNumber: "B", OrderDate: "2025-01-02", CreatedAt: ts()}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.SingleOrder(ctx); err == nil {
		t.Fatal("expected disambiguation error with two orders")
	}
}

func TestLoadOrderGraphAssociationOrder(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	if err := r.InsertOrder(ctx, domain.Order{ID: "o1", OrderNumber: "ORD-1", OrderDate: "2025-01-15", CreatedAt: ts()}); err != nil {
		t.Fatal(err)
	}
	rep, err := r.InsertReport(ctx, domain.Report{OrderID: "o1", Kind: domain.KindRunsheet, LegalDescription: "Sec 1", CreatedAt: ts()})
	if err != nil {
		t.Fatal(err)
	}
	for _, num := range []string{"L-3", "L-1", "L-2"} {
		l, err := r.InsertLease(ctx, domain.Lease{LeaseNumber: num, Agency: domain.AgencyFederal, CreatedAt: ts()})
		if err != nil {
			t.Fatal(err)
		}
		if err := r.AttachLease(ctx, rep.ID, l.ID); err != nil {
			t.Fatal(err)
		}
	}

	g, err := r.LoadOrderGraph(ctx, "o1")
	if err != nil {
		t.Fatalf("load graph: %v", err)
	}
	if len(g.Reports) != 1 {
		t.Fatalf("reports = %d", len(g.Reports))
	}
	leases := g.Reports[0].Leases
	if len(leases) != 3 {
		t.Fatalf("leases = %d", len(leases))
	}
	// attachment order, not lease number order
	want := []string{"L-3", "L-1", "L-2"}
	for i, num := range want {
		if leases[i].LeaseNumber != num {
			t.Fatalf("lease order = %v, want %v", leaseNums(leases), want)
		}
	}
}

func leaseNums(leases []domain.Lease) []string {
	out := make([]string, 0, len(leases))
	for _, l := range leases {
		out = append(out, l.LeaseNumber)
	}
	return out
}

func TestSharedLeaseAcrossReports(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	if err := r.InsertOrder(ctx, domain.Order{ID: "o1", OrderNumber: "ORD-1", OrderDate: "2025-01-15", CreatedAt: ts()}); err != nil {
		t.Fatal(err)
	}
	l, err := r.InsertLease(ctx, domain.Lease{LeaseNumber: "L-100", Agency: domain.AgencyFederal, CreatedAt: ts()})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		rep, err := r.InsertReport(ctx, domain.Report{OrderID: "o1", Kind: domain.KindRunsheet, LegalDescription: "Sec", CreatedAt: ts()})
		if err != nil {
			t.Fatal(err)
		}
		if err := r.AttachLease(ctx, rep.ID, l.ID); err != nil {
			t.Fatal(err)
		}
	}

	g, err := r.LoadOrderGraph(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Reports) != 2 {
		t.Fatalf("reports = %d", len(g.Reports))
	}
	for _, rep := range g.Reports {
		if len(rep.Leases) != 1 || rep.Leases[0].ID != l.ID {
			t.Fatalf("report %d leases = %+v", rep.ID, rep.Leases)
		}
	}
}

func TestConnections(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	if _, err := r.GetConnection(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := r.UpsertConnection(ctx, domain.Connection{ActorID: "alice", AccessToken: "t1"}); err != nil {
		t.Fatal(err)
	}
	if err := r.UpsertConnection(ctx, domain.Connection{ActorID: "alice", AccessToken: "t2", RefreshToken: "r2"}); err != nil {
		t.Fatal(err)
	}
	c, err := r.GetConnection(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if c.AccessToken != "t2" || c.RefreshToken != "r2" {
		t.Fatalf("connection = %+v, want upserted tokens", c)
	}
	if err := r.DeleteConnection(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetConnection(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete err = %v", err)
	}
}

func TestAPIKeys(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	hash := HashAPIKey("secret")
	if err := r.InsertAPIKey(ctx, domain.APIKey{ID: "k1", ActorID: "alice", KeyHash: hash}); err != nil {
		t.Fatal(err)
	}
	key, err := r.GetAPIKeyByHash(ctx, hash)
	if err != nil || key.ActorID != "alice" {
		t.Fatalf("get by hash: %+v %v", key, err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, HashAPIKey("wrong")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}
