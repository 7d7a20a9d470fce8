package workflow

import (
	"context"
	"strings"
	"testing"

	"orderline/internal/domain"
)

func federalRunsheetsDef() ProductDefinition {
	return Products()[0]
}

func TestFlatMergesReportsForSharedLease(t *testing.T) {
	lease := domain.Lease{ID: 1, LeaseNumber: "L-100", Agency: domain.AgencyFederal, PriorReportFound: true, ArchiveLink: "https://archive.example.com/L-100"}
	order := domain.Order{ID: "o1", OrderNumber: "ORD-1", OrderDate: "2025-01-15"}
	reports := []domain.Report{
		{ID: 1, Kind: domain.KindRunsheet, LegalDescription: "Sec 1: N2", Leases: []domain.Lease{lease}},
		{ID: 2, Kind: domain.KindRunsheet, LegalDescription: "Sec 2: S2", Leases: []domain.Lease{lease}},
	}

	hub := &fakeHub{}
	res, err := runFlat(context.Background(), hub, "proj-1", order, reports, federalRunsheetsDef())
	if err != nil {
		t.Fatalf("runFlat: %v", err)
	}
	if res.Lists != 1 || res.Tasks != 1 {
		t.Fatalf("got %d lists %d tasks, want 1 and 1", res.Lists, res.Tasks)
	}

	lists := hub.ofKind("list")
	if len(lists) != 1 {
		t.Fatalf("got %d lists", len(lists))
	}
	if lists[0].name != "Order ORD-1 - 20250115" {
		t.Fatalf("list name = %q", lists[0].name)
	}
	if lists[0].parent != "proj-1" {
		t.Fatalf("list created in project %q", lists[0].parent)
	}

	tasks := hub.ofKind("task")
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want one merged task", len(tasks))
	}
	task := tasks[0]
	if task.name != "L-100 - Previous Report" {
		t.Fatalf("task name = %q", task.name)
	}
	if task.parent != lists[0].parent && task.parent == "" {
		t.Fatalf("task has no parent")
	}
	for _, want := range []string{"Sec 1: N2", "Sec 2: S2", "Reports Needed", "Lease Archive"} {
		if !strings.Contains(task.desc, want) {
			t.Fatalf("task description missing %q:\n%s", want, task.desc)
		}
	}
	// first report's description comes first
	if strings.Index(task.desc, "Sec 1: N2") > strings.Index(task.desc, "Sec 2: S2") {
		t.Fatalf("report descriptions out of order:\n%s", task.desc)
	}
}

func TestFlatFiltersLeasesByAgency(t *testing.T) {
	order := domain.Order{ID: "o1", OrderNumber: "ORD-1", OrderDate: "2025-01-15"}
	reports := []domain.Report{{
		ID:   1,
		Kind: domain.KindRunsheet,
		Leases: []domain.Lease{
			{ID: 1, LeaseNumber: "FED-1", Agency: domain.AgencyFederal},
			{ID: 2, LeaseNumber: "ST-1", Agency: domain.AgencyState},
		},
	}}

	hub := &fakeHub{}
	res, err := runFlat(context.Background(), hub, "proj-1", order, reports, federalRunsheetsDef())
	if err != nil {
		t.Fatalf("runFlat: %v", err)
	}
	if res.Tasks != 1 {
		t.Fatalf("got %d tasks, want 1", res.Tasks)
	}
	tasks := hub.ofKind("task")
	if tasks[0].name != "FED-1" {
		t.Fatalf("task name = %q, state lease leaked through", tasks[0].name)
	}
}

func TestFlatNoMatchingLeasesCreatesNothing(t *testing.T) {
	order := domain.Order{ID: "o1", OrderNumber: "ORD-1", OrderDate: "2025-01-15"}
	reports := []domain.Report{{
		ID:     1,
		Kind:   domain.KindRunsheet,
		Leases: []domain.Lease{{ID: 1, LeaseNumber: "ST-1", Agency: domain.AgencyState}},
	}}

	hub := &fakeHub{}
	res, err := runFlat(context.Background(), hub, "proj-1", order, reports, federalRunsheetsDef())
	if err != nil {
		t.Fatalf("runFlat: %v", err)
	}
	if res.Lists != 0 || res.Tasks != 0 || len(hub.calls) != 0 {
		t.Fatalf("expected no hub calls, got %+v", hub.calls)
	}
}

func TestFlatPreservesLeaseOrder(t *testing.T) {
	order := domain.Order{ID: "o1", OrderNumber: "ORD-1", OrderDate: "2025-01-15"}
	reports := []domain.Report{
		{ID: 1, Kind: domain.KindRunsheet, Leases: []domain.Lease{
			{ID: 1, LeaseNumber: "L-2", Agency: domain.AgencyFederal},
			{ID: 2, LeaseNumber: "L-1", Agency: domain.AgencyFederal},
		}},
		{ID: 2, Kind: domain.KindRunsheet, Leases: []domain.Lease{
			{ID: 2, LeaseNumber: "L-1", Agency: domain.AgencyFederal},
			{ID: 3, LeaseNumber: "L-3", Agency: domain.AgencyFederal},
		}},
	}

	hub := &fakeHub{}
	if _, err := runFlat(context.Background(), hub, "proj-1", order, reports, federalRunsheetsDef()); err != nil {
		t.Fatalf("runFlat: %v", err)
	}
	var names []string
	for _, c := range hub.ofKind("task") {
		names = append(names, c.name)
	}
	want := []string{"L-2", "L-1", "L-3"}
	if len(names) != len(want) {
		t.Fatalf("task names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("task names = %v, want first-seen order %v", names, want)
		}
	}
}

func TestTruncateNameKeepsLeaseNumber(t *testing.T) {
	long := strings.Repeat("A", maxNameLength)
	l := domain.Lease{LeaseNumber: long, PriorReportFound: true}
	got := leaseTaskName(l)
	if got != long {
		t.Fatalf("expected suffix dropped and lease number kept, got %d runes", len([]rune(got)))
	}

	// a short name with the suffix is left alone
	short := domain.Lease{LeaseNumber: "L-1", PriorReportFound: true}
	if got := leaseTaskName(short); got != "L-1 - Previous Report" {
		t.Fatalf("leaseTaskName = %q", got)
	}
}

func TestTruncateNameHardLimit(t *testing.T) {
	long := strings.Repeat("B", maxNameLength+40)
	got := truncateName(long, long)
	if n := len([]rune(got)); n != maxNameLength {
		t.Fatalf("truncated to %d runes, want %d", n, maxNameLength)
	}
}
