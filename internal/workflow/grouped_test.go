package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"orderline/internal/domain"
)

func federalAbstractsDef() ProductDefinition {
	return Products()[2]
}

func catalogStepCounts() (fixed, templated int) {
	for _, sec := range phaseCatalog {
		for _, step := range sec.Steps {
			if strings.Contains(step, leaseToken) {
				templated++
			} else {
				fixed++
			}
		}
	}
	return fixed, templated
}

func TestGroupedBuildsSectionedList(t *testing.T) {
	order := domain.Order{ID: "o1", OrderNumber: "ORD-1", OrderDate: "2025-02-01"}
	reports := []domain.Report{{
		ID:               42,
		Kind:             domain.KindBaseAbstract,
		LegalDescription: "Sec 7: All",
		Leases: []domain.Lease{
			{ID: 1, LeaseNumber: "L-1", Agency: domain.AgencyFederal},
			{ID: 2, LeaseNumber: "L-2", Agency: domain.AgencyFederal},
		},
	}}

	hub := &fakeHub{}
	res, err := runGrouped(context.Background(), hub, "proj-abs", order, reports, federalAbstractsDef())
	if err != nil {
		t.Fatalf("runGrouped: %v", err)
	}

	lists := hub.ofKind("list")
	if len(lists) != 1 {
		t.Fatalf("got %d lists", len(lists))
	}
	if lists[0].name != "Order ORD-1- Base Abstract 42 - 20250201" {
		t.Fatalf("list name = %q", lists[0].name)
	}
	for _, want := range []string{"Base Abstract", "L-1, L-2", "Sec 7: All"} {
		if !strings.Contains(lists[0].desc, want) {
			t.Fatalf("list description missing %q:\n%s", want, lists[0].desc)
		}
	}

	var groupNames []string
	for _, c := range hub.ofKind("group") {
		groupNames = append(groupNames, c.name)
	}
	wantGroups := []string{"Setup", "Workup", "Imaging", "Indexing", "Assembly", "Delivery"}
	if len(groupNames) != len(wantGroups) {
		t.Fatalf("groups = %v, want %v", groupNames, wantGroups)
	}
	for i := range wantGroups {
		if groupNames[i] != wantGroups[i] {
			t.Fatalf("groups = %v, want fixed order %v", groupNames, wantGroups)
		}
	}

	fixed, templated := catalogStepCounts()
	wantTasks := fixed + templated*2
	if res.Tasks != wantTasks {
		t.Fatalf("got %d tasks, want %d (fixed %d + templated %d per lease)", res.Tasks, wantTasks, fixed, templated)
	}

	var sawL1, sawL2 bool
	for _, c := range hub.ofKind("task") {
		if strings.Contains(c.name, leaseToken) {
			t.Fatalf("unexpanded lease token in task %q", c.name)
		}
		if strings.Contains(c.name, "L-1") {
			sawL1 = true
		}
		if strings.Contains(c.name, "L-2") {
			sawL2 = true
		}
	}
	if !sawL1 || !sawL2 {
		t.Fatalf("lease-templated steps missing for some lease (L-1=%v L-2=%v)", sawL1, sawL2)
	}
}

func TestGroupedFiltersLeasesByAgency(t *testing.T) {
	order := domain.Order{ID: "o1", OrderNumber: "ORD-1", OrderDate: "2025-02-01"}
	reports := []domain.Report{{
		ID:   42,
		Kind: domain.KindBaseAbstract,
		Leases: []domain.Lease{
			{ID: 1, LeaseNumber: "FED-1", Agency: domain.AgencyFederal},
			{ID: 2, LeaseNumber: "ST-1", Agency: domain.AgencyState},
		},
	}}

	hub := &fakeHub{}
	res, err := runGrouped(context.Background(), hub, "proj-abs", order, reports, federalAbstractsDef())
	if err != nil {
		t.Fatalf("runGrouped: %v", err)
	}

	for _, c := range hub.ofKind("task") {
		if strings.Contains(c.name, "ST-1") {
			t.Fatalf("state lease ST-1 appeared in federal product task %q", c.name)
		}
	}
	desc := hub.ofKind("list")[0].desc
	if strings.Contains(desc, "ST-1") {
		t.Fatalf("state lease ST-1 appeared in list description:\n%s", desc)
	}
	if !strings.Contains(desc, "FED-1") {
		t.Fatalf("federal lease FED-1 missing from list description:\n%s", desc)
	}

	fixed, templated := catalogStepCounts()
	if want := fixed + templated; res.Tasks != want {
		t.Fatalf("got %d tasks, want %d (templated steps for the federal lease only)", res.Tasks, want)
	}
}

func TestGroupedZeroLeasesSkipsTemplatedSteps(t *testing.T) {
	order := domain.Order{ID: "o1", OrderNumber: "ORD-1", OrderDate: "2025-02-01"}
	reports := []domain.Report{{ID: 7, Kind: domain.KindSupplementalAbstract}}

	hub := &fakeHub{}
	res, err := runGrouped(context.Background(), hub, "proj-abs", order, reports, federalAbstractsDef())
	if err != nil {
		t.Fatalf("runGrouped: %v", err)
	}
	fixed, _ := catalogStepCounts()
	if res.Tasks != fixed {
		t.Fatalf("got %d tasks, want only the %d fixed steps", res.Tasks, fixed)
	}
	if !strings.Contains(hub.ofKind("list")[0].name, "Supplemental Abstract 7") {
		t.Fatalf("list name = %q", hub.ofKind("list")[0].name)
	}
}

func TestGroupedOneListPerReport(t *testing.T) {
	order := domain.Order{ID: "o1", OrderNumber: "ORD-1", OrderDate: "2025-02-01"}
	reports := []domain.Report{
		{ID: 1, Kind: domain.KindBaseAbstract},
		{ID: 2, Kind: domain.KindDOLAbstract},
	}

	hub := &fakeHub{}
	res, err := runGrouped(context.Background(), hub, "proj-abs", order, reports, federalAbstractsDef())
	if err != nil {
		t.Fatalf("runGrouped: %v", err)
	}
	if res.Lists != 2 {
		t.Fatalf("got %d lists, want 2", res.Lists)
	}
	names := hub.ofKind("list")
	if !strings.Contains(names[1].name, "DOL Abstract 2") {
		t.Fatalf("second list name = %q", names[1].name)
	}
}

func TestGroupedRejectsNonAbstractKind(t *testing.T) {
	order := domain.Order{ID: "o1", OrderNumber: "ORD-1", OrderDate: "2025-02-01"}
	reports := []domain.Report{{ID: 1, Kind: domain.KindRunsheet}}

	hub := &fakeHub{}
	_, err := runGrouped(context.Background(), hub, "proj-abs", order, reports, federalAbstractsDef())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(hub.calls) != 0 {
		t.Fatalf("hub was called despite invalid kind: %+v", hub.calls)
	}
}

func TestGroupedReturnsPartialResultOnFailure(t *testing.T) {
	order := domain.Order{ID: "o1", OrderNumber: "ORD-1", OrderDate: "2025-02-01"}
	reports := []domain.Report{
		{ID: 1, Kind: domain.KindBaseAbstract},
		{ID: 2, Kind: domain.KindDOLAbstract},
	}

	hub := &fakeHub{failOn: "DOL"}
	res, err := runGrouped(context.Background(), hub, "proj-abs", order, reports, federalAbstractsDef())
	if err == nil {
		t.Fatal("expected error from refused list")
	}
	if res.Lists != 1 {
		t.Fatalf("partial result lists = %d, want 1 (the base abstract)", res.Lists)
	}
}
