package workflow

import (
	"context"
	"fmt"
	"strings"

	"orderline/internal/domain"
)

// abstractLabel derives the product sub-label from an abstract report kind.
func abstractLabel(k domain.ReportKind) (string, error) {
	switch k {
	case domain.KindBaseAbstract:
		return "Base", nil
	case domain.KindSupplementalAbstract:
		return "Supplemental", nil
	case domain.KindDOLAbstract:
		return "DOL", nil
	}
	return "", &ValidationError{Reason: fmt.Sprintf("report kind %s has no abstract label", k)}
}

// runGrouped generates one task list per matching report, organized into the
// six production phases from phaseCatalog.
func runGrouped(ctx context.Context, client Client, projectID string, order domain.Order, reports []domain.Report, def ProductDefinition) (Result, error) {
	var res Result
	for _, rep := range reports {
		r, err := groupedReport(ctx, client, projectID, order, rep, def.Agency)
		res.Lists += r.Lists
		res.Tasks += r.Tasks
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

func groupedReport(ctx context.Context, client Client, projectID string, order domain.Order, rep domain.Report, agency domain.Agency) (Result, error) {
	label, err := abstractLabel(rep.Kind)
	if err != nil {
		return Result{}, fmt.Errorf("report %d: %w", rep.ID, err)
	}
	leases := agencyLeases(rep, agency)
	name := fmt.Sprintf("Order %s- %s Abstract %d - %s", order.OrderNumber, label, rep.ID, compactDate(order.OrderDate))
	listID, err := client.CreateList(ctx, projectID, truncateName(name, ""), reportListDescription(order, rep, label, leases))
	if err != nil {
		return Result{}, fmt.Errorf("report %d: create list: %w", rep.ID, err)
	}
	res := Result{Lists: 1}
	for _, sec := range phaseCatalog {
		groupID, err := client.CreateGroup(ctx, listID, sec.Name)
		if err != nil {
			return res, fmt.Errorf("report %d: create group %s: %w", rep.ID, sec.Name, err)
		}
		for _, step := range sec.Steps {
			if strings.Contains(step, leaseToken) {
				for _, l := range leases {
					text := strings.ReplaceAll(step, leaseToken, l.LeaseNumber)
					if _, err := client.CreateTask(ctx, groupID, truncateName(text, l.LeaseNumber), ""); err != nil {
						return res, fmt.Errorf("report %d lease %s (id %d): create step: %w", rep.ID, l.LeaseNumber, l.ID, err)
					}
					res.Tasks++
				}
				continue
			}
			if _, err := client.CreateTask(ctx, groupID, truncateName(step, ""), ""); err != nil {
				return res, fmt.Errorf("report %d: create step %q: %w", rep.ID, step, err)
			}
			res.Tasks++
		}
	}
	return res, nil
}

// agencyLeases keeps the report's leases belonging to the product's agency.
// Leases of the other agency belong to a different product's output.
func agencyLeases(rep domain.Report, agency domain.Agency) []domain.Lease {
	var out []domain.Lease
	for _, l := range rep.Leases {
		if l.Agency == agency {
			out = append(out, l)
		}
	}
	return out
}

// reportListDescription builds the key/value summary lines for a report's
// task list. Empty values drop their line.
func reportListDescription(order domain.Order, rep domain.Report, label string, leases []domain.Lease) string {
	lines := []string{
		fmt.Sprintf("<strong>Report:</strong> %s Abstract", label),
	}
	if period := DateRange(rep); period != "" {
		lines = append(lines, "<strong>Covers:</strong> "+period)
	}
	if nums := leaseNumbers(leases); nums != "" {
		lines = append(lines, "<strong>Leases:</strong> "+nums)
	}
	if rep.LegalDescription != "" {
		lines = append(lines, "<strong>Legal Description:</strong> "+rep.LegalDescription)
	}
	if order.DeliveryLink != "" {
		lines = append(lines, fmt.Sprintf(`<strong>Delivery:</strong> <a href=%q>%s</a>`, order.DeliveryLink, order.DeliveryLink))
	}
	return strings.Join(lines, "<br>")
}

func leaseNumbers(leases []domain.Lease) string {
	nums := make([]string, 0, len(leases))
	for _, l := range leases {
		nums = append(nums, l.LeaseNumber)
	}
	return strings.Join(nums, ", ")
}
