package workflow

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"orderline/internal/domain"
)

// maxNameLength is the hub's limit on list/task names.
const maxNameLength = 255

// leaseGroup collects every report that references one lease number.
type leaseGroup struct {
	lease   domain.Lease
	reports []domain.Report
}

// runFlat generates one task list for the whole order with one task per
// unique lease number matching the product's agency. A lease referenced by
// several reports collapses into a single task carrying all their
// descriptions.
func runFlat(ctx context.Context, client Client, projectID string, order domain.Order, reports []domain.Report, def ProductDefinition) (Result, error) {
	groups := map[string]*leaseGroup{}
	var numbers []string
	for _, rep := range reports {
		for _, l := range rep.Leases {
			if l.Agency != def.Agency {
				continue
			}
			g, ok := groups[l.LeaseNumber]
			if !ok {
				g = &leaseGroup{lease: l}
				groups[l.LeaseNumber] = g
				numbers = append(numbers, l.LeaseNumber)
			}
			if !containsReport(g.reports, rep.ID) {
				g.reports = append(g.reports, rep)
			}
		}
	}
	if len(numbers) == 0 {
		return Result{}, nil
	}

	listName := fmt.Sprintf("Order %s - %s", order.OrderNumber, compactDate(order.OrderDate))
	listID, err := client.CreateList(ctx, projectID, truncateName(listName, ""), orderListDescription(order))
	if err != nil {
		return Result{}, fmt.Errorf("create list for order %s: %w", order.ID, err)
	}
	res := Result{Lists: 1}
	for _, num := range numbers {
		g := groups[num]
		if _, err := client.CreateTask(ctx, listID, leaseTaskName(g.lease), leaseTaskDescription(g)); err != nil {
			return res, fmt.Errorf("lease %s (id %d): create task: %w", num, g.lease.ID, err)
		}
		res.Tasks++
	}
	return res, nil
}

func containsReport(reports []domain.Report, id int64) bool {
	for _, r := range reports {
		if r.ID == id {
			return true
		}
	}
	return false
}

func orderListDescription(order domain.Order) string {
	if order.DeliveryLink == "" {
		return ""
	}
	return fmt.Sprintf(`<strong>Delivery:</strong> <a href=%q>%s</a>`, order.DeliveryLink, order.DeliveryLink)
}

func leaseTaskName(l domain.Lease) string {
	name := l.LeaseNumber
	if l.PriorReportFound {
		name += " - Previous Report"
	}
	return truncateName(name, l.LeaseNumber)
}

// leaseTaskDescription builds the "Reports Needed" section followed by
// "Lease Data". A section with nothing to say is omitted.
func leaseTaskDescription(g *leaseGroup) string {
	var b strings.Builder
	if len(g.reports) > 0 {
		b.WriteString("<strong>Reports Needed</strong><ul>")
		for _, rep := range g.reports {
			b.WriteString("<li>")
			b.WriteString(DescribeHTML(rep))
			b.WriteString("</li>")
		}
		b.WriteString("</ul>")
	}
	if g.lease.ArchiveLink != "" {
		fmt.Fprintf(&b, `<strong>Lease Data</strong><br><a href=%q>Lease Archive</a>`, g.lease.ArchiveLink)
	}
	return b.String()
}

// truncateName enforces the hub name limit. The essential part (the lease
// number) survives truncation; suffixes are dropped first.
func truncateName(name, essential string) string {
	if utf8.RuneCountInString(name) <= maxNameLength {
		return name
	}
	if essential != "" && utf8.RuneCountInString(essential) <= maxNameLength {
		return essential
	}
	runes := []rune(name)
	if essential != "" {
		runes = []rune(essential)
	}
	return string(runes[:maxNameLength])
}
