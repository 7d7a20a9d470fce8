package workflow

import (
	"fmt"
	"strings"
	"time"

	"orderline/internal/domain"
)

const dateLayout = "2006-01-02"

// shortDate renders a stored date as M/D/YYYY without zero padding.
func shortDate(s string) string {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%d/%d/%d", int(t.Month()), t.Day(), t.Year())
}

// compactDate renders a stored date as YYYYMMDD for list names.
func compactDate(s string) string {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return strings.ReplaceAll(s, "-", "")
	}
	return t.Format("20060102")
}

// Describe renders a report's legal description with its covered period.
func Describe(r domain.Report) string {
	return describe(r, plainMark)
}

// DescribeHTML is Describe with each date token wrapped in <strong>.
func DescribeHTML(r domain.Report) string {
	return describe(r, boldMark)
}

// DateRange returns only the covered-period phrase, or "" for an undated report.
func DateRange(r domain.Report) string {
	return dateRange(r, plainMark)
}

func plainMark(s string) string { return s }
func boldMark(s string) string  { return "<strong>" + s + "</strong>" }

func describe(r domain.Report, mark func(string) string) string {
	period := dateRange(r, mark)
	if period == "" {
		return r.LegalDescription
	}
	return r.LegalDescription + " " + period
}

func dateRange(r domain.Report, mark func(string) string) string {
	var start, end string
	if r.StartDate != nil && *r.StartDate != "" {
		start = shortDate(*r.StartDate)
	}
	if r.EndDate != nil && *r.EndDate != "" {
		end = shortDate(*r.EndDate)
	}
	switch {
	case start != "" && end != "":
		return fmt.Sprintf("from %s to %s", mark(start), mark(end))
	case start != "":
		return fmt.Sprintf("from %s to present", mark(start))
	case end != "":
		return fmt.Sprintf("from inception to %s", mark(end))
	default:
		return ""
	}
}
