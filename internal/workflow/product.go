package workflow

import (
	"orderline/internal/config"
	"orderline/internal/domain"
)

// Strategy tags which generation algorithm a product runs.
type Strategy string

const (
	StrategyFlat    Strategy = "flat"
	StrategyGrouped Strategy = "grouped"
)

// ProductDefinition is one configured product: an (agency, report-kind-set)
// combination bound to a hub project and a strategy. Definitions are static
// and immutable; the four real products are rows here, not types.
type ProductDefinition struct {
	Name       string
	ProjectKey string
	Agency     domain.Agency
	Kinds      []domain.ReportKind
	Strategy   Strategy
}

var abstractKinds = []domain.ReportKind{
	domain.KindBaseAbstract,
	domain.KindSupplementalAbstract,
	domain.KindDOLAbstract,
}

// Products returns the static product table in generation order. Every
// (agency, kind) pair present in real data maps to exactly one row;
// anything else is silently skipped.
func Products() []ProductDefinition {
	return []ProductDefinition{
		{
			Name:       "Federal Runsheets",
			ProjectKey: "federal_runsheets",
			Agency:     domain.AgencyFederal,
			Kinds:      []domain.ReportKind{domain.KindRunsheet},
			Strategy:   StrategyFlat,
		},
		{
			Name:       "State Runsheets",
			ProjectKey: "state_runsheets",
			Agency:     domain.AgencyState,
			Kinds:      []domain.ReportKind{domain.KindRunsheet},
			Strategy:   StrategyFlat,
		},
		{
			Name:       "Federal Abstracts",
			ProjectKey: "federal_abstracts",
			Agency:     domain.AgencyFederal,
			Kinds:      abstractKinds,
			Strategy:   StrategyGrouped,
		},
		{
			Name:       "State Abstracts",
			ProjectKey: "state_abstracts",
			Agency:     domain.AgencyState,
			Kinds:      abstractKinds,
			Strategy:   StrategyGrouped,
		},
	}
}

func (d ProductDefinition) matchesKind(k domain.ReportKind) bool {
	for _, kind := range d.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// MatchingReports filters reports to those this product applies to: the
// report kind is in the product's set and at least one associated lease
// belongs to the product's agency.
func (d ProductDefinition) MatchingReports(reports []domain.Report) []domain.Report {
	var out []domain.Report
	for _, r := range reports {
		if !d.matchesKind(r.Kind) {
			continue
		}
		for _, l := range r.Leases {
			if l.Agency == d.Agency {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// ResolveProjectID looks up the product's hub project id from config or
// environment. A missing locator is a ConfigurationError, never an empty id.
func ResolveProjectID(cfg *config.Config, d ProductDefinition) (string, error) {
	if id := cfg.ProjectLocator(d.ProjectKey); id != "" {
		return id, nil
	}
	return "", &ConfigurationError{Product: d.Name, EnvVar: config.ProjectEnvVar(d.ProjectKey)}
}
