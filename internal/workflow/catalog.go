package workflow

// leaseToken marks a step template that fans out once per lease on the
// report, with the token replaced by the lease number.
const leaseToken = "{lease}"

type phaseSection struct {
	Name  string
	Steps []string
}

// phaseCatalog drives the grouped strategy. It is data, not control flow:
// section order mirrors the physical production phases and is relied on by
// consumers of the generated lists, so it must never be reordered. Step text
// can be revised freely.
var phaseCatalog = []phaseSection{
	{Name: "Setup", Steps: []string{
		"Create order folder",
		"Review order instructions",
		"Pull prior abstract for {lease}",
		"Confirm legal description against order",
	}},
	{Name: "Workup", Steps: []string{
		"Run grantor/grantee indexes",
		"Work up {lease} in county records",
		"Flag gaps in chain of title",
	}},
	{Name: "Imaging", Steps: []string{
		"Scan instruments for {lease}",
		"QC scanned images",
		"Upload images to archive",
	}},
	{Name: "Indexing", Steps: []string{
		"Index instruments for {lease}",
		"Cross-check index against runsheet",
	}},
	{Name: "Assembly", Steps: []string{
		"Assemble abstract volume",
		"Insert tabs and certification pages",
		"Final pagination check",
	}},
	{Name: "Delivery", Steps: []string{
		"Partner review",
		"Generate delivery PDF",
		"Send delivery notice",
	}},
}
