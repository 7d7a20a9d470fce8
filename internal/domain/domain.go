package domain

// Agency partitions leases between the two jurisdictions Orderline handles.
type Agency string

const (
	AgencyFederal Agency = "federal"
	AgencyState   Agency = "state"
)

// ReportKind identifies what a report is: a runsheet or one of the three
// abstract sub-kinds.
type ReportKind string

const (
	KindRunsheet             ReportKind = "runsheet"
	KindBaseAbstract         ReportKind = "base_abstract"
	KindSupplementalAbstract ReportKind = "supplemental_abstract"
	KindDOLAbstract          ReportKind = "dol_abstract"
)

// ReportKinds lists every valid kind, for validation and CLI help.
var ReportKinds = []ReportKind{
	KindRunsheet,
	KindBaseAbstract,
	KindSupplementalAbstract,
	KindDOLAbstract,
}

func ValidReportKind(k ReportKind) bool {
	for _, kind := range ReportKinds {
		if k == kind {
			return true
		}
	}
	return false
}

type Order struct {
	ID           string `json:"id"`
	OrderNumber  string `json:"order_number"`
	OrderDate    string `json:"order_date" format:"date"`
	DeliveryLink string `json:"delivery_link,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Report struct {
	ID               int64      `json:"id"`
	OrderID          string     `json:"order_id"`
	Kind             ReportKind `json:"kind" enum:"runsheet,base_abstract,supplemental_abstract,dol_abstract"`
	LegalDescription string     `json:"legal_description"`
	StartDate        *string    `json:"start_date,omitempty" format:"date"`
	EndDate          *string    `json:"end_date,omitempty" format:"date"`
	CreatedAt        string     `json:"created_at" format:"date-time"`

	// Leases is populated by the graph loader in association order.
	Leases []Lease `json:"leases,omitempty"`
}

type Lease struct {
	ID               int64  `json:"id"`
	LeaseNumber      string `json:"lease_number"`
	Agency           Agency `json:"agency" enum:"federal,state"`
	PriorReportFound bool   `json:"prior_report_found"`
	ArchiveLink      string `json:"archive_link,omitempty"`
	CreatedAt        string `json:"created_at" format:"date-time"`
}

// Connection holds an actor's task-hub credential.
type Connection struct {
	ActorID      string `json:"actor_id"`
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrderID    string `json:"order_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
