package server

import (
	"orderline/internal/domain"
	"orderline/internal/repo"
	"orderline/internal/workflow"
)

type CreateOrderRequest struct {
	OrderNumber  string  `json:"order_number" example:"ORD-1042"`
	OrderDate    string  `json:"order_date" format:"date" example:"2025-01-15"`
	DeliveryLink *string `json:"delivery_link,omitempty"`
}

type OrderResponse struct {
	ID           string `json:"id"`
	OrderNumber  string `json:"order_number"`
	OrderDate    string `json:"order_date"`
	DeliveryLink string `json:"delivery_link,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func orderResponse(o domain.Order) OrderResponse {
	return OrderResponse{
		ID:           o.ID,
		OrderNumber:  o.OrderNumber,
		OrderDate:    o.OrderDate,
		DeliveryLink: o.DeliveryLink,
		CreatedAt:    o.CreatedAt,
	}
}

func mapOrders(items []domain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(items))
	for _, o := range items {
		out = append(out, orderResponse(o))
	}
	return out
}

type LeaseRequest struct {
	LeaseNumber      string  `json:"lease_number" example:"NM-0381"`
	Agency           string  `json:"agency" enum:"federal,state"`
	PriorReportFound bool    `json:"prior_report_found,omitempty"`
	ArchiveLink      *string `json:"archive_link,omitempty"`
}

type CreateReportRequest struct {
	Kind             string         `json:"kind" enum:"runsheet,base_abstract,supplemental_abstract,dol_abstract"`
	LegalDescription string         `json:"legal_description"`
	StartDate        *string        `json:"start_date,omitempty" format:"date"`
	EndDate          *string        `json:"end_date,omitempty" format:"date"`
	Leases           []LeaseRequest `json:"leases,omitempty"`
}

type LeaseResponse struct {
	ID               int64  `json:"id"`
	LeaseNumber      string `json:"lease_number"`
	Agency           string `json:"agency"`
	PriorReportFound bool   `json:"prior_report_found"`
	ArchiveLink      string `json:"archive_link,omitempty"`
}

type ReportResponse struct {
	ID               int64           `json:"id"`
	OrderID          string          `json:"order_id"`
	Kind             string          `json:"kind"`
	LegalDescription string          `json:"legal_description"`
	StartDate        *string         `json:"start_date,omitempty"`
	EndDate          *string         `json:"end_date,omitempty"`
	Description      string          `json:"description"`
	Leases           []LeaseResponse `json:"leases"`
}

func reportResponse(r domain.Report) ReportResponse {
	leases := make([]LeaseResponse, 0, len(r.Leases))
	for _, l := range r.Leases {
		leases = append(leases, LeaseResponse{
			ID:               l.ID,
			LeaseNumber:      l.LeaseNumber,
			Agency:           string(l.Agency),
			PriorReportFound: l.PriorReportFound,
			ArchiveLink:      l.ArchiveLink,
		})
	}
	return ReportResponse{
		ID:               r.ID,
		OrderID:          r.OrderID,
		Kind:             string(r.Kind),
		LegalDescription: r.LegalDescription,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		Description:      workflow.Describe(r),
		Leases:           leases,
	}
}

type OrderGraphResponse struct {
	Order   OrderResponse    `json:"order"`
	Reports []ReportResponse `json:"reports"`
}

func graphResponse(g repo.OrderGraph) OrderGraphResponse {
	reports := make([]ReportResponse, 0, len(g.Reports))
	for _, r := range g.Reports {
		reports = append(reports, reportResponse(r))
	}
	return OrderGraphResponse{Order: orderResponse(g.Order), Reports: reports}
}

type ProductResponse struct {
	Name       string   `json:"name"`
	ProjectKey string   `json:"project_key"`
	Agency     string   `json:"agency"`
	Kinds      []string `json:"kinds"`
	Strategy   string   `json:"strategy"`
	ProjectID  string   `json:"project_id,omitempty"`
}

type ConnectionRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type ConnectionResponse struct {
	ActorID   string `json:"actor_id"`
	Connected bool   `json:"connected"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type RunResponse struct {
	Success     bool              `json:"success"`
	NothingToDo bool              `json:"nothing_to_do,omitempty"`
	Succeeded   []string          `json:"succeeded"`
	Failed      []string          `json:"failed"`
	Errors      map[string]string `json:"errors,omitempty"`
	Lists       int               `json:"lists"`
	Tasks       int               `json:"tasks"`
}

func runResponse(o workflow.Outcome) RunResponse {
	return RunResponse{
		Success:     o.Success,
		NothingToDo: o.NothingToDo,
		Succeeded:   o.Succeeded,
		Failed:      o.Failed,
		Errors:      o.Errors,
		Lists:       o.Lists,
		Tasks:       o.Tasks,
	}
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	OrderID    string `json:"order_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			OrderID:    e.OrderID,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			Payload:    e.Payload,
		})
	}
	return out
}
