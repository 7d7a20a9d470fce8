package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"orderline/internal/config"
	"orderline/internal/domain"
	"orderline/internal/events"
	"orderline/internal/repo"
	"orderline/internal/workflow"
)

// Runner triggers workflow generation for one order on behalf of an actor.
type Runner interface {
	Execute(ctx context.Context, orderID, actorID string) (workflow.Outcome, error)
}

// Config for the HTTP API handler.
type Config struct {
	Repo     repo.Repo
	App      *config.Config
	Runner   Runner
	BasePath string
	Auth     AuthConfig
	Logger   *log.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_connected"`
	Message string         `json:"message" example:"actor alice is not connected to the task hub"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Orderline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyData, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyData))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyData)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("Orderline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerOrders(group, cfg)
	registerReports(group, cfg)
	registerWorkflows(group, cfg)
	registerConnection(group, cfg)
	registerProducts(group, cfg)
	registerEvents(group, cfg)
	registerOpenAPI(router, api, basePath)

	startNotifier(cfg)

	return router, nil
}

func bodyBytes(ctx context.Context) []byte {
	data, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return data
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var nce *workflow.NotConnectedError
	if errors.As(err, &nce) {
		return newAPIError(http.StatusConflict, "not_connected", err.Error(), map[string]any{"actor_id": nce.ActorID})
	}
	var ce *workflow.ConfigurationError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusUnprocessableEntity, "not_configured", err.Error(), map[string]any{"product": ce.Product, "env_var": ce.EnvVar})
	}
	var ve *workflow.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func appendEvent(cfg Config, ctx context.Context, evtType, orderID, entityKind, entityID, actorID string, payload events.EventPayload) {
	w := events.Writer{DB: cfg.Repo.DB}
	if err := w.Append(ctx, nil, evtType, orderID, entityKind, entityID, actorID, payload); err != nil && cfg.Logger != nil {
		cfg.Logger.Warn("append event failed", "type", evtType, "error", err)
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerOrders(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-order",
		Method:        http.MethodPost,
		Path:          "/orders",
		Summary:       "Create order",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateOrderRequest `json:"body"`
	}) (*struct {
		Body OrderResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if strings.TrimSpace(input.Body.OrderNumber) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "order_number is required", nil)
		}
		if _, err := time.Parse("2006-01-02", input.Body.OrderDate); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "order_date must be YYYY-MM-DD", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o := domain.Order{
			ID:          uuid.NewString(),
			OrderNumber: strings.TrimSpace(input.Body.OrderNumber),
			OrderDate:   input.Body.OrderDate,
			CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		}
		if input.Body.DeliveryLink != nil {
			o.DeliveryLink = *input.Body.DeliveryLink
		}
		if err := cfg.Repo.InsertOrder(ctx, o); err != nil {
			return nil, handleError(err)
		}
		appendEvent(cfg, ctx, "order.created", o.ID, "order", o.ID, actorID, events.EventPayload{"order_number": o.OrderNumber})
		return &struct {
			Body OrderResponse `json:"body"`
		}{Body: orderResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orders",
		Method:      http.MethodGet,
		Path:        "/orders",
		Summary:     "List orders",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []OrderResponse `json:"body"`
	}, error) {
		items, err := cfg.Repo.ListOrders(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []OrderResponse `json:"body"`
		}{Body: mapOrders(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-order",
		Method:      http.MethodGet,
		Path:        "/orders/{order_id}",
		Summary:     "Get order with reports and leases",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body OrderGraphResponse `json:"body"`
	}, error) {
		g, err := cfg.Repo.LoadOrderGraph(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderGraphResponse `json:"body"`
		}{Body: graphResponse(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-order",
		Method:      http.MethodDelete,
		Path:        "/orders/{order_id}",
		Summary:     "Delete order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := cfg.Repo.DeleteOrder(ctx, input.OrderID); err != nil {
			return nil, handleError(err)
		}
		appendEvent(cfg, ctx, "order.deleted", input.OrderID, "order", input.OrderID, actorID, nil)
		return &struct{}{}, nil
	})
}

func registerReports(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-report",
		Method:        http.MethodPost,
		Path:          "/orders/{order_id}/reports",
		Summary:       "Add report with leases",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		OrderID string              `path:"order_id"`
		Body    CreateReportRequest `json:"body"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		kind := domain.ReportKind(input.Body.Kind)
		if !domain.ValidReportKind(kind) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid kind %q", input.Body.Kind), nil)
		}
		for i, l := range input.Body.Leases {
			if strings.TrimSpace(l.LeaseNumber) == "" {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("leases[%d].lease_number is required", i), nil)
			}
			if a := domain.Agency(l.Agency); a != domain.AgencyFederal && a != domain.AgencyState {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("leases[%d].agency must be federal or state", i), nil)
			}
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := cfg.Repo.GetOrder(ctx, input.OrderID); err != nil {
			return nil, handleError(err)
		}
		now := time.Now().UTC().Format(time.RFC3339)
		rep, err := cfg.Repo.InsertReport(ctx, domain.Report{
			OrderID:          input.OrderID,
			Kind:             kind,
			LegalDescription: input.Body.LegalDescription,
			StartDate:        input.Body.StartDate,
			EndDate:          input.Body.EndDate,
			CreatedAt:        now,
		})
		if err != nil {
			return nil, handleError(err)
		}
		for _, lr := range input.Body.Leases {
			l := domain.Lease{
				LeaseNumber:      strings.TrimSpace(lr.LeaseNumber),
				Agency:           domain.Agency(lr.Agency),
				PriorReportFound: lr.PriorReportFound,
				CreatedAt:        now,
			}
			if lr.ArchiveLink != nil {
				l.ArchiveLink = *lr.ArchiveLink
			}
			l, err = cfg.Repo.InsertLease(ctx, l)
			if err != nil {
				return nil, handleError(err)
			}
			if err := cfg.Repo.AttachLease(ctx, rep.ID, l.ID); err != nil {
				return nil, handleError(err)
			}
			rep.Leases = append(rep.Leases, l)
		}
		appendEvent(cfg, ctx, "report.added", input.OrderID, "report", fmt.Sprintf("%d", rep.ID), actorID, events.EventPayload{
			"kind":   string(rep.Kind),
			"leases": len(rep.Leases),
		})
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: reportResponse(rep)}, nil
	})
}

func registerWorkflows(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "run-workflows",
		Method:      http.MethodPost,
		Path:        "/orders/{order_id}/workflows",
		Summary:     "Generate task lists in the hub for every applicable product",
		Errors: []int{
			http.StatusConflict,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body RunResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out, err := cfg.Runner.Execute(ctx, input.OrderID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunResponse `json:"body"`
		}{Body: runResponse(out)}, nil
	})
}

func registerConnection(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "put-connection",
		Method:      http.MethodPut,
		Path:        "/me/connection",
		Summary:     "Store the caller's task-hub credential",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ConnectionRequest `json:"body"`
	}) (*struct {
		Body ConnectionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.AccessToken) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "access_token is required", nil)
		}
		now := time.Now().UTC().Format(time.RFC3339)
		err := cfg.Repo.UpsertConnection(ctx, domain.Connection{
			ActorID:      actorID,
			AccessToken:  strings.TrimSpace(input.Body.AccessToken),
			RefreshToken: strings.TrimSpace(input.Body.RefreshToken),
			UpdatedAt:    now,
		})
		if err != nil {
			return nil, handleError(err)
		}
		appendEvent(cfg, ctx, "connection.updated", "", "connection", actorID, actorID, nil)
		return &struct {
			Body ConnectionResponse `json:"body"`
		}{Body: ConnectionResponse{ActorID: actorID, Connected: true, UpdatedAt: now}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-connection",
		Method:      http.MethodGet,
		Path:        "/me/connection",
		Summary:     "Check the caller's task-hub connection",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ConnectionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		conn, err := cfg.Repo.GetConnection(ctx, actorID)
		if errors.Is(err, repo.ErrNotFound) {
			return &struct {
				Body ConnectionResponse `json:"body"`
			}{Body: ConnectionResponse{ActorID: actorID, Connected: false}}, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConnectionResponse `json:"body"`
		}{Body: ConnectionResponse{ActorID: actorID, Connected: true, UpdatedAt: conn.UpdatedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-connection",
		Method:      http.MethodDelete,
		Path:        "/me/connection",
		Summary:     "Remove the caller's task-hub credential",
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := cfg.Repo.DeleteConnection(ctx, actorID); err != nil {
			return nil, handleError(err)
		}
		appendEvent(cfg, ctx, "connection.removed", "", "connection", actorID, actorID, nil)
		return &struct{}{}, nil
	})
}

func registerProducts(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-products",
		Method:      http.MethodGet,
		Path:        "/products",
		Summary:     "List configured products",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProductResponse `json:"body"`
	}, error) {
		defs := workflow.Products()
		out := make([]ProductResponse, 0, len(defs))
		for _, d := range defs {
			kinds := make([]string, 0, len(d.Kinds))
			for _, k := range d.Kinds {
				kinds = append(kinds, string(k))
			}
			out = append(out, ProductResponse{
				Name:       d.Name,
				ProjectKey: d.ProjectKey,
				Agency:     string(d.Agency),
				Kinds:      kinds,
				Strategy:   string(d.Strategy),
				ProjectID:  cfg.App.ProjectLocator(d.ProjectKey),
			})
		}
		return &struct {
			Body []ProductResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerEvents(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
	}, func(ctx context.Context, input *struct {
		Limit   int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		OrderID string `query:"order_id"`
		Type    string `query:"type"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		items, err := cfg.Repo.LatestEvents(ctx, limit, input.OrderID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Orderline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
