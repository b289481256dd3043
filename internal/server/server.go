// Package server exposes the broker over HTTP with a generated OpenAPI
// description.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"reqline/internal/engine"
	"reqline/internal/fault"
	"reqline/internal/registry"
	"reqline/internal/repo"
)

const Version = "0.3.0"

type Config struct {
	Addr      string
	BasePath  string
	JWTSecret string
	Logger    *log.Logger
}

type Server struct {
	Engine   *engine.Engine
	Registry *registry.Registry
	Repo     repo.Repo
	Config   Config
}

type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type apiError struct {
	status int
	Body   apiErrorBody
}

func (e *apiError) Error() string  { return e.Body.Message }
func (e *apiError) GetStatus() int { return e.status }

func init() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		details := ""
		for _, err := range errs {
			if err == nil {
				continue
			}
			if details != "" {
				details += "; "
			}
			details += err.Error()
		}
		return &apiError{
			status: status,
			Body:   apiErrorBody{Code: status, Message: message, Details: details},
		}
	}
}

// NewHandler builds the HTTP handler serving the broker API.
func NewHandler(eng *engine.Engine, reg *registry.Registry, cfg Config) http.Handler {
	if cfg.BasePath == "" {
		cfg.BasePath = "/api/v1"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	s := &Server{
		Engine:   eng,
		Registry: reg,
		Repo:     eng.Repo,
		Config:   cfg,
	}

	r := chi.NewMux()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(cfg.Logger))

	humaConfig := huma.DefaultConfig("reqline", Version)
	humaConfig.Servers = []*huma.Server{{URL: cfg.BasePath}}

	api := humachi.New(r, humaConfig)
	api.UseMiddleware(s.newAuthMiddleware(api))

	s.registerHealth(api)
	s.registerCapabilities(api)
	s.registerTenants(api)
	s.registerRequests(api)
	s.registerResults(api)

	mux := chi.NewMux()
	mux.Mount(cfg.BasePath, r)
	return mux
}

func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Printf("http %s %s (%s)", r.Method, r.URL.Path, time.Since(start))
		})
	}
}

// handleError maps the internal error taxonomy onto HTTP status codes.
func handleError(err error) error {
	var (
		validation fault.ValidationError
		notFound   fault.NotFoundError
		duplicate  fault.DuplicateError
		illegal    fault.IllegalTransitionError
		schemaErr  fault.SchemaError
		corrupted  fault.CorruptedStateError
	)
	switch {
	case errors.As(err, &validation):
		return huma.Error400BadRequest(validation.Msg)
	case errors.As(err, &notFound):
		return huma.Error404NotFound(notFound.Msg)
	case errors.As(err, &duplicate):
		return huma.Error409Conflict(duplicate.Msg)
	case errors.As(err, &illegal):
		return huma.Error409Conflict(illegal.Msg)
	case errors.As(err, &schemaErr):
		return huma.Error422UnprocessableEntity(schemaErr.Msg)
	case errors.As(err, &corrupted):
		return huma.Error500InternalServerError(corrupted.Msg)
	}
	return huma.Error500InternalServerError("internal error", err)
}

func (s *Server) registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Metadata:    map[string]any{"public": true},
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		out.Body.Time = time.Now().UTC().Format(time.RFC3339)
		return out, nil
	})
}

func (s *Server) registerCapabilities(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "create-capability",
		Method:      http.MethodPost,
		Path:        "/capabilities",
		Summary:     "Register a capability",
	}, func(ctx context.Context, in *createCapabilityInput) (*capabilityOutput, error) {
		c, err := s.Registry.AddCapability(ctx, registry.CapabilitySpec{
			Quantity:       in.Body.Quantity,
			Method:         in.Body.Method,
			Specifications: in.Body.Specifications,
			ResultOutput:   in.Body.ResultOutput,
			IsActive:       in.Body.IsActive,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &capabilityOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-capabilities",
		Method:      http.MethodGet,
		Path:        "/capabilities",
		Summary:     "List active capabilities",
	}, func(ctx context.Context, in *listCapabilitiesInput) (*capabilityListOutput, error) {
		caps, err := s.Registry.GetCapabilities(ctx, in.Quantity, in.Method, in.CurrentlyAvailable)
		if err != nil {
			return nil, handleError(err)
		}
		return &capabilityListOutput{Body: caps}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deactivate-capability",
		Method:      http.MethodDelete,
		Path:        "/capabilities/{method}",
		Summary:     "Deactivate a capability by method",
	}, func(ctx context.Context, in *deactivateCapabilityInput) (*messageOutput, error) {
		if !in.Confirm {
			return nil, huma.Error400BadRequest("deactivation must be confirmed with confirm=true")
		}
		if err := s.Registry.DeactivateCapability(ctx, in.Method); err != nil {
			return nil, handleError(err)
		}
		out := &messageOutput{}
		out.Body.Message = fmt.Sprintf("method %q has been deactivated", in.Method)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-capability-templates",
		Method:      http.MethodGet,
		Path:        "/capabilities/templates",
		Summary:     "Render parameter templates for capabilities",
	}, func(ctx context.Context, in *templatesInput) (*templatesOutput, error) {
		templates, err := s.Registry.SchemaTemplates(ctx, in.Quantity, in.Method, in.CurrentlyAvailable)
		if err != nil {
			return nil, handleError(err)
		}
		return &templatesOutput{Body: templates}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-limitations",
		Method:      http.MethodGet,
		Path:        "/limitations",
		Summary:     "Aggregate tenant limitations per quantity and method",
	}, func(ctx context.Context, in *limitationsInput) (*limitationsOutput, error) {
		limitations, err := s.Registry.GetLimitations(ctx, in.CurrentlyAvailable)
		if err != nil {
			return nil, handleError(err)
		}
		return &limitationsOutput{Body: limitations}, nil
	})
}

func (s *Server) registerTenants(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "create-tenant",
		Method:      http.MethodPost,
		Path:        "/tenants",
		Summary:     "Register a tenant",
	}, func(ctx context.Context, in *createTenantInput) (*tenantOutput, error) {
		t, err := s.Registry.AddTenant(ctx, registry.TenantSpec{
			Name:          in.Body.Name,
			ContactPerson: in.Body.ContactPerson,
			Limitations:   in.Body.Limitations,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &tenantOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/tenants",
		Summary:     "List tenants, optionally filtered by name",
	}, func(ctx context.Context, in *listTenantsInput) (*tenantListOutput, error) {
		tenants, err := s.Registry.TenantsByName(ctx, in.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &tenantListOutput{Body: tenants}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "alter-tenant-state",
		Method:      http.MethodPost,
		Path:        "/tenants/{uuid}/state",
		Summary:     "Activate or deactivate a tenant",
	}, func(ctx context.Context, in *tenantStateInput) (*tenantOutput, error) {
		t, err := s.Registry.AlterTenantState(ctx, in.UUID, in.Body.IsActive)
		if err != nil {
			return nil, handleError(err)
		}
		return &tenantOutput{Body: t}, nil
	})
}

func (s *Server) registerRequests(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "create-request",
		Method:      http.MethodPost,
		Path:        "/requests",
		Summary:     "Submit a request",
	}, func(ctx context.Context, in *createRequestInput) (*requestOutput, error) {
		principal, _ := PrincipalFromContext(ctx)
		req, err := s.Engine.CreateRequest(ctx, engine.RequestSubmission{
			Quantity:   in.Body.Quantity,
			Methods:    in.Body.Methods,
			Parameters: in.Body.Parameters,
			TenantUUID: principal.TenantUUID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &requestOutput{Body: req}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/requests",
		Summary:     "List requests regardless of status",
	}, func(ctx context.Context, in *listRequestsInput) (*requestListOutput, error) {
		reqs, err := s.Engine.GetAllRequests(ctx, in.Quantity, in.Method)
		if err != nil {
			return nil, handleError(err)
		}
		return &requestListOutput{Body: reqs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pending-requests",
		Method:      http.MethodGet,
		Path:        "/requests/pending",
		Summary:     "List pending requests",
	}, func(ctx context.Context, in *listRequestsInput) (*requestListOutput, error) {
		reqs, err := s.Engine.GetPendingRequests(ctx, in.Quantity, in.Method)
		if err != nil {
			return nil, handleError(err)
		}
		return &requestListOutput{Body: reqs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/requests/{uuid}",
		Summary:     "Fetch one request",
	}, func(ctx context.Context, in *requestByIDInput) (*requestOutput, error) {
		req, err := s.Engine.GetRequest(ctx, in.UUID)
		if err != nil {
			return nil, handleError(err)
		}
		return &requestOutput{Body: req}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-request-status",
		Method:      http.MethodPost,
		Path:        "/requests/{uuid}/status",
		Summary:     "Change a request's status",
	}, func(ctx context.Context, in *requestStatusInput) (*requestOutput, error) {
		req, err := s.Engine.ChangeStatusRequest(ctx, in.UUID, in.Body.Status, in.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &requestOutput{Body: req}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request-history",
		Method:      http.MethodGet,
		Path:        "/requests/{uuid}/history",
		Summary:     "Fetch a request's status log",
	}, func(ctx context.Context, in *requestByIDInput) (*historyOutput, error) {
		entries, err := s.Engine.RequestHistory(ctx, in.UUID)
		if err != nil {
			return nil, handleError(err)
		}
		return &historyOutput{Body: entries}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request-result",
		Method:      http.MethodGet,
		Path:        "/requests/{uuid}/result",
		Summary:     "Fetch the result posted for a request",
	}, func(ctx context.Context, in *requestByIDInput) (*resultOutput, error) {
		res, err := s.Engine.GetResultByRequest(ctx, in.UUID)
		if err != nil {
			return nil, handleError(err)
		}
		return &resultOutput{Body: res}, nil
	})
}

func (s *Server) registerResults(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "create-result",
		Method:      http.MethodPost,
		Path:        "/results",
		Summary:     "Post a result for a request",
	}, func(ctx context.Context, in *createResultInput) (*resultOutput, error) {
		principal, _ := PrincipalFromContext(ctx)
		res, err := s.Engine.CreateResult(ctx, engine.ResultSubmission{
			RequestUUID: in.Body.RequestUUID,
			Quantity:    in.Body.Quantity,
			Methods:     in.Body.Methods,
			Parameters:  in.Body.Parameters,
			Data:        in.Body.Data,
			TenantUUID:  principal.TenantUUID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &resultOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-unsolicited-result",
		Method:      http.MethodPost,
		Path:        "/results/unsolicited",
		Summary:     "Post a result without a prior request",
	}, func(ctx context.Context, in *createResultInput) (*resultOutput, error) {
		principal, _ := PrincipalFromContext(ctx)
		res, err := s.Engine.CreateUnsolicitedResult(ctx, engine.ResultSubmission{
			Quantity:   in.Body.Quantity,
			Methods:    in.Body.Methods,
			Parameters: in.Body.Parameters,
			Data:       in.Body.Data,
			TenantUUID: principal.TenantUUID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &resultOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-results",
		Method:      http.MethodGet,
		Path:        "/results",
		Summary:     "List results",
	}, func(ctx context.Context, in *listResultsInput) (*resultListOutput, error) {
		results, err := s.Engine.GetAllResults(ctx, in.Quantity, in.Method)
		if err != nil {
			return nil, handleError(err)
		}
		return &resultListOutput{Body: results}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-result",
		Method:      http.MethodGet,
		Path:        "/results/{uuid}",
		Summary:     "Fetch one result",
	}, func(ctx context.Context, in *resultByIDInput) (*resultOutput, error) {
		res, err := s.Engine.GetResult(ctx, in.UUID)
		if err != nil {
			return nil, handleError(err)
		}
		return &resultOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-result-status",
		Method:      http.MethodPost,
		Path:        "/results/{uuid}/status",
		Summary:     "Change a result's status",
	}, func(ctx context.Context, in *resultStatusInput) (*resultOutput, error) {
		res, err := s.Engine.ChangeStatusResult(ctx, in.UUID, in.Body.Status, in.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &resultOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-result-history",
		Method:      http.MethodGet,
		Path:        "/results/{uuid}/history",
		Summary:     "Fetch a result's status log",
	}, func(ctx context.Context, in *resultByIDInput) (*historyOutput, error) {
		entries, err := s.Engine.ResultHistory(ctx, in.UUID)
		if err != nil {
			return nil, handleError(err)
		}
		return &historyOutput{Body: entries}, nil
	})
}
