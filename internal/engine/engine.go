// Package engine implements the request and result lifecycles: submission
// validation against capability schemas, status transitions and the
// append-only status histories.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"reqline/internal/domain"
	"reqline/internal/fault"
	"reqline/internal/repo"
	"reqline/internal/schema"
	"reqline/internal/statuslog"
)

type Engine struct {
	DB   *sql.DB
	Repo repo.Repo
	Log  statuslog.Writer
	Now  func() time.Time
}

func New(db *sql.DB) *Engine {
	e := &Engine{
		DB:   db,
		Repo: repo.Repo{DB: db},
		Now:  time.Now,
	}
	e.Log = statuslog.Writer{DB: db, Now: func() time.Time { return e.now() }}
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// RequestSubmission is the shape clients post to create a request.
type RequestSubmission struct {
	Quantity   string
	Methods    []string
	Parameters map[string]map[string]any
	TenantUUID string
}

// ResultSubmission is the shape clients post to register a result. Methods
// and Parameters must carry exactly one entry each.
type ResultSubmission struct {
	RequestUUID string
	Quantity    string
	Methods     []string
	Parameters  map[string]map[string]any
	Data        map[string]any
	TenantUUID  string
}

// CreateRequest validates the submission against the capability map and
// inserts the request as pending together with its quantity links and the
// first status log entry.
func (e *Engine) CreateRequest(ctx context.Context, sub RequestSubmission) (domain.Request, error) {
	return e.createRequest(ctx, sub, domain.RequestPending, "request created")
}

func (e *Engine) createRequest(ctx context.Context, sub RequestSubmission, status, logMessage string) (domain.Request, error) {
	caps, err := e.validateSubmission(ctx, sub.Quantity, sub.Methods, sub.Parameters)
	if err != nil {
		return domain.Request{}, err
	}

	now := e.now()
	req := domain.Request{
		UUID:       uuid.NewString(),
		Quantity:   sub.Quantity,
		Methods:    sub.Methods,
		Parameters: sub.Parameters,
		TenantUUID: sub.TenantUUID,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertRequest(ctx, tx, req); err != nil {
		return domain.Request{}, err
	}
	for _, method := range sub.Methods {
		link := domain.QuantityLink{
			UUID:           uuid.NewString(),
			CapabilityUUID: caps[method].UUID,
			SubjectUUID:    req.UUID,
			CreatedAt:      now,
		}
		if err := e.Repo.InsertRequestLink(ctx, tx, link); err != nil {
			return domain.Request{}, err
		}
	}
	if err := e.Log.Append(ctx, tx, statuslog.KindRequest, req.UUID, status, logMessage); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return req, nil
}

// CreateResult validates and stores a result for an existing request. Unless
// the backing request is unsolicited, the request moves to resolved in the
// same transaction.
func (e *Engine) CreateResult(ctx context.Context, sub ResultSubmission) (domain.Result, error) {
	if len(sub.Methods) != 1 || len(sub.Parameters) != 1 {
		return domain.Result{}, fault.Validationf(
			"a result carries exactly one method and one parameter set, got %d methods and %d parameter sets",
			len(sub.Methods), len(sub.Parameters))
	}

	caps, err := e.validateSubmission(ctx, sub.Quantity, sub.Methods, sub.Parameters)
	if err != nil {
		return domain.Result{}, err
	}
	method := sub.Methods[0]

	if err := schema.Validate(caps[method].ResultOutput, sub.Data); err != nil {
		return domain.Result{}, err
	}

	req, err := e.Repo.GetRequest(ctx, sub.RequestUUID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Result{}, fault.NotFoundf("submitted result has no backing request %q", sub.RequestUUID)
	}
	if err != nil {
		return domain.Result{}, err
	}

	now := e.now()
	res := domain.Result{
		UUID:        uuid.NewString(),
		RequestUUID: req.UUID,
		Quantity:    sub.Quantity,
		Method:      method,
		Parameters:  sub.Parameters,
		Data:        sub.Data,
		TenantUUID:  sub.TenantUUID,
		Status:      domain.ResultOriginal,
		CreatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertResult(ctx, tx, res); err != nil {
		return domain.Result{}, err
	}
	link := domain.QuantityLink{
		UUID:           uuid.NewString(),
		CapabilityUUID: caps[method].UUID,
		SubjectUUID:    res.UUID,
		CreatedAt:      now,
	}
	if err := e.Repo.InsertResultLink(ctx, tx, link); err != nil {
		return domain.Result{}, err
	}
	if err := e.Log.Append(ctx, tx, statuslog.KindResult, res.UUID, domain.ResultOriginal, "result posted"); err != nil {
		return domain.Result{}, err
	}
	if req.Status != domain.RequestUnsolicited {
		if err := e.Repo.SetRequestStatus(ctx, tx, req.UUID, domain.RequestResolved, now); err != nil {
			return domain.Result{}, err
		}
		if err := e.Log.Append(ctx, tx, statuslog.KindRequest, req.UUID,
			domain.RequestResolved, "result posted for corresponding request"); err != nil {
			return domain.Result{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Result{}, err
	}
	return res, nil
}

// CreateUnsolicitedResult stores a result for which no request was posted. A
// synthetic request in status unsolicited is created to back it.
func (e *Engine) CreateUnsolicitedResult(ctx context.Context, sub ResultSubmission) (domain.Result, error) {
	if len(sub.Methods) != 1 || len(sub.Parameters) != 1 {
		return domain.Result{}, fault.Validationf(
			"a result carries exactly one method and one parameter set, got %d methods and %d parameter sets",
			len(sub.Methods), len(sub.Parameters))
	}

	req, err := e.createRequest(ctx, RequestSubmission{
		Quantity:   sub.Quantity,
		Methods:    sub.Methods,
		Parameters: sub.Parameters,
		TenantUUID: sub.TenantUUID,
	}, domain.RequestUnsolicited, "synthetic request backing an unsolicited result")
	if err != nil {
		return domain.Result{}, err
	}
	sub.RequestUUID = req.UUID
	return e.CreateResult(ctx, sub)
}

// validateSubmission checks the method and parameter key sets mirror each
// other and validates each parameter set against its capability schema. It
// returns the capability backing each method.
func (e *Engine) validateSubmission(ctx context.Context, quantity string, methods []string, parameters map[string]map[string]any) (map[string]domain.Capability, error) {
	for _, method := range methods {
		if _, ok := parameters[method]; !ok {
			return nil, fault.Validationf("method %q has no matching parameter set", method)
		}
	}
	for key := range parameters {
		found := false
		for _, method := range methods {
			if key == method {
				found = true
				break
			}
		}
		if !found {
			return nil, fault.Validationf("parameter set %q has no matching method", key)
		}
	}

	caps := make(map[string]domain.Capability, len(methods))
	for _, method := range methods {
		active, err := e.Repo.ListCapabilities(ctx, repo.CapabilityFilters{
			Quantity: quantity, Method: method, ActiveOnly: true,
		})
		if err != nil {
			return nil, err
		}
		if len(active) == 0 {
			return nil, fault.Validationf(
				"no active capability for quantity %q method %q", quantity, method)
		}
		if len(active) > 1 {
			return nil, fault.Corruptedf(
				"%d active capability rows for quantity %q method %q", len(active), quantity, method)
		}
		if err := schema.Validate(active[0].Specifications, parameters[method]); err != nil {
			return nil, err
		}
		caps[method] = active[0]
	}
	return caps, nil
}

// GetRequest returns one request by uuid.
func (e *Engine) GetRequest(ctx context.Context, id string) (domain.Request, error) {
	req, err := e.Repo.GetRequest(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Request{}, fault.NotFoundf("no request with uuid %q", id)
	}
	return req, err
}

// GetResult returns one result by uuid.
func (e *Engine) GetResult(ctx context.Context, id string) (domain.Result, error) {
	res, err := e.Repo.GetResult(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Result{}, fault.NotFoundf("no result with uuid %q", id)
	}
	return res, err
}

// GetResultByRequest returns the result posted for a request, if any.
func (e *Engine) GetResultByRequest(ctx context.Context, requestUUID string) (domain.Result, error) {
	res, err := e.Repo.ResultByRequest(ctx, requestUUID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Result{}, fault.NotFoundf("no result posted for request %q", requestUUID)
	}
	return res, err
}

// GetPendingRequests lists requests in status pending, optionally narrowed by
// quantity and method.
func (e *Engine) GetPendingRequests(ctx context.Context, quantity, method string) ([]domain.Request, error) {
	return e.Repo.ListRequests(ctx, repo.RequestFilters{
		Status:   domain.RequestPending,
		Quantity: quantity,
		Method:   method,
	})
}

// GetAllRequests lists requests regardless of status.
func (e *Engine) GetAllRequests(ctx context.Context, quantity, method string) ([]domain.Request, error) {
	return e.Repo.ListRequests(ctx, repo.RequestFilters{Quantity: quantity, Method: method})
}

// GetAllResults lists results, optionally narrowed by quantity and method.
func (e *Engine) GetAllResults(ctx context.Context, quantity, method string) ([]domain.Result, error) {
	return e.Repo.ListResults(ctx, repo.ResultFilters{Quantity: quantity, Method: method})
}

// ChangeStatusRequest moves a request to status with an annotation. Resolved
// and unsolicited are server managed and rejected as targets; requests
// already in either state cannot be moved at all. Re-annotating the current
// status is allowed.
func (e *Engine) ChangeStatusRequest(ctx context.Context, id, status, message string) (domain.Request, error) {
	switch status {
	case domain.RequestPending, domain.RequestReserved, domain.RequestRetracted:
	case domain.RequestResolved, domain.RequestUnsolicited:
		return domain.Request{}, fault.IllegalTransitionf(
			"status %q is assigned by the server and cannot be requested", status)
	default:
		return domain.Request{}, fault.Validationf("unknown request status %q", status)
	}

	req, err := e.GetRequest(ctx, id)
	if err != nil {
		return domain.Request{}, err
	}
	if req.Status == domain.RequestResolved || req.Status == domain.RequestUnsolicited {
		return domain.Request{}, fault.IllegalTransitionf(
			"request %q is %s and cannot change status", id, req.Status)
	}

	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetRequestStatus(ctx, tx, id, status, now); err != nil {
		return domain.Request{}, err
	}
	if err := e.Log.Append(ctx, tx, statuslog.KindRequest, id, status, message); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	req.Status = status
	req.UpdatedAt = now
	return req, nil
}

// ChangeStatusResult moves a result to deleted or amended. Original is the
// birth status and cannot be reached again.
func (e *Engine) ChangeStatusResult(ctx context.Context, id, status, message string) (domain.Result, error) {
	switch status {
	case domain.ResultDeleted, domain.ResultAmended:
	case domain.ResultOriginal:
		return domain.Result{}, fault.IllegalTransitionf(
			"status %q is assigned at creation and cannot be requested", status)
	default:
		return domain.Result{}, fault.Validationf("unknown result status %q", status)
	}

	res, err := e.GetResult(ctx, id)
	if err != nil {
		return domain.Result{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetResultStatus(ctx, tx, id, status); err != nil {
		return domain.Result{}, err
	}
	if err := e.Log.Append(ctx, tx, statuslog.KindResult, id, status, message); err != nil {
		return domain.Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Result{}, err
	}
	res.Status = status
	return res, nil
}

// RequestHistory returns a request's status log.
func (e *Engine) RequestHistory(ctx context.Context, id string) ([]domain.StatusLogEntry, error) {
	if _, err := e.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	return e.Log.History(ctx, statuslog.KindRequest, id)
}

// ResultHistory returns a result's status log.
func (e *Engine) ResultHistory(ctx context.Context, id string) ([]domain.StatusLogEntry, error) {
	if _, err := e.GetResult(ctx, id); err != nil {
		return nil, err
	}
	return e.Log.History(ctx, statuslog.KindResult, id)
}
