/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the approval workflow, bulk operations and balance views via
  REST. Handles HTTP request/response and JSON serialization and
  delegates every decision to the leave package.

ENDPOINTS:
  Leave types:
    GET    /api/leave-types                 List leave types (?active=true)

  Requests:
    POST   /api/requests                    Submit a request
    POST   /api/requests/validate           Dry-run validation
    GET    /api/requests                    List (?requester=, ?status=)
    GET    /api/requests/{id}               Get one request
    POST   /api/requests/{id}/approve       Manager approval
    POST   /api/requests/{id}/reject        Manager rejection
    POST   /api/requests/{id}/cancel        Cancellation (pending or approved)
    POST   /api/requests/bulk               Submit up to the bulk cap
    POST   /api/requests/bulk/approve       Approve up to the bulk cap

  Balances:
    GET    /api/employees/{id}/balances                            Summary
    PUT    /api/employees/{id}/balances/{leaveTypeId}              Admin upsert
    GET    /api/employees/{id}/balances/{leaveTypeId}/transactions Journal
    GET    /api/employees/{id}/dashboard                           Dashboard

  Admin:
    POST   /api/admin/reminders             Run reminders now

IDENTITY:
  The X-Employee-ID header names the caller. It fills requester_id and
  reviewer_id when the body leaves them empty.

ERROR HANDLING:
  - 400: malformed body, failed field validation
  - 404: unknown request, leave type, employee
  - 409: illegal transition, concurrent modification
  - 422: invalid verdict, insufficient balance, rejected batch
  - 502: a fatal collaborator failed and was compensated
  - 500: anything else (details are logged, not returned)

SEE ALSO:
  - dto.go:    Request/response data structures
  - errors.go: Error mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Deps lists what the handlers delegate to. Reminders may be nil, which
// disables the admin reminder endpoint.
type Deps struct {
	Workflow   *leave.Workflow
	Bulk       *leave.BulkCoordinator
	Overview   *leave.Overview
	Ledger     *leave.BalanceLedger
	LeaveTypes leave.LeaveTypeCatalog
	Requests   leave.RequestStore
	Reminders  ReminderRunner
}

type Handler struct {
	Deps

	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(deps Deps, logger ...*zap.Logger) *Handler {
	l := zap.L().Named("api")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("api")
	}
	return &Handler{Deps: deps, validate: newValidate(), logger: l}
}

func (h *Handler) log(r *http.Request) *zap.Logger {
	return h.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

// ListLeaveTypes returns the catalog.
// GET /api/leave-types
func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.LeaveTypes.ListLeaveTypes(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to list leave types", err)
		return
	}
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))

	out := make([]LeaveTypeDTO, 0, len(types))
	for _, lt := range types {
		if activeOnly && !lt.Active {
			continue
		}
		out = append(out, toLeaveTypeDTO(lt))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmitRequest validates and stores a new request.
// POST /api/requests
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if !h.fillRequester(w, r, &req) {
		return
	}

	result, err := h.Workflow.Submit(r.Context(), req.toDraft())
	if err != nil {
		h.writeDomainError(w, r, "Failed to submit request", err)
		return
	}

	resp := SubmitResponse{
		Verdict:      toVerdictDTO(result.Verdict),
		Conflicts:    toConflictDTOs(result.Conflicts),
		AutoApproved: result.AutoApproved,
	}
	if result.Request == nil {
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	dto := toRequestDTO(*result.Request)
	resp.Request = &dto
	writeJSON(w, http.StatusCreated, resp)
}

// ValidateRequest runs every submission check without storing anything.
// POST /api/requests/validate
func (h *Handler) ValidateRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if !h.fillRequester(w, r, &req) {
		return
	}

	eval, err := h.Workflow.Validate(r.Context(), req.toDraft())
	if err != nil {
		h.writeDomainError(w, r, "Failed to validate request", err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{
		Verdict:   toVerdictDTO(eval.Verdict),
		Conflicts: toConflictDTOs(eval.Conflicts),
	})
}

func (h *Handler) fillRequester(w http.ResponseWriter, r *http.Request, req *SubmitRequest) bool {
	if req.RequesterID == "" {
		req.RequesterID = r.Header.Get(EmployeeHeader)
	}
	if req.RequesterID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Requester Id is required", nil)
		return false
	}
	return true
}

// =============================================================================
// QUERIES
// =============================================================================

// GetRequest returns one request.
// GET /api/requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Workflow.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

// ListRequests lists requests, optionally for one requester and status.
// GET /api/requests?requester=&status=
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status leave.Status
	if s := q.Get("status"); s != "" {
		parsed, ok := leave.ParseStatus(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_input", "Unknown status "+strconv.Quote(s), nil)
			return
		}
		status = parsed
	}

	var (
		reqs []leave.LeaveRequest
		err  error
	)
	if requester := q.Get("requester"); requester != "" {
		reqs, err = h.Requests.ListByRequester(r.Context(), requester)
	} else {
		reqs, err = h.Requests.ListAll(r.Context())
	}
	if err != nil {
		h.writeDomainError(w, r, "Failed to list requests", err)
		return
	}

	out := make([]RequestDTO, 0, len(reqs))
	for _, req := range reqs {
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, toRequestDTO(req))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// DECISIONS
// =============================================================================

// ApproveRequest approves a pending request.
// POST /api/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decision(w, r)
	if !ok {
		return
	}
	req, err := h.Workflow.Approve(r.Context(), chi.URLParam(r, "id"), body.ReviewerID, body.Comment)
	if err != nil {
		h.writeDomainError(w, r, "Failed to approve request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

// RejectRequest rejects a pending request.
// POST /api/requests/{id}/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decision(w, r)
	if !ok {
		return
	}
	req, err := h.Workflow.Reject(r.Context(), chi.URLParam(r, "id"), body.ReviewerID, body.Comment)
	if err != nil {
		h.writeDomainError(w, r, "Failed to reject request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

// CancelRequest cancels a pending or approved request.
// POST /api/requests/{id}/cancel
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decision(w, r)
	if !ok {
		return
	}
	req, err := h.Workflow.Cancel(r.Context(), chi.URLParam(r, "id"), body.ReviewerID)
	if err != nil {
		h.writeDomainError(w, r, "Failed to cancel request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

// decision reads an optional DecisionRequest body; the actor defaults
// to the caller.
func (h *Handler) decision(w http.ResponseWriter, r *http.Request) (DecisionRequest, bool) {
	var body DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid request body", err)
		return body, false
	}
	if err := h.validate.Struct(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", validationMessage(err), nil)
		return body, false
	}
	if body.ReviewerID == "" {
		body.ReviewerID = r.Header.Get(EmployeeHeader)
	}
	if body.ReviewerID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Reviewer Id is required", nil)
		return body, false
	}
	return body, true
}

// =============================================================================
// BULK
// =============================================================================

// BulkSubmit submits several requests; one failing does not stop the rest.
// POST /api/requests/bulk
func (h *Handler) BulkSubmit(w http.ResponseWriter, r *http.Request) {
	var body BulkSubmitRequest
	if !h.decodeAndValidate(w, r, &body) {
		return
	}

	caller := r.Header.Get(EmployeeHeader)
	drafts := make([]leave.LeaveRequest, 0, len(body.Requests))
	for _, req := range body.Requests {
		if req.RequesterID == "" {
			req.RequesterID = caller
		}
		drafts = append(drafts, req.toDraft())
	}

	result, err := h.Bulk.SubmitBatch(r.Context(), drafts)
	h.writeBatch(w, r, result, err)
}

// BulkApprove approves several requests.
// POST /api/requests/bulk/approve
func (h *Handler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	var body BulkApproveRequest
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	if body.ReviewerID == "" {
		body.ReviewerID = r.Header.Get(EmployeeHeader)
	}
	if body.ReviewerID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Reviewer Id is required", nil)
		return
	}

	result, err := h.Bulk.ApproveBatch(r.Context(), body.RequestIDs, body.ReviewerID, body.Comment)
	h.writeBatch(w, r, result, err)
}

// writeBatch answers 422 with the batch verdict when the whole batch was
// refused, and 200 with per-item outcomes otherwise.
func (h *Handler) writeBatch(w http.ResponseWriter, r *http.Request, result *leave.BatchResult, err error) {
	if errors.Is(err, generic.ErrBatchRejected) && result != nil {
		writeJSON(w, http.StatusUnprocessableEntity, toBatchResultDTO(*result))
		return
	}
	if err != nil {
		h.writeDomainError(w, r, "Bulk operation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(*result))
}

// =============================================================================
// BALANCES
// =============================================================================

// GetBalances returns the balance summary of one employee.
// GET /api/employees/{id}/balances
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Overview.Balances(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get balances", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceSummaryDTO(summary))
}

// UpsertBalance creates or replaces an allowance. Used days are kept.
// PUT /api/employees/{id}/balances/{leaveTypeId}
func (h *Handler) UpsertBalance(w http.ResponseWriter, r *http.Request) {
	var body UpsertBalanceRequest
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	employeeID, leaveTypeID := chi.URLParam(r, "id"), chi.URLParam(r, "leaveTypeId")
	if _, err := h.LeaveTypes.GetLeaveType(r.Context(), leaveTypeID); err != nil {
		h.writeDomainError(w, r, "Unknown leave type", err)
		return
	}

	saved, err := h.Ledger.Upsert(r.Context(), body.toBalance(employeeID, leaveTypeID))
	if err != nil {
		h.writeDomainError(w, r, "Failed to save balance", err)
		return
	}
	h.log(r).Info("balance upserted",
		zap.String("employee_id", employeeID),
		zap.String("leave_type_id", leaveTypeID),
		zap.String("actor", r.Header.Get(EmployeeHeader)),
	)
	writeJSON(w, http.StatusOK, toBalanceDTO(leave.BalanceView{LeaveBalance: *saved}))
}

// ListTransactions returns the journal behind one balance.
// GET /api/employees/{id}/balances/{leaveTypeId}/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Ledger.Transactions(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "leaveTypeId"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to list transactions", err)
		return
	}
	out := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionDTO(tx))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetDashboard returns request counts and balance highlights.
// GET /api/employees/{id}/dashboard
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Overview.Dashboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to build dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardDTO(d))
}

// =============================================================================
// ADMIN
// =============================================================================

// RunReminders sends pending-approval reminders and expiry warnings now.
// POST /api/admin/reminders
func (h *Handler) RunReminders(w http.ResponseWriter, r *http.Request) {
	if h.Reminders == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "Reminders are not configured", nil)
		return
	}
	report, err := h.Reminders.Run(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Reminder run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ReminderReportDTO{
		RemindersSent: report.RemindersSent,
		WarningsSent:  report.WarningsSent,
		Failed:        report.Failed,
	})
}
