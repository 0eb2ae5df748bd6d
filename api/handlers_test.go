/*
handlers_test.go - HTTP tests for the leave API

Tests for:
- Submit / approve / cancel round trip with balance and journal effects
- Payload validation messages and identity fallback
- Status mapping of domain errors
- Bulk cap, admin balance upsert, rate limiting
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
	"go.uber.org/zap"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testNow is Monday 2024-01-01 09:00 UTC.
func testNow() time.Time { return time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC) }

type testServer struct {
	store  *memory.Store
	router http.Handler
}

func newTestServer(t *testing.T, opts RouterOptions, reminders ReminderRunner) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	s := memory.New()
	s.PutLeaveType(leave.LeaveType{ID: "annual", Name: "Annual Leave", Active: true, RequiresApproval: true})
	s.PutLeaveType(leave.LeaveType{ID: "legacy", Name: "Legacy Leave", Active: false})
	s.PutEmployee(leave.Employee{ID: "emp-1", Name: "Alice", Email: "alice@example.com", ManagerID: "mgr-1", TeamID: "team-a"})
	s.PutEmployee(leave.Employee{ID: "mgr-1", Name: "Morgan", Email: "morgan@example.com"})

	b := leave.LeaveBalance{
		EmployeeID:     "emp-1",
		LeaveTypeID:    "annual",
		TotalAllowance: generic.MustParseDecimal("10"),
		EffectiveDate:  time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ExpirationDate: time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
		Version:        1,
	}
	b.Recompute()
	require.NoError(t, s.SaveBalance(ctx, b))

	locks := generic.NewKeyedMutex()
	ledger := leave.NewBalanceLedger(s, generic.NewLedger(s), locks, logger)
	workflow := leave.NewWorkflow(leave.Deps{
		Requests:   s,
		LeaveTypes: s,
		Balances:   s,
		Ledger:     ledger,
		Directory:  s,
		Conflicts:  leave.NewConflictDetector(s, s, s),
		Locks:      locks,
		Now:        testNow,
	}, logger)
	overview := leave.NewOverview(s, s, s, 30)
	overview.Now = testNow

	h := NewHandler(Deps{
		Workflow:   workflow,
		Bulk:       leave.NewBulkCoordinator(workflow, 10, logger),
		Overview:   overview,
		Ledger:     ledger,
		LeaveTypes: s,
		Requests:   s,
		Reminders:  reminders,
	}, logger)

	return &testServer{store: s, router: NewRouter(h, opts)}
}

func (ts *testServer) do(t *testing.T, method, path, employee string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if employee != "" {
		req.Header.Set(EmployeeHeader, employee)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func annualRequest(start, end string) SubmitRequest {
	return SubmitRequest{LeaveTypeID: "annual", StartDate: start, EndDate: end}
}

// =============================================================================
// WORKFLOW ROUND TRIP
// =============================================================================

func TestSubmitApproveCancel(t *testing.T) {
	ts := newTestServer(t, RouterOptions{}, nil)

	// GIVEN: alice submits three weekdays of annual leave
	rec := ts.do(t, http.MethodPost, "/api/requests", "emp-1", annualRequest("2024-01-08", "2024-01-10"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	submitted := decode[SubmitResponse](t, rec)
	require.NotNil(t, submitted.Request)
	assert.True(t, submitted.Verdict.Valid)
	assert.Equal(t, "pending", submitted.Request.Status)
	assert.Equal(t, "emp-1", submitted.Request.RequesterID)
	assert.Equal(t, "mgr-1", submitted.Request.ManagerID)
	assert.Equal(t, 3.0, submitted.Request.TotalDays)
	id := submitted.Request.ID

	// WHEN: her manager approves
	rec = ts.do(t, http.MethodPost, "/api/requests/"+id+"/approve", "mgr-1", DecisionRequest{Comment: "Enjoy"})

	// THEN: the request is approved and the balance charged
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[RequestDTO](t, rec)
	assert.Equal(t, "approved", approved.Status)
	assert.Equal(t, "mgr-1", approved.ReviewerID)
	assert.Equal(t, "Enjoy", approved.ReviewerComment)

	summary := decode[BalanceSummaryDTO](t, ts.do(t, http.MethodGet, "/api/employees/emp-1/balances", "", nil))
	require.Len(t, summary.Balances, 1)
	assert.Equal(t, 7.0, summary.Balances[0].RemainingDays)
	assert.Equal(t, "Annual Leave", summary.Balances[0].LeaveTypeName)

	txs := decode[[]TransactionDTO](t, ts.do(t, http.MethodGet, "/api/employees/emp-1/balances/annual/transactions", "", nil))
	require.Len(t, txs, 1)
	assert.Equal(t, "consumption", txs[0].Type)
	assert.Equal(t, -3.0, txs[0].Delta)

	// AND: approving twice is an invalid transition
	rec = ts.do(t, http.MethodPost, "/api/requests/"+id+"/approve", "mgr-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, rec).Code)

	// WHEN: alice cancels the approved request
	rec = ts.do(t, http.MethodPost, "/api/requests/"+id+"/cancel", "emp-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode[RequestDTO](t, rec).Status)

	// THEN: the days come back
	summary = decode[BalanceSummaryDTO](t, ts.do(t, http.MethodGet, "/api/employees/emp-1/balances", "", nil))
	assert.Equal(t, 10.0, summary.Balances[0].RemainingDays)
}

func TestRejectRequest(t *testing.T) {
	ts := newTestServer(t, RouterOptions{}, nil)
	rec := ts.do(t, http.MethodPost, "/api/requests", "emp-1", annualRequest("2024-01-08", "2024-01-08"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[SubmitResponse](t, rec).Request.ID

	rec = ts.do(t, http.MethodPost, "/api/requests/"+id+"/reject", "", DecisionRequest{ReviewerID: "mgr-1", Comment: "Release week"})

	require.Equal(t, http.StatusOK, rec.Code)
	rejected := decode[RequestDTO](t, rec)
	assert.Equal(t, "rejected", rejected.Status)
	assert.NotNil(t, rejected.ReviewedAt)
}

func TestDecision_RequiresReviewer(t *testing.T) {
	ts := newTestServer(t, RouterOptions{}, nil)

	rec := ts.do(t, http.MethodPost, "/api/requests/any/approve", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Reviewer Id is required", decode[ErrorResponse](t, rec).Error)
}

// =============================================================================
// SUBMISSION ERRORS
// =============================================================================

func TestSubmit_PayloadValidation(t *testing.T) {
	ts := newTestServer(t, RouterOptions{}, nil)

	tests := []struct {
		name     string
		employee string
		body     any
		wantMsg  string
	}{
		{"missing start date", "emp-1", SubmitRequest{LeaveTypeID: "annual", EndDate: "2024-01-08"}, "Start Date is required"},
		{"bad date format", "emp-1", annualRequest("08/01/2024", "2024-01-08"), "Start Date must be a date in YYYY-MM-DD format"},
		{"missing leave type", "emp-1", SubmitRequest{StartDate: "2024-01-08", EndDate: "2024-01-08"}, "Leave Type Id is required"},
		{"no requester", "", annualRequest("2024-01-08", "2024-01-08"), "Requester Id is required"},
		{"not json", "emp-1", "just text", "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/requests", tt.employee, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantMsg, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestSubmit_InvalidVerdict(t *testing.T) {
	ts := newTestServer(t, RouterOptions{}, nil)

	rec := ts.do(t, http.MethodPost, "/api/requests", "emp-1", annualRequest("2024-01-10", "2024-01-08"))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[SubmitResponse](t, rec)
	assert.Nil(t, resp.Request)
	assert.False(t, resp.Verdict.Valid)
	assert.Contains(t, resp.Verdict.Errors, "End date must be after or equal to start date")

	all := decode[[]RequestDTO](t, ts.do(t, http.MethodGet, "/api/requests", "", nil))
	assert.Empty(t, all, "nothing is stored")
}

func TestValidateRequest_DryRun(t *testing.T) {
	ts := newTestServer(t, RouterOptions{}, nil)

	rec := ts.do(t, http.MethodPost, "/api/requests/validate", "emp-1", SubmitRequest{
		LeaveTypeID: "unknown", StartDate: "2024-01-08", EndDate: "2024-01-08",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SubmitResponse](t, rec)
	assert.Equal(t, []string{"Invalid leave type selected"}, resp.Verdict.Errors)

	all := decode[[]RequestDTO](t, ts.do(t, http.MethodGet, "/api/requests", "", nil))
	assert.Empty(t, all)
}

func TestGetRequest_NotFound(t *testing.T) {
	ts := newTestServer(t, RouterOptions{}, nil)

	rec := ts.do(t, http.MethodGet, "/api/requests/nope", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// LISTING
// =============================================================================

func TestListRequests_Filters(t *testing.T) {
	ts := newTestServer(t, RouterOptions{}, nil)
	for _, start := range []string{"2024-01-08", "2024-01-15"} {
		rec := ts.do(t, http.MethodPost, "/api/requests", "emp-1", annualRequest(start, start))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	first := decode[[]RequestDTO](t, ts.do(t, http.MethodGet, "/api/requests?requester=emp-1", "", nil))
	require.Len(t, first, 2)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/requests/"+first[0].ID+"/approve", "mgr-1", nil).Code)

	pending := decode[[]RequestDTO](t, ts.do(t, http.MethodGet, "/api/requests?requester=emp-1&status=pending", "", nil))
	require.Len(t, pending, 1)
	assert.Equal(t, first[1].ID, pending[0].ID)

	rec := ts.do(t, http.MethodGet, "/api/requests?status=lost", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	got := decode[RequestDTO](t, ts.do(t, http.MethodGet, "/api/requests/"+first[0].ID, "", nil))
	assert.Equal(t, "approved", got.Status)
}

func TestListLeaveTypes(t *testing.T) {
	ts := newTestServer(t, RouterOptions{}, nil)

	all := decode[[]LeaveTypeDTO](t, ts.do(t, http.MethodGet, "/api/leave-types", "", nil))
	active := decode[[]LeaveTypeDTO](t, ts.do(t, http.MethodGet, "/api/leave-types?active=true", "", nil))

	assert.Len(t, all, 2)
	require.Len(t, active, 1)
	assert.Equal(t, "annual", active[0].ID)
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t, RouterOptions{}, nil)
	rec := ts.do(t, http.MethodPost, "/api/requests", "emp-1", annualRequest("2024-01-08", "2024-01-09"))
	require.Equal(t, http.StatusCreated, rec.Code)

	d := decode[DashboardDTO](t, ts.do(t, http.MethodGet, "/api/employees/emp-1/dashboard", "", nil))

	assert.Equal(t, 1, d.TotalRequests)
	assert.Equal(t, 1, d.PendingRequests)
	assert.Equal(t, 0, d.ApprovedRequests)
	assert.Equal(t, 10.0, d.TotalRemaining)
}

// =============================================================================
// BULK
// =============================================================================

func TestBulkSubmit(t *testing.T) {
	ts := newTestServer(t, RouterOptions{}, nil)

	t.Run("over the cap", func(t *testing.T) {
		var body BulkSubmitRequest
		for i := 0; i < 11; i++ {
			body.Requests = append(body.Requests, annualRequest("2024-02-05", "2024-02-05"))
		}
		rec := ts.do(t, http.MethodPost, "/api/requests/bulk", "emp-1", body)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		res := decode[BatchResultDTO](t, rec)
		assert.Equal(t, []string{"Bulk operation limited to 10 requests. Provided: 11"}, res.Verdict.Errors)
		assert.Empty(t, res.Items)
	})

	t.Run("mixed outcomes", func(t *testing.T) {
		body := BulkSubmitRequest{Requests: []SubmitRequest{
			annualRequest("2024-03-04", "2024-03-04"),
			{LeaveTypeID: "unknown", StartDate: "2024-03-11", EndDate: "2024-03-11"},
		}}
		rec := ts.do(t, http.MethodPost, "/api/requests/bulk", "emp-1", body)

		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[BatchResultDTO](t, rec)
		require.Len(t, res.Items, 2)
		assert.True(t, res.Items[0].OK)
		assert.False(t, res.Items[1].OK)
		assert.Equal(t, 1, res.Failed)

		approve := BulkApproveRequest{RequestIDs: []string{res.Items[0].RequestID, "missing"}}
		rec = ts.do(t, http.MethodPost, "/api/requests/bulk/approve", "mgr-1", approve)
		require.Equal(t, http.StatusOK, rec.Code)
		approved := decode[BatchResultDTO](t, rec)
		assert.Equal(t, 1, approved.Failed)
		assert.Equal(t, "approved", approved.Items[0].Request.Status)
	})
}

// =============================================================================
// ADMIN
// =============================================================================

func TestUpsertBalance(t *testing.T) {
	ts := newTestServer(t, RouterOptions{}, nil)

	rec := ts.do(t, http.MethodPut, "/api/employees/emp-2/balances/annual", "hr-1", map[string]any{
		"total_allowance": 15, "carry_over_days": 2, "effective_date": "2024-01-01", "expiration_date": "2024-12-31",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[BalanceDTO](t, rec)
	assert.Equal(t, 17.0, saved.RemainingDays)
	assert.Equal(t, int64(1), saved.Version)

	rec = ts.do(t, http.MethodPut, "/api/employees/emp-2/balances/annual", "hr-1", map[string]any{"total_allowance": 400})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_balance", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodPut, "/api/employees/emp-2/balances/annual", "hr-1", map[string]any{"carry_over_days": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Total Allowance is required", decode[ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPut, "/api/employees/emp-2/balances/nope", "hr-1", map[string]any{"total_allowance": 5})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubRunner struct {
	report leave.ReminderReport
	err    error
	calls  chan struct{}
}

func (s *stubRunner) Run(ctx context.Context) (leave.ReminderReport, error) {
	select {
	case s.calls <- struct{}{}:
	default:
	}
	return s.report, s.err
}

func TestRunReminders(t *testing.T) {
	ts := newTestServer(t, RouterOptions{}, &stubRunner{report: leave.ReminderReport{RemindersSent: 2, WarningsSent: 1}})

	rec := ts.do(t, http.MethodPost, "/api/admin/reminders", "hr-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ReminderReportDTO{RemindersSent: 2, WarningsSent: 1}, decode[ReminderReportDTO](t, rec))

	unconfigured := newTestServer(t, RouterOptions{}, nil)
	assert.Equal(t, http.StatusNotImplemented, unconfigured.do(t, http.MethodPost, "/api/admin/reminders", "", nil).Code)
}

// =============================================================================
// MIDDLEWARE AND MAPPING
// =============================================================================

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, RouterOptions{RateLimitPerSecond: 0.001, RateLimitBurst: 1}, nil)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/leave-types", "emp-1", nil).Code)
	rec := ts.do(t, http.MethodGet, "/api/leave-types", "emp-1", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode[ErrorResponse](t, rec).Code)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/leave-types", "emp-2", nil).Code, "buckets are per employee")
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", fmt.Errorf("load: %w", generic.ErrRequestNotFound), http.StatusNotFound, "not_found"},
		{"invalid transition", &generic.InvalidTransitionError{RequestID: "r", Action: "approve", From: "approved"}, http.StatusConflict, "invalid_transition"},
		{"lock", generic.ErrLockNotAcquired, http.StatusConflict, "conflict"},
		{"insufficient wins over dependency", &generic.DependencyError{Step: "consume_balance", Fatal: true, Err: generic.ErrInsufficientBalance}, http.StatusUnprocessableEntity, "insufficient_balance"},
		{"dependency", &generic.DependencyError{Step: "persist_status", Fatal: true, Err: errors.New("disk full")}, http.StatusBadGateway, "dependency_failure"},
		{"invalid balance", &leave.InvalidBalanceError{Problems: []string{"x"}}, http.StatusUnprocessableEntity, "invalid_balance"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := errorStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestFormatFieldName(t *testing.T) {
	assert.Equal(t, "Partial Day Hours", formatFieldName("partial_day_hours"))
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, RouterOptions{}, nil)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", "", nil).Code)
}
