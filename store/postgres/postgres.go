/*
Package postgres implements the journal and the leave store contracts on
PostgreSQL through a pgx connection pool.

Same tables and semantics as store/sqlite. Differences:
  - schema lives in migrations/*.sql, applied by Migrate
  - request updates take a row lock (SELECT ... FOR UPDATE)
  - amounts are NUMERIC, exchanged as text to keep decimals exact
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

const uniqueViolation = "23505"

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Connect opens a pool for databaseURL.
func Connect(ctx context.Context, databaseURL string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

func (s *Store) Close() {
	s.pool.Close()
}

// =============================================================================
// JOURNAL (generic.Store)
// =============================================================================

func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	return s.appendTx(ctx, s.pool, tx)
}

func (s *Store) appendTx(ctx context.Context, q querier, tx generic.Transaction) error {
	metadata, _ := json.Marshal(tx.Metadata)
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := q.Exec(ctx, `
		INSERT INTO transactions
		(id, entity_id, policy_id, effective_at, delta_value, delta_unit,
		 tx_type, reference_id, reason, idempotency_key, metadata, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		string(tx.ID), string(tx.EntityID), string(tx.PolicyID),
		tx.EffectiveAt.Time, tx.Delta.Value.String(), string(tx.Delta.Unit),
		string(tx.Type), nullText(tx.ReferenceID), tx.Reason, nullText(tx.IdempotencyKey),
		metadata, tx.CreatedBy, createdAt,
	)
	if isUniqueViolation(err) {
		return generic.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	keys := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if keys[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		keys[tx.IdempotencyKey] = true
	}

	return pgx.BeginFunc(ctx, s.pool, func(dbTx pgx.Tx) error {
		for _, tx := range txs {
			if err := s.appendTx(ctx, dbTx, tx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Load(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID) ([]generic.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_id, policy_id, effective_at, delta_value::text, delta_unit,
		       tx_type, COALESCE(reference_id, ''), COALESCE(reason, ''),
		       COALESCE(idempotency_key, ''), metadata, COALESCE(created_by, ''), created_at
		FROM transactions
		WHERE entity_id = $1 AND policy_id = $2
		ORDER BY effective_at ASC, seq ASC
	`, string(entityID), string(policyID))
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []generic.Transaction
	for rows.Next() {
		var (
			tx               generic.Transaction
			effectiveAt      time.Time
			value, unit, typ string
			metadata         []byte
		)
		if err := rows.Scan(&tx.ID, &tx.EntityID, &tx.PolicyID, &effectiveAt, &value, &unit,
			&typ, &tx.ReferenceID, &tx.Reason, &tx.IdempotencyKey, &metadata, &tx.CreatedBy, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.EffectiveAt = generic.DayOf(effectiveAt)
		tx.Delta = generic.NewAmountFromDecimal(generic.MustParseDecimal(value), generic.Unit(unit))
		tx.Type = generic.TransactionType(typ)
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &tx.Metadata)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE idempotency_key = $1)`, idempotencyKey,
	).Scan(&exists)
	return exists, err
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

const leaveTypeColumns = `id, name, active, requires_approval, max_days_per_request,
	requires_documentation, color, policy_ref, past_date_exempt, partial_day_discouraged`

func (s *Store) SaveLeaveType(ctx context.Context, lt leave.LeaveType) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO leave_types (`+leaveTypeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			active = EXCLUDED.active,
			requires_approval = EXCLUDED.requires_approval,
			max_days_per_request = EXCLUDED.max_days_per_request,
			requires_documentation = EXCLUDED.requires_documentation,
			color = EXCLUDED.color,
			policy_ref = EXCLUDED.policy_ref,
			past_date_exempt = EXCLUDED.past_date_exempt,
			partial_day_discouraged = EXCLUDED.partial_day_discouraged
	`, lt.ID, lt.Name, lt.Active, lt.RequiresApproval, lt.MaxDaysPerRequest,
		lt.RequiresDocumentation, lt.Color, lt.PolicyRef, lt.PastDateExempt, lt.PartialDayDiscouraged)
	return err
}

func (s *Store) GetLeaveType(ctx context.Context, id string) (*leave.LeaveType, error) {
	lt, err := scanLeaveType(s.pool.QueryRow(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.ErrLeaveTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &lt, nil
}

func (s *Store) ListLeaveTypes(ctx context.Context) ([]leave.LeaveType, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (leave.LeaveType, error) {
		return scanLeaveType(row)
	})
}

func scanLeaveType(row pgx.Row) (leave.LeaveType, error) {
	var lt leave.LeaveType
	err := row.Scan(&lt.ID, &lt.Name, &lt.Active, &lt.RequiresApproval, &lt.MaxDaysPerRequest,
		&lt.RequiresDocumentation, &lt.Color, &lt.PolicyRef, &lt.PastDateExempt, &lt.PartialDayDiscouraged)
	return lt, err
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO employees (id, name, email, manager_id, team_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email,
			manager_id = EXCLUDED.manager_id, team_id = EXCLUDED.team_id
	`, e.ID, e.Name, e.Email, e.ManagerID, e.TeamID)
	return err
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	var e leave.Employee
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, manager_id, team_id FROM employees WHERE id = $1`, id,
	).Scan(&e.ID, &e.Name, &e.Email, &e.ManagerID, &e.TeamID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) TeamMembers(ctx context.Context, employeeID string) ([]leave.Employee, error) {
	self, err := s.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if self.TeamID == "" {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, manager_id, team_id FROM employees
		WHERE team_id = $1 AND id <> $2
		ORDER BY id
	`, self.TeamID, employeeID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (leave.Employee, error) {
		var e leave.Employee
		err := row.Scan(&e.ID, &e.Name, &e.Email, &e.ManagerID, &e.TeamID)
		return e, err
	})
}

// =============================================================================
// COMPANY CALENDAR
// =============================================================================

func (s *Store) SaveCompanyDay(ctx context.Context, d generic.CompanyDay) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO company_days (id, day, name, kind) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET day = EXCLUDED.day, name = EXCLUDED.name, kind = EXCLUDED.kind
	`, d.ID, generic.Midnight(d.Date), d.Name, string(d.Kind))
	return err
}

func (s *Store) Holidays(ctx context.Context, from, to time.Time) ([]generic.CompanyDay, error) {
	return s.companyDays(ctx, generic.DayHoliday, from, to)
}

func (s *Store) BlackoutDates(ctx context.Context, from, to time.Time) ([]generic.CompanyDay, error) {
	return s.companyDays(ctx, generic.DayBlackout, from, to)
}

func (s *Store) companyDays(ctx context.Context, kind generic.DayKind, from, to time.Time) ([]generic.CompanyDay, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, day, name, kind FROM company_days
		WHERE kind = $1 AND day BETWEEN $2 AND $3
		ORDER BY day
	`, string(kind), generic.Midnight(from), generic.Midnight(to))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (generic.CompanyDay, error) {
		var (
			d    generic.CompanyDay
			kind string
		)
		err := row.Scan(&d.ID, &d.Date, &d.Name, &kind)
		d.Kind = generic.DayKind(kind)
		return d, err
	})
}

// =============================================================================
// BALANCES
// =============================================================================

const balanceColumns = `employee_id, leave_type_id, total_allowance::text, used_days::text,
	remaining_days::text, carry_over_days::text, effective_date, expiration_date, version`

func (s *Store) GetBalance(ctx context.Context, employeeID, leaveTypeID string) (*leave.LeaveBalance, error) {
	b, err := scanBalance(s.pool.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM leave_balances WHERE employee_id = $1 AND leave_type_id = $2`,
		employeeID, leaveTypeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.ErrBalanceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListBalances(ctx context.Context, employeeID string) ([]leave.LeaveBalance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+balanceColumns+` FROM leave_balances
		WHERE $1 = '' OR employee_id = $1
		ORDER BY employee_id, leave_type_id
	`, employeeID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (leave.LeaveBalance, error) {
		return scanBalance(row)
	})
}

func (s *Store) SaveBalance(ctx context.Context, b leave.LeaveBalance) error {
	b.Recompute()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO leave_balances (employee_id, leave_type_id, total_allowance, used_days,
			remaining_days, carry_over_days, effective_date, expiration_date, version)
		VALUES ($1, $2, $3::text::numeric, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7, $8, $9)
		ON CONFLICT (employee_id, leave_type_id) DO UPDATE SET
			total_allowance = EXCLUDED.total_allowance,
			used_days = EXCLUDED.used_days,
			remaining_days = EXCLUDED.remaining_days,
			carry_over_days = EXCLUDED.carry_over_days,
			effective_date = EXCLUDED.effective_date,
			expiration_date = EXCLUDED.expiration_date,
			version = EXCLUDED.version
	`, b.EmployeeID, b.LeaveTypeID,
		b.TotalAllowance.String(), b.UsedDays.String(), b.RemainingDays.String(), b.CarryOverDays.String(),
		nullDate(b.EffectiveDate), nullDate(b.ExpirationDate), b.Version)
	return err
}

// CommitBalance stores next if the stored version is next.Version-1 and
// appends entry in the same transaction.
func (s *Store) CommitBalance(ctx context.Context, next leave.LeaveBalance, entry generic.Transaction) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE leave_balances SET
				total_allowance = $1::text::numeric, used_days = $2::text::numeric,
				remaining_days = $3::text::numeric, carry_over_days = $4::text::numeric,
				effective_date = $5, expiration_date = $6, version = $7
			WHERE employee_id = $8 AND leave_type_id = $9 AND version = $10
		`,
			next.TotalAllowance.String(), next.UsedDays.String(), next.RemainingDays.String(),
			next.CarryOverDays.String(), nullDate(next.EffectiveDate), nullDate(next.ExpirationDate),
			next.Version, next.EmployeeID, next.LeaveTypeID, next.Version-1,
		)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM leave_balances WHERE employee_id = $1 AND leave_type_id = $2)`,
				next.EmployeeID, next.LeaveTypeID,
			).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return generic.ErrBalanceNotFound
			}
			return generic.ErrConcurrentModification
		}
		return s.appendTx(ctx, tx, entry)
	})
}

func scanBalance(row pgx.Row) (leave.LeaveBalance, error) {
	var (
		b                             leave.LeaveBalance
		total, used, remaining, carry string
		effective, expiration         *time.Time
	)
	if err := row.Scan(&b.EmployeeID, &b.LeaveTypeID, &total, &used, &remaining, &carry,
		&effective, &expiration, &b.Version); err != nil {
		return b, err
	}
	b.TotalAllowance = generic.MustParseDecimal(total)
	b.UsedDays = generic.MustParseDecimal(used)
	b.RemainingDays = generic.MustParseDecimal(remaining)
	b.CarryOverDays = generic.MustParseDecimal(carry)
	if effective != nil {
		b.EffectiveDate = *effective
	}
	if expiration != nil {
		b.ExpirationDate = *expiration
	}
	return b, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `id, requester_id, leave_type_id, manager_id, start_date, end_date,
	partial_day, partial_day_hours::text, comment, attachment_ref, status, reviewer_id,
	reviewer_comment, reviewed_at, submitted_at, modified_at, calendar_event_id,
	notification_sent, total_days::text, reminded_at`

func (s *Store) Create(ctx context.Context, req *leave.LeaveRequest) (string, error) {
	r := *req
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ModifiedAt.IsZero() {
		r.ModifiedAt = s.now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO leave_requests (id, requester_id, leave_type_id, manager_id, start_date, end_date,
			partial_day, partial_day_hours, comment, attachment_ref, status, reviewer_id,
			reviewer_comment, reviewed_at, submitted_at, modified_at, calendar_event_id,
			notification_sent, total_days, reminded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19::text::numeric, $20)
	`,
		r.ID, r.RequesterID, r.LeaveTypeID, r.ManagerID, nullDate(r.StartDate), nullDate(r.EndDate),
		r.PartialDay, r.PartialDayHours.String(), r.Comment, r.AttachmentRef, string(r.Status), r.ReviewerID,
		r.ReviewerComment, r.ReviewedAt, nullTime(r.SubmittedAt), nullTime(r.ModifiedAt), r.CalendarEventID,
		r.NotificationSent, r.TotalDays.String(), r.RemindedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert request: %w", err)
	}
	return r.ID, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	return getRequest(ctx, s.pool, id, "")
}

// Update applies patch under a row lock, refusing it when the stored
// status differs from patch.ExpectStatus.
func (s *Store) Update(ctx context.Context, id string, patch leave.RequestPatch) (*leave.LeaveRequest, error) {
	var updated *leave.LeaveRequest
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		r, err := getRequest(ctx, tx, id, " FOR UPDATE")
		if err != nil {
			return err
		}
		if err := patch.CheckExpected(r); err != nil {
			return err
		}
		patch.Apply(r)
		r.ModifiedAt = s.now()

		_, err = tx.Exec(ctx, `
			UPDATE leave_requests SET
				status = $1, reviewer_id = $2, reviewer_comment = $3, reviewed_at = $4,
				calendar_event_id = $5, notification_sent = $6, reminded_at = $7, modified_at = $8
			WHERE id = $9
		`, string(r.Status), r.ReviewerID, r.ReviewerComment, r.ReviewedAt,
			r.CalendarEventID, r.NotificationSent, r.RemindedAt, r.ModifiedAt, id)
		if err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) ListByRequester(ctx context.Context, requesterID string) ([]leave.LeaveRequest, error) {
	return s.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM leave_requests WHERE requester_id = $1 ORDER BY start_date`, requesterID)
}

func (s *Store) ListAll(ctx context.Context) ([]leave.LeaveRequest, error) {
	return s.queryRequests(ctx, `SELECT `+requestColumns+` FROM leave_requests ORDER BY submitted_at`)
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]leave.LeaveRequest, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (leave.LeaveRequest, error) {
		return scanRequest(row)
	})
}

func getRequest(ctx context.Context, q querier, id, lock string) (*leave.LeaveRequest, error) {
	r, err := scanRequest(q.QueryRow(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = $1`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRequest(row pgx.Row) (leave.LeaveRequest, error) {
	var (
		r                    leave.LeaveRequest
		start, end           *time.Time
		submitted, modified  *time.Time
		hours, total, status string
	)
	err := row.Scan(
		&r.ID, &r.RequesterID, &r.LeaveTypeID, &r.ManagerID, &start, &end,
		&r.PartialDay, &hours, &r.Comment, &r.AttachmentRef, &status, &r.ReviewerID,
		&r.ReviewerComment, &r.ReviewedAt, &submitted, &modified, &r.CalendarEventID,
		&r.NotificationSent, &total, &r.RemindedAt,
	)
	if err != nil {
		return r, err
	}
	r.Status = leave.Status(status)
	r.PartialDayHours = generic.MustParseDecimal(hours)
	r.TotalDays = generic.MustParseDecimal(total)
	if start != nil {
		r.StartDate = *start
	}
	if end != nil {
		r.EndDate = *end
	}
	if submitted != nil {
		r.SubmittedAt = *submitted
	}
	if modified != nil {
		r.ModifiedAt = *modified
	}
	return r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	d := generic.Midnight(t)
	return &d
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
