/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the balance journal (generic.Store) and every leave store
  contract (requests, leave types, balances, directory, company calendar)
  on a single SQLite database. The PostgreSQL store follows the same
  shape with dialect differences only.

INTERFACES IMPLEMENTED:
  generic.Store:          Journal persistence
  leave.RequestStore:     Leave requests with status-conditional updates
  leave.LeaveTypeCatalog: Leave type definitions
  leave.BalanceStore:     Balance snapshots, CommitBalance version CAS
  leave.Directory:        Employees, managers, teams
  leave.CompanyCalendar:  Holidays and blackout dates

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the transactions table
  - No DELETE statements on the transactions table
  - Corrections via reversal transactions only

KEY TABLES:
  transactions:   Immutable journal of balance changes
  leave_balances: Current snapshot per (employee, leave type), versioned
  leave_requests: Requests and their workflow state
  leave_types:    Catalog
  employees:      Directory
  company_days:   Holidays and blackout dates

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so
  ":memory:" databases are shared by every statement. CommitBalance
  updates the snapshot only if its version is the expected one and
  writes the journal entry in the same SQL transaction.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  journal := generic.NewLedger(store)

SEE ALSO:
  - generic/store.go: Journal interface
  - leave/ports.go: Leave store contracts
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a new SQLite store with the given database path and
// migrates its schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := Open(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Open wraps an already opened database. The schema is assumed to exist.
func Open(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Transactions (append-only journal)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_entity_policy_date
		ON transactions(entity_id, policy_id, effective_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL;

	-- Leave types
	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		requires_approval BOOLEAN NOT NULL DEFAULT TRUE,
		max_days_per_request INTEGER NOT NULL DEFAULT 0,
		requires_documentation BOOLEAN NOT NULL DEFAULT FALSE,
		color TEXT,
		policy_ref TEXT,
		past_date_exempt BOOLEAN NOT NULL DEFAULT FALSE,
		partial_day_discouraged BOOLEAN NOT NULL DEFAULT FALSE
	);

	-- Employees
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		manager_id TEXT,
		team_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_employees_team
		ON employees(team_id);

	-- Balance snapshots
	CREATE TABLE IF NOT EXISTS leave_balances (
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		total_allowance TEXT NOT NULL,
		used_days TEXT NOT NULL,
		remaining_days TEXT NOT NULL,
		carry_over_days TEXT NOT NULL,
		effective_date TEXT,
		expiration_date TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (employee_id, leave_type_id)
	);

	-- Leave requests
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		requester_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		manager_id TEXT,
		start_date TEXT,
		end_date TEXT,
		partial_day BOOLEAN NOT NULL DEFAULT FALSE,
		partial_day_hours TEXT NOT NULL DEFAULT '0',
		comment TEXT,
		attachment_ref TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		reviewer_id TEXT,
		reviewer_comment TEXT,
		reviewed_at TEXT,
		submitted_at TEXT,
		modified_at TEXT,
		calendar_event_id TEXT,
		notification_sent BOOLEAN NOT NULL DEFAULT FALSE,
		total_days TEXT NOT NULL DEFAULT '0',
		reminded_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_requester
		ON leave_requests(requester_id);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status);

	-- Company holidays and blackout dates
	CREATE TABLE IF NOT EXISTS company_days (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_company_days_kind_date
		ON company_days(kind, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTION STORE (generic.Store interface)
// =============================================================================

// Append adds a transaction to the journal.
func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendTx(ctx, s.db, tx)
}

func (s *Store) appendTx(ctx context.Context, db execer, tx generic.Transaction) error {
	metadataJSON, _ := json.Marshal(tx.Metadata)
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	query := `
		INSERT INTO transactions
		(id, entity_id, policy_id, effective_at, delta_value, delta_unit,
		 tx_type, reference_id, reason, idempotency_key, metadata_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		tx.ID,
		tx.EntityID,
		tx.PolicyID,
		tx.EffectiveAt.Time.Format(time.RFC3339),
		tx.Delta.Value.String(),
		tx.Delta.Unit,
		tx.Type,
		nullString(tx.ReferenceID),
		tx.Reason,
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		tx.CreatedBy,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idempotencyKeys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if idempotencyKeys[tx.IdempotencyKey] {
				return generic.ErrDuplicateIdempotencyKey
			}
			idempotencyKeys[tx.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := s.appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// Load returns all transactions for an entity+policy.
func (s *Store) Load(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, entity_id, policy_id, effective_at, delta_value, delta_unit,
		       tx_type, reference_id, reason, idempotency_key, metadata_json, created_by, created_at
		FROM transactions
		WHERE entity_id = ? AND policy_id = ?
		ORDER BY effective_at ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, entityID, policyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		effectiveAt    string
		deltaValue     string
		deltaUnit      string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&tx.ID, &tx.EntityID, &tx.PolicyID,
		&effectiveAt, &deltaValue, &deltaUnit, &tx.Type,
		&referenceID, &reason, &idempotencyKey, &metadataJSON, &createdBy, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	t, _ := time.Parse(time.RFC3339, effectiveAt)
	tx.EffectiveAt = generic.TimePoint{Time: t}
	tx.Delta = parseAmount(deltaValue, deltaUnit)
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String
	tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata)
	}

	return tx, nil
}

// =============================================================================
// LEAVE TYPES (leave.LeaveTypeCatalog)
// =============================================================================

const leaveTypeColumns = `id, name, active, requires_approval, max_days_per_request,
	requires_documentation, color, policy_ref, past_date_exempt, partial_day_discouraged`

// SaveLeaveType inserts or replaces a leave type.
func (s *Store) SaveLeaveType(ctx context.Context, lt leave.LeaveType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO leave_types (` + leaveTypeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active,
			requires_approval = excluded.requires_approval,
			max_days_per_request = excluded.max_days_per_request,
			requires_documentation = excluded.requires_documentation,
			color = excluded.color,
			policy_ref = excluded.policy_ref,
			past_date_exempt = excluded.past_date_exempt,
			partial_day_discouraged = excluded.partial_day_discouraged
	`
	_, err := s.db.ExecContext(ctx, query,
		lt.ID, lt.Name, lt.Active, lt.RequiresApproval, lt.MaxDaysPerRequest,
		lt.RequiresDocumentation, lt.Color, lt.PolicyRef, lt.PastDateExempt, lt.PartialDayDiscouraged,
	)
	return err
}

// GetLeaveType retrieves a leave type by ID.
func (s *Store) GetLeaveType(ctx context.Context, id string) (*leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = ?`, id)
	lt, err := scanLeaveType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrLeaveTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &lt, nil
}

// ListLeaveTypes returns all leave types ordered by ID.
func (s *Store) ListLeaveTypes(ctx context.Context) ([]leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []leave.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, lt)
	}
	return types, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLeaveType(row scanner) (leave.LeaveType, error) {
	var (
		lt        leave.LeaveType
		color     sql.NullString
		policyRef sql.NullString
	)
	err := row.Scan(
		&lt.ID, &lt.Name, &lt.Active, &lt.RequiresApproval, &lt.MaxDaysPerRequest,
		&lt.RequiresDocumentation, &color, &policyRef, &lt.PastDateExempt, &lt.PartialDayDiscouraged,
	)
	lt.Color = color.String
	lt.PolicyRef = policyRef.String
	return lt, err
}

// =============================================================================
// DIRECTORY (leave.Directory)
// =============================================================================

// SaveEmployee saves an employee to the database.
func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, name, email, manager_id, team_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			manager_id = excluded.manager_id,
			team_id = excluded.team_id
	`
	_, err := s.db.ExecContext(ctx, query, e.ID, e.Name, e.Email, nullString(e.ManagerID), nullString(e.TeamID))
	return err
}

// GetEmployee retrieves an employee by ID.
func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, manager_id, team_id FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// TeamMembers returns the other employees sharing employeeID's team.
func (s *Store) TeamMembers(ctx context.Context, employeeID string) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var teamID sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT team_id FROM employees WHERE id = ?`, employeeID).Scan(&teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}
	if teamID.String == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, manager_id, team_id FROM employees
		WHERE team_id = ? AND id <> ?
		ORDER BY id
	`, teamID.String, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, e)
	}
	return members, rows.Err()
}

func scanEmployee(row scanner) (leave.Employee, error) {
	var (
		e                      leave.Employee
		email, manager, teamID sql.NullString
	)
	err := row.Scan(&e.ID, &e.Name, &email, &manager, &teamID)
	e.Email, e.ManagerID, e.TeamID = email.String, manager.String, teamID.String
	return e, err
}

// =============================================================================
// COMPANY CALENDAR (leave.CompanyCalendar)
// =============================================================================

// SaveCompanyDay stores a holiday or blackout date.
func (s *Store) SaveCompanyDay(ctx context.Context, d generic.CompanyDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_days (id, date, name, kind) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET date = excluded.date, name = excluded.name, kind = excluded.kind
	`, d.ID, d.Date.Format(generic.DateLayout), d.Name, d.Kind)
	return err
}

// DeleteCompanyDay removes a holiday or blackout date.
func (s *Store) DeleteCompanyDay(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM company_days WHERE id = ?`, id)
	return err
}

func (s *Store) Holidays(ctx context.Context, from, to time.Time) ([]generic.CompanyDay, error) {
	return s.companyDays(ctx, generic.DayHoliday, from, to)
}

func (s *Store) BlackoutDates(ctx context.Context, from, to time.Time) ([]generic.CompanyDay, error) {
	return s.companyDays(ctx, generic.DayBlackout, from, to)
}

func (s *Store) companyDays(ctx context.Context, kind generic.DayKind, from, to time.Time) ([]generic.CompanyDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, name, kind FROM company_days
		WHERE kind = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, kind, from.Format(generic.DateLayout), to.Format(generic.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []generic.CompanyDay
	for rows.Next() {
		var (
			d    generic.CompanyDay
			date string
		)
		if err := rows.Scan(&d.ID, &date, &d.Name, &d.Kind); err != nil {
			return nil, err
		}
		d.Date, _ = time.Parse(generic.DateLayout, date)
		days = append(days, d)
	}
	return days, rows.Err()
}

// =============================================================================
// BALANCES (leave.BalanceStore)
// =============================================================================

const balanceColumns = `employee_id, leave_type_id, total_allowance, used_days, remaining_days,
	carry_over_days, effective_date, expiration_date, version`

// GetBalance retrieves the snapshot for one (employee, leave type).
func (s *Store) GetBalance(ctx context.Context, employeeID, leaveTypeID string) (*leave.LeaveBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM leave_balances WHERE employee_id = ? AND leave_type_id = ?`,
		employeeID, leaveTypeID)
	b, err := scanBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrBalanceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBalances returns employeeID's balances, or every balance when
// employeeID is empty.
func (s *Store) ListBalances(ctx context.Context, employeeID string) ([]leave.LeaveBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + balanceColumns + ` FROM leave_balances`
	var args []any
	if employeeID != "" {
		query += ` WHERE employee_id = ?`
		args = append(args, employeeID)
	}
	query += ` ORDER BY employee_id, leave_type_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []leave.LeaveBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// SaveBalance inserts or replaces a snapshot without touching the journal.
func (s *Store) SaveBalance(ctx context.Context, b leave.LeaveBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.Recompute()
	query := `
		INSERT INTO leave_balances (` + balanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, leave_type_id) DO UPDATE SET
			total_allowance = excluded.total_allowance,
			used_days = excluded.used_days,
			remaining_days = excluded.remaining_days,
			carry_over_days = excluded.carry_over_days,
			effective_date = excluded.effective_date,
			expiration_date = excluded.expiration_date,
			version = excluded.version
	`
	_, err := s.db.ExecContext(ctx, query, balanceArgs(b)...)
	return err
}

// CommitBalance stores next if the stored version is next.Version-1 and
// appends entry in the same SQL transaction.
func (s *Store) CommitBalance(ctx context.Context, next leave.LeaveBalance, entry generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx, `
		UPDATE leave_balances SET
			total_allowance = ?, used_days = ?, remaining_days = ?, carry_over_days = ?,
			effective_date = ?, expiration_date = ?, version = ?
		WHERE employee_id = ? AND leave_type_id = ? AND version = ?
	`,
		next.TotalAllowance.String(), next.UsedDays.String(), next.RemainingDays.String(),
		next.CarryOverDays.String(), formatDate(next.EffectiveDate), formatDate(next.ExpirationDate),
		next.Version, next.EmployeeID, next.LeaveTypeID, next.Version-1,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.missingOrStale(ctx, sqlTx, next)
	}

	if err := s.appendTx(ctx, sqlTx, entry); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) missingOrStale(ctx context.Context, q queryer, b leave.LeaveBalance) error {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leave_balances WHERE employee_id = ? AND leave_type_id = ?`,
		b.EmployeeID, b.LeaveTypeID,
	).Scan(&count)
	if err != nil {
		return err
	}
	if count == 0 {
		return generic.ErrBalanceNotFound
	}
	return generic.ErrConcurrentModification
}

func balanceArgs(b leave.LeaveBalance) []any {
	return []any{
		b.EmployeeID, b.LeaveTypeID,
		b.TotalAllowance.String(), b.UsedDays.String(), b.RemainingDays.String(), b.CarryOverDays.String(),
		formatDate(b.EffectiveDate), formatDate(b.ExpirationDate), b.Version,
	}
}

func scanBalance(row scanner) (leave.LeaveBalance, error) {
	var (
		b                             leave.LeaveBalance
		total, used, remaining, carry string
		effective, expiration         sql.NullString
	)
	if err := row.Scan(&b.EmployeeID, &b.LeaveTypeID, &total, &used, &remaining, &carry,
		&effective, &expiration, &b.Version); err != nil {
		return b, err
	}
	b.TotalAllowance = generic.MustParseDecimal(total)
	b.UsedDays = generic.MustParseDecimal(used)
	b.RemainingDays = generic.MustParseDecimal(remaining)
	b.CarryOverDays = generic.MustParseDecimal(carry)
	b.EffectiveDate = parseDate(effective)
	b.ExpirationDate = parseDate(expiration)
	return b, nil
}

// =============================================================================
// REQUESTS (leave.RequestStore)
// =============================================================================

const requestColumns = `id, requester_id, leave_type_id, manager_id, start_date, end_date,
	partial_day, partial_day_hours, comment, attachment_ref, status, reviewer_id,
	reviewer_comment, reviewed_at, submitted_at, modified_at, calendar_event_id,
	notification_sent, total_days, reminded_at`

// Create inserts a new request and returns its ID.
func (s *Store) Create(ctx context.Context, req *leave.LeaveRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *req
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ModifiedAt.IsZero() {
		r.ModifiedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leave_requests (`+requestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		requestArgs(r)...,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert request: %w", err)
	}
	return r.ID, nil
}

// GetByID retrieves a request by ID.
func (s *Store) GetByID(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getRequest(ctx, s.db, id)
}

// Update applies patch to a request. When patch carries an expected
// status the write only happens if the stored status still matches.
func (s *Store) Update(ctx context.Context, id string, patch leave.RequestPatch) (*leave.LeaveRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	r, err := getRequest(ctx, sqlTx, id)
	if err != nil {
		return nil, err
	}
	if err := patch.CheckExpected(r); err != nil {
		return nil, err
	}
	patch.Apply(r)
	r.ModifiedAt = s.now()

	_, err = sqlTx.ExecContext(ctx, `
		UPDATE leave_requests SET
			status = ?, reviewer_id = ?, reviewer_comment = ?, reviewed_at = ?,
			calendar_event_id = ?, notification_sent = ?, reminded_at = ?, modified_at = ?
		WHERE id = ?
	`,
		r.Status, r.ReviewerID, r.ReviewerComment, formatTimePtr(r.ReviewedAt),
		r.CalendarEventID, r.NotificationSent, formatTimePtr(r.RemindedAt), formatTime(r.ModifiedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update request: %w", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, err
	}
	return r, nil
}

// ListByRequester returns a requester's requests ordered by start date.
func (s *Store) ListByRequester(ctx context.Context, requesterID string) ([]leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM leave_requests WHERE requester_id = ? ORDER BY start_date ASC`,
		requesterID)
}

// ListAll returns every request ordered by submission time.
func (s *Store) ListAll(ctx context.Context) ([]leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRequests(ctx, `SELECT `+requestColumns+` FROM leave_requests ORDER BY submitted_at ASC`)
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]leave.LeaveRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []leave.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func getRequest(ctx context.Context, q queryer, id string) (*leave.LeaveRequest, error) {
	row := q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func requestArgs(r leave.LeaveRequest) []any {
	return []any{
		r.ID, r.RequesterID, r.LeaveTypeID, r.ManagerID,
		formatDate(r.StartDate), formatDate(r.EndDate),
		r.PartialDay, r.PartialDayHours.String(), r.Comment, r.AttachmentRef,
		r.Status, r.ReviewerID, r.ReviewerComment, formatTimePtr(r.ReviewedAt),
		formatTime(r.SubmittedAt), formatTime(r.ModifiedAt), r.CalendarEventID,
		r.NotificationSent, r.TotalDays.String(), formatTimePtr(r.RemindedAt),
	}
}

func scanRequest(row scanner) (leave.LeaveRequest, error) {
	var (
		r                                  leave.LeaveRequest
		manager, comment, attachment       sql.NullString
		reviewer, reviewerComment, eventID sql.NullString
		start, end, reviewedAt, remindedAt sql.NullString
		submittedAt, modifiedAt            sql.NullString
		hours, total                       string
	)
	err := row.Scan(
		&r.ID, &r.RequesterID, &r.LeaveTypeID, &manager, &start, &end,
		&r.PartialDay, &hours, &comment, &attachment, &r.Status, &reviewer,
		&reviewerComment, &reviewedAt, &submittedAt, &modifiedAt, &eventID,
		&r.NotificationSent, &total, &remindedAt,
	)
	if err != nil {
		return r, err
	}

	r.ManagerID = manager.String
	r.Comment = comment.String
	r.AttachmentRef = attachment.String
	r.ReviewerID = reviewer.String
	r.ReviewerComment = reviewerComment.String
	r.CalendarEventID = eventID.String
	r.StartDate = parseDate(start)
	r.EndDate = parseDate(end)
	r.PartialDayHours = generic.MustParseDecimal(hours)
	r.TotalDays = generic.MustParseDecimal(total)
	r.SubmittedAt = parseTime(submittedAt)
	r.ModifiedAt = parseTime(modifiedAt)
	if reviewedAt.Valid && reviewedAt.String != "" {
		t := parseTime(reviewedAt)
		r.ReviewedAt = &t
	}
	if remindedAt.Valid && remindedAt.String != "" {
		t := parseTime(remindedAt)
		r.RemindedAt = &t
	}
	return r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseAmount(value, unit string) generic.Amount {
	return generic.Amount{
		Value: generic.MustParseDecimal(value),
		Unit:  generic.Unit(unit),
	}
}

func formatDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(generic.DateLayout), Valid: true}
}

func parseDate(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse(generic.DateLayout, s.String)
	return t
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return formatTime(*t)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s.String)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
