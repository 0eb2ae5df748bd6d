package leave

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// CONFLICT REPORT
// =============================================================================

type ConflictKind string

const (
	ConflictTeamMember ConflictKind = "team-member"
	ConflictBlackout   ConflictKind = "blackout-date"
	ConflictHoliday    ConflictKind = "holiday"
	ConflictOverlap    ConflictKind = "overlap"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type Conflict struct {
	Kind     ConflictKind
	Severity Severity
	Message  string
	Dates    []time.Time // blackout / holiday days hit
	Members  []string    // team member names
}

type ConflictReport struct {
	Conflicts []Conflict
}

// HasConflicts reports whether any entry is blocking.
func (r ConflictReport) HasConflicts() bool {
	for _, c := range r.Conflicts {
		if c.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Split separates blocking messages from warnings.
func (r ConflictReport) Split() (errs, warnings []string) {
	for _, c := range r.Conflicts {
		if c.Severity == SeverityError {
			errs = append(errs, c.Message)
		} else {
			warnings = append(warnings, c.Message)
		}
	}
	return errs, warnings
}

// TeamMemberLeave is a colleague together with their leave requests.
type TeamMemberLeave struct {
	Employee Employee
	Requests []LeaveRequest
}

// =============================================================================
// DETECTION
// =============================================================================

// DetectConflicts checks [start, end] against blackout days, holidays and
// the approved leave of team members.
func DetectConflicts(start, end time.Time, blackouts, holidays []time.Time, team []TeamMemberLeave) ConflictReport {
	var report ConflictReport
	span := generic.DateRange(start, end)

	if hit := matchingDays(span, blackouts); len(hit) > 0 {
		report.Conflicts = append(report.Conflicts, Conflict{
			Kind:     ConflictBlackout,
			Severity: SeverityError,
			Message:  "Your request conflicts with company blackout dates: " + joinDates(hit),
			Dates:    hit,
		})
	}

	if hit := matchingDays(span, holidays); len(hit) > 0 {
		report.Conflicts = append(report.Conflicts, Conflict{
			Kind:     ConflictHoliday,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("Your request includes company holidays: %s. These days may not count against your leave balance.",
				joinDates(hit)),
			Dates: hit,
		})
	}

	var names []string
	for _, m := range team {
		for _, r := range m.Requests {
			if r.Status == StatusApproved && generic.SpansOverlap(start, end, r.StartDate, r.EndDate) {
				names = append(names, displayName(m.Employee))
				break
			}
		}
	}
	if len(names) > 0 {
		report.Conflicts = append(report.Conflicts, Conflict{
			Kind:     ConflictTeamMember,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("Team members with overlapping leave: %s. Please coordinate with your team to ensure adequate coverage.",
				strings.Join(names, ", ")),
			Members: names,
		})
	}
	return report
}

func matchingDays(span, days []time.Time) []time.Time {
	var hit []time.Time
	for _, d := range span {
		if generic.ContainsDay(days, d) {
			hit = append(hit, d)
		}
	}
	return hit
}

func joinDates(days []time.Time) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = d.Format(generic.DateLayout)
	}
	return strings.Join(parts, ", ")
}

func displayName(e Employee) string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

// =============================================================================
// DETECTOR - Gathers inputs from collaborators
// =============================================================================

type ConflictDetector struct {
	calendar  CompanyCalendar
	directory Directory
	requests  RequestStore
}

func NewConflictDetector(calendar CompanyCalendar, directory Directory, requests RequestStore) *ConflictDetector {
	return &ConflictDetector{calendar: calendar, directory: directory, requests: requests}
}

// Check loads blackouts, holidays and team leave for req's span. A nil
// collaborator contributes nothing.
func (d *ConflictDetector) Check(ctx context.Context, req LeaveRequest) (ConflictReport, error) {
	var blackouts, holidays []time.Time
	if d.calendar != nil {
		days, err := d.calendar.BlackoutDates(ctx, req.StartDate, req.EndDate)
		if err != nil {
			return ConflictReport{}, fmt.Errorf("load blackout dates: %w", err)
		}
		blackouts = generic.Dates(days)

		days, err = d.calendar.Holidays(ctx, req.StartDate, req.EndDate)
		if err != nil {
			return ConflictReport{}, fmt.Errorf("load holidays: %w", err)
		}
		holidays = generic.Dates(days)
	}

	var team []TeamMemberLeave
	if d.directory != nil && d.requests != nil {
		members, err := d.directory.TeamMembers(ctx, req.RequesterID)
		if err != nil {
			return ConflictReport{}, fmt.Errorf("load team members: %w", err)
		}
		for _, m := range members {
			if m.ID == req.RequesterID {
				continue
			}
			reqs, err := d.requests.ListByRequester(ctx, m.ID)
			if err != nil {
				return ConflictReport{}, fmt.Errorf("load leave of %s: %w", m.ID, err)
			}
			team = append(team, TeamMemberLeave{Employee: m, Requests: reqs})
		}
	}

	return DetectConflicts(req.StartDate, req.EndDate, blackouts, holidays, team), nil
}
