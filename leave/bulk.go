package leave

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// BATCH VALIDATION
// =============================================================================

const DefaultMaxBulkSize = 10

// ValidateBatch checks the batch as a whole: non-empty, within maxSize,
// and flags entries that repeat (LeaveTypeID, StartDate, EndDate).
func ValidateBatch(reqs []LeaveRequest, maxSize int) Verdict {
	if maxSize <= 0 {
		maxSize = DefaultMaxBulkSize
	}
	var v Verdict
	if len(reqs) == 0 {
		v.addError("No requests provided for bulk operation")
	}
	if len(reqs) > maxSize {
		v.addError(fmt.Sprintf("Bulk operation limited to %d requests. Provided: %d", maxSize, len(reqs)))
	}
	if dups := DuplicateIndices(reqs); len(dups) > 0 {
		v.addWarning(fmt.Sprintf("Found %d potential duplicate requests (indices %s)", len(dups), joinInts(dups)))
	}
	return v
}

// DuplicateIndices returns, in ascending order, every index j that
// repeats an earlier entry i < j.
func DuplicateIndices(reqs []LeaveRequest) []int {
	var dups []int
	for j := 1; j < len(reqs); j++ {
		for i := 0; i < j; i++ {
			if sameSlot(reqs[i], reqs[j]) {
				dups = append(dups, j)
				break
			}
		}
	}
	return dups
}

func sameSlot(a, b LeaveRequest) bool {
	return a.LeaveTypeID == b.LeaveTypeID &&
		generic.SameDay(a.StartDate, b.StartDate) &&
		generic.SameDay(a.EndDate, b.EndDate)
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}

// =============================================================================
// COORDINATOR
// =============================================================================

// ItemResult is the outcome of one entry in a batch.
type ItemResult struct {
	Index     int
	RequestID string
	Request   *LeaveRequest
	Verdict   *Verdict
	Err       error
}

func (r ItemResult) OK() bool {
	return r.Err == nil && (r.Verdict == nil || r.Verdict.IsValid())
}

type BatchResult struct {
	Verdict Verdict
	Items   []ItemResult
}

// Failed counts items that did not succeed.
func (b BatchResult) Failed() int {
	n := 0
	for _, it := range b.Items {
		if !it.OK() {
			n++
		}
	}
	return n
}

// BulkCoordinator drives the workflow over batches one item at a time.
// A failing item is recorded and the rest of the batch still runs.
type BulkCoordinator struct {
	workflow *Workflow
	maxSize  int
	logger   *zap.Logger
}

func NewBulkCoordinator(workflow *Workflow, maxSize int, logger ...*zap.Logger) *BulkCoordinator {
	l := zap.L().Named("leave.bulk")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("leave.bulk")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxBulkSize
	}
	return &BulkCoordinator{workflow: workflow, maxSize: maxSize, logger: l}
}

// SubmitBatch submits each draft in order. A batch failing ValidateBatch
// is refused with generic.ErrBatchRejected and nothing is submitted.
func (c *BulkCoordinator) SubmitBatch(ctx context.Context, drafts []LeaveRequest) (*BatchResult, error) {
	result := &BatchResult{Verdict: ValidateBatch(drafts, c.maxSize)}
	if !result.Verdict.IsValid() {
		return result, fmt.Errorf("%w: %s", generic.ErrBatchRejected, strings.Join(result.Verdict.Errors, "; "))
	}

	for i, d := range drafts {
		item := ItemResult{Index: i}
		res, err := c.workflow.Submit(ctx, d)
		if res != nil {
			item.Request = res.Request
			item.Verdict = &res.Verdict
			if res.Request != nil {
				item.RequestID = res.Request.ID
			}
		}
		item.Err = err
		if !item.OK() {
			c.logger.Warn("bulk submit item failed",
				zap.Int("index", i),
				zap.String("requester_id", d.RequesterID),
				zap.Error(err),
			)
		}
		result.Items = append(result.Items, item)
	}
	c.logger.Info("bulk submit finished", zap.Int("items", len(drafts)), zap.Int("failed", result.Failed()))
	return result, nil
}

// ApproveBatch approves each request in order.
func (c *BulkCoordinator) ApproveBatch(ctx context.Context, requestIDs []string, reviewerID, comment string) (*BatchResult, error) {
	result := &BatchResult{}
	if len(requestIDs) == 0 {
		result.Verdict.addError("No requests provided for bulk operation")
	}
	if len(requestIDs) > c.maxSize {
		result.Verdict.addError(fmt.Sprintf("Bulk operation limited to %d requests. Provided: %d", c.maxSize, len(requestIDs)))
	}
	if !result.Verdict.IsValid() {
		return result, fmt.Errorf("%w: %s", generic.ErrBatchRejected, strings.Join(result.Verdict.Errors, "; "))
	}

	seen := make(map[string]bool, len(requestIDs))
	for i, id := range requestIDs {
		item := ItemResult{Index: i, RequestID: id}
		if seen[id] {
			item.Err = fmt.Errorf("request %s listed more than once", id)
			result.Items = append(result.Items, item)
			continue
		}
		seen[id] = true

		item.Request, item.Err = c.workflow.Approve(ctx, id, reviewerID, comment)
		if item.Err != nil {
			c.logger.Warn("bulk approve item failed", zap.Int("index", i), zap.String("request_id", id), zap.Error(item.Err))
		}
		result.Items = append(result.Items, item)
	}
	c.logger.Info("bulk approve finished", zap.Int("items", len(requestIDs)), zap.Int("failed", result.Failed()))
	return result, nil
}
