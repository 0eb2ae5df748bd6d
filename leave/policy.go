package leave

import (
	"fmt"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEAVE TYPE POLICY
// =============================================================================

// CheckLeaveType applies the per-type rules to req. An inactive type
// stops further type checks.
func CheckLeaveType(lt LeaveType, req LeaveRequest) (errs, warnings []string) {
	if !lt.Active {
		return []string{fmt.Sprintf("Leave type %q is not currently available", lt.Name)}, nil
	}

	if lt.MaxDaysPerRequest > 0 {
		requested := generic.BusinessDaysBetween(req.StartDate, req.EndDate)
		if requested > lt.MaxDaysPerRequest {
			errs = append(errs, fmt.Sprintf("Maximum %d days allowed per request for %s. You requested %d days.",
				lt.MaxDaysPerRequest, lt.Name, requested))
		}
	}

	if lt.RequiresDocumentation && req.AttachmentRef == "" {
		errs = append(errs, fmt.Sprintf("Documentation is required for %s requests", lt.Name))
	}

	if req.PartialDay && lt.PartialDayDiscouraged {
		warnings = append(warnings, fmt.Sprintf("Partial day requests are unusual for %s leave", lt.Name))
	}
	return errs, warnings
}
