package factory

import "github.com/warp/leave-engine/leave"

// =============================================================================
// PRESET LEAVE TYPES
// =============================================================================

// AnnualLeave needs approval and caps a single request at maxDays.
func AnnualLeave(maxDays int) leave.LeaveType {
	return leave.LeaveType{
		ID:                "annual",
		Name:              "Annual Leave",
		Active:            true,
		RequiresApproval:  true,
		MaxDaysPerRequest: maxDays,
		Color:             "#4caf50",
	}
}

// SickLeave is approved automatically and may be recorded after the fact.
func SickLeave() leave.LeaveType {
	return leave.LeaveType{
		ID:             "sick",
		Name:           "Sick Leave",
		Active:         true,
		PastDateExempt: true,
		Color:          "#f44336",
	}
}

// ParentalLeave is taken in whole days and needs supporting documents.
func ParentalLeave() leave.LeaveType {
	return leave.LeaveType{
		ID:                    "parental",
		Name:                  "Parental Leave",
		Active:                true,
		RequiresApproval:      true,
		RequiresDocumentation: true,
		PartialDayDiscouraged: true,
		Color:                 "#2196f3",
	}
}

func BereavementLeave() leave.LeaveType {
	return leave.LeaveType{
		ID:                "bereavement",
		Name:              "Bereavement Leave",
		Active:            true,
		RequiresApproval:  true,
		MaxDaysPerRequest: 5,
		PastDateExempt:    true,
		Color:             "#607d8b",
	}
}

// Defaults is the catalog used when no catalog file is configured.
func Defaults() *Catalog {
	return &Catalog{
		LeaveTypes: []leave.LeaveType{
			AnnualLeave(20),
			SickLeave(),
			ParentalLeave(),
			BereavementLeave(),
		},
	}
}
