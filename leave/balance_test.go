package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// APPLY / REVERSE
// =============================================================================

func TestBalance_ApplyThenInsufficient(t *testing.T) {
	// GIVEN: total 10, used 0, carry 0
	b := balance("emp-1", "annual", "10")

	// WHEN: 3 days are applied
	b.Apply(dec("3"))

	// THEN: used 3, remaining 7, and a further 8 does not fit
	assert.True(t, b.UsedDays.Equal(dec("3")))
	assert.True(t, b.RemainingDays.Equal(dec("7")))
	assert.Equal(t, "Insufficient leave balance. Requested: 8 days, Available: 7 days",
		leave.CheckSufficiency(b, dec("8")))
	assert.Empty(t, leave.CheckSufficiency(b, dec("7")))
}

func TestBalance_ApplyReverseRoundTrip(t *testing.T) {
	amounts := []string{"1", "2.5", "0.0625", "0.375", "12", "7.125"}
	for _, a := range amounts {
		t.Run(a, func(t *testing.T) {
			b := balance("emp-1", "annual", "10")
			b.CarryOverDays = dec("2.5")
			b.Apply(dec("1.25"))
			before := b

			b.Apply(dec(a))
			b.Reverse(dec(a))

			assert.True(t, before.UsedDays.Equal(b.UsedDays), "used %s != %s", before.UsedDays, b.UsedDays)
			assert.True(t, before.RemainingDays.Equal(b.RemainingDays), "remaining %s != %s", before.RemainingDays, b.RemainingDays)
		})
	}
}

func TestBalance_RemainingNeverNegative(t *testing.T) {
	b := balance("emp-1", "annual", "10")
	b.CarryOverDays = dec("1")

	for i := 0; i < 8; i++ {
		b.Apply(dec("2"))

		want := b.TotalAllowance.Add(b.CarryOverDays).Sub(b.UsedDays)
		if want.IsNegative() {
			want = dec("0")
		}
		assert.False(t, b.RemainingDays.IsNegative())
		assert.True(t, want.Equal(b.RemainingDays), "step %d: remaining %s, want %s", i, b.RemainingDays, want)
	}
	assert.True(t, b.RemainingDays.IsZero())
}

// =============================================================================
// CONSUMPTION AND WARNINGS
// =============================================================================

func TestConsumptionAmount(t *testing.T) {
	full := draft("emp-1", "annual", day(time.January, 1), day(time.January, 5))
	assert.True(t, leave.ConsumptionAmount(full).Equal(dec("5")))

	partial := draft("emp-1", "annual", day(time.January, 3), day(time.January, 3))
	partial.PartialDay = true
	partial.PartialDayHours = dec("4")
	assert.True(t, leave.ConsumptionAmount(partial).Equal(dec("0.5")))

	weekend := draft("emp-1", "annual", day(time.January, 6), day(time.January, 7))
	assert.True(t, leave.ConsumptionAmount(weekend).IsZero())
}

func TestUsageWarning(t *testing.T) {
	b := balance("emp-1", "annual", "10")

	assert.Empty(t, leave.UsageWarning(b, dec("5"), "Annual Leave"), "exactly half is fine")
	assert.Equal(t, "This request will use 60.0% of your annual Annual Leave allowance",
		leave.UsageWarning(b, dec("6"), "Annual Leave"))

	zero := balance("emp-1", "unpaid", "0")
	assert.Empty(t, leave.UsageWarning(zero, dec("3"), "Unpaid"))
}

func TestExpiryWarning(t *testing.T) {
	b := balance("emp-1", "annual", "10")

	b.ExpirationDate = now().Add(10 * 24 * time.Hour)
	assert.Contains(t, leave.ExpiryWarning(b, "Annual Leave", now(), 30), "expires in 10 days")

	b.ExpirationDate = now().Add(31 * 24 * time.Hour)
	assert.Empty(t, leave.ExpiryWarning(b, "Annual Leave", now(), 30))

	b.ExpirationDate = now().Add(-time.Hour)
	assert.Empty(t, leave.ExpiryWarning(b, "Annual Leave", now(), 30), "already expired")
}

func TestSummarize(t *testing.T) {
	a := balance("emp-1", "annual", "20")
	a.Apply(dec("5"))
	s := balance("emp-1", "sick", "10")
	s.ExpirationDate = now().Add(5 * 24 * time.Hour)

	summary := leave.Summarize("emp-1", []leave.LeaveBalance{a, s},
		map[string]string{"annual": "Annual Leave"}, now(), 30)

	assert.True(t, summary.TotalAllowance.Equal(dec("30")))
	assert.True(t, summary.TotalUsed.Equal(dec("5")))
	assert.True(t, summary.TotalRemaining.Equal(dec("25")))
	assert.Equal(t, "Annual Leave", summary.Balances[0].LeaveTypeName)
	assert.True(t, summary.Balances[0].UsagePercentage.Equal(dec("25")))
	assert.Equal(t, "sick", summary.Balances[1].LeaveTypeName, "falls back to the id")
	if assert.Len(t, summary.ExpiringSoon, 1) {
		assert.Equal(t, "sick", summary.ExpiringSoon[0].LeaveTypeID)
		assert.Equal(t, 5, summary.ExpiringSoon[0].DaysUntilExpiry)
	}
}

func TestValidateBalanceRecord(t *testing.T) {
	ok := balance("emp-1", "annual", "25")
	assert.Empty(t, leave.ValidateBalanceRecord(ok))

	bad := balance("emp-1", "annual", "400")
	bad.CarryOverDays = dec("31")
	bad.ExpirationDate = bad.EffectiveDate
	assert.Equal(t, []string{
		"Total allowance cannot exceed 365 days",
		"Carry over days cannot exceed 30 days",
		"Expiration date must be after effective date",
	}, leave.ValidateBalanceRecord(bad))
}
