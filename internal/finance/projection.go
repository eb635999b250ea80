// Package finance derives budget pacing, savings-goal, and loan projections
// from server snapshots. Every function is pure and total: out-of-domain
// inputs come back as indeterminate results, never as a panic, NaN, or
// infinity, because these numbers feed dashboards directly.
package finance

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// BudgetSnapshot is the month-to-date spending picture for one household,
// fetched fresh from the server each period. Confirmed and estimated spend
// are independent components; their sum is not assumed to equal TotalSpent.
type BudgetSnapshot struct {
	ConfirmedSpent decimal.Decimal
	EstimatedSpent decimal.Decimal
	TotalSpent     decimal.Decimal
	BudgetLimit    decimal.Decimal
	DayOfMonth     int
	DaysInMonth    int
}

// GoalSnapshot is one savings goal or planned loan purchase.
type GoalSnapshot struct {
	ID                  string
	Name                string
	TargetAmount        decimal.Decimal
	SavedAmount         decimal.Decimal
	MonthlyContribution decimal.Decimal
	IsLoan              bool
	InterestRate        float64
	TermMonths          int
}

// PaceResult is the projected month-end position given spend so far.
type PaceResult struct {
	DailyPace decimal.Decimal
	Projected decimal.Decimal
	OnTrack   bool
}

// Pace projects month-end spend from the daily average so far. On the first
// instant of a month (day 0) there is no spend history yet, so the pace is
// zero and the budget counts as on track.
func Pace(spent, limit decimal.Decimal, dayOfMonth, daysInMonth int) PaceResult {
	if dayOfMonth <= 0 {
		return PaceResult{DailyPace: decimal.Zero, Projected: decimal.Zero, OnTrack: true}
	}
	pace := spent.Div(decimal.NewFromInt(int64(dayOfMonth)))
	projected := pace.Mul(decimal.NewFromInt(int64(daysInMonth)))
	return PaceResult{
		DailyPace: pace,
		Projected: projected,
		OnTrack:   projected.LessThanOrEqual(limit),
	}
}

// RemainingDailyBudget is how much can be spent per remaining day without
// going over. With zero days left there is no meaningful daily figure, so
// ok is false.
func RemainingDailyBudget(limit, spent decimal.Decimal, daysLeft int) (decimal.Decimal, bool) {
	if daysLeft <= 0 {
		return decimal.Zero, false
	}
	return limit.Sub(spent).Div(decimal.NewFromInt(int64(daysLeft))), true
}

// UsedResult reports budget consumption for progress rendering. Percent is
// clamped to [0, 100]; OverBy carries the unclamped overshoot so an
// over-budget month is never hidden by the clamp.
type UsedResult struct {
	Percent float64
	OverBy  decimal.Decimal
}

// PercentUsed computes the clamped share of limit consumed by spent.
// A non-positive limit yields zero percent with the full spend as overshoot.
func PercentUsed(spent, limit decimal.Decimal) UsedResult {
	res := UsedResult{OverBy: decimal.Zero}
	if limit.LessThanOrEqual(decimal.Zero) {
		if spent.GreaterThan(decimal.Zero) {
			res.OverBy = spent.Sub(limit)
		}
		return res
	}
	res.Percent = clampPct(spent.Div(limit).Mul(hundred).InexactFloat64())
	if spent.GreaterThan(limit) {
		res.OverBy = spent.Sub(limit)
	}
	return res
}

// SplitResult is the confirmed/estimated breakdown of budget usage, each
// clamped independently. The two shares may sum to less than PercentUsed
// when spend exists outside either bucket.
type SplitResult struct {
	ConfirmedPct float64
	EstimatedPct float64
}

// ConfirmedVsEstimatedSplit computes the two usage shares.
func ConfirmedVsEstimatedSplit(confirmed, estimated, limit decimal.Decimal) SplitResult {
	if limit.LessThanOrEqual(decimal.Zero) {
		return SplitResult{}
	}
	return SplitResult{
		ConfirmedPct: clampPct(confirmed.Div(limit).Mul(hundred).InexactFloat64()),
		EstimatedPct: clampPct(estimated.Div(limit).Mul(hundred).InexactFloat64()),
	}
}

// GoalProjection returns the whole months until the goal is funded at the
// given contribution. A goal already at or past its target completes in zero
// months. With no positive contribution the completion date is indeterminate
// and ok is false.
func GoalProjection(saved, target, monthlyContribution decimal.Decimal) (int, bool) {
	if saved.GreaterThanOrEqual(target) {
		return 0, true
	}
	if monthlyContribution.LessThanOrEqual(decimal.Zero) {
		return 0, false
	}
	months := target.Sub(saved).Div(monthlyContribution).Ceil().IntPart()
	return int(months), true
}

// Allocation is an advisory transfer suggestion for one goal. Nothing here
// moves money; an explicit user-confirmed transfer is a separate write.
type Allocation struct {
	GoalID    string
	Suggested decimal.Decimal
}

// SurplusAllocation suggests, for each unfinished goal, transferring the
// smaller of the monthly surplus and the goal's remaining amount. Goals that
// are already funded produce no suggestion.
func SurplusAllocation(monthlySurplus decimal.Decimal, goals []GoalSnapshot) []Allocation {
	if monthlySurplus.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	var out []Allocation
	for _, g := range goals {
		remaining := g.TargetAmount.Sub(g.SavedAmount)
		if remaining.LessThanOrEqual(decimal.Zero) {
			continue
		}
		suggested := monthlySurplus
		if remaining.LessThan(suggested) {
			suggested = remaining
		}
		out = append(out, Allocation{GoalID: g.ID, Suggested: suggested})
	}
	return out
}

// LoanResult is an amortized repayment schedule summary, quantized to cents.
type LoanResult struct {
	MonthlyPayment decimal.Decimal
	TotalInterest  decimal.Decimal
}

// LoanPayment computes the standard amortizing monthly payment and the total
// interest paid over the term. A zero rate degenerates to straight division.
// Non-positive principal or term, or a negative rate, is indeterminate.
func LoanPayment(principal decimal.Decimal, annualRatePct float64, termMonths int) (LoanResult, bool) {
	if termMonths <= 0 || principal.LessThanOrEqual(decimal.Zero) || annualRatePct < 0 {
		return LoanResult{MonthlyPayment: decimal.Zero, TotalInterest: decimal.Zero}, false
	}

	n := decimal.NewFromInt(int64(termMonths))

	if annualRatePct == 0 {
		payment := principal.Div(n).Round(2)
		return LoanResult{MonthlyPayment: payment, TotalInterest: decimal.Zero}, true
	}

	// Rate math in float64, then quantized to cents.
	r := annualRatePct / 100 / 12
	p := principal.InexactFloat64()
	factor := math.Pow(1+r, float64(termMonths))
	mp := p * (r * factor) / (factor - 1)

	payment := decimal.NewFromFloat(mp).Round(2)
	interest := payment.Mul(n).Sub(principal).Round(2)
	return LoanResult{MonthlyPayment: payment, TotalInterest: interest}, true
}

// InflationDelta is the percent change between the first and last observed
// price of an item. With no positive base price the change is undefined and
// ok is false.
func InflationDelta(first, last decimal.Decimal) (decimal.Decimal, bool) {
	if first.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	return last.Sub(first).Div(first).Mul(hundred), true
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
