package finance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// GoalPlan compares the two ways to reach a purchase goal: save cash until
// the full amount is banked, or borrow the remainder now and amortize it.
type GoalPlan struct {
	// Cash strategy. Indeterminate when the contribution is not positive.
	MonthsToWait   int
	CompletionDate time.Time
	CashOK         bool

	// Loan strategy, present only when a rate and term are configured.
	Loan    LoanResult
	HasLoan bool

	// Plain-language acceleration suggestion, empty when cutting the
	// suggested amount would not save at least one month.
	Insight string
}

// PlanGoal builds a GoalPlan for a target purchase. The principal is the
// target price minus the down payment already saved, floored at zero. now
// anchors the projected completion date to the first of the month.
func PlanGoal(targetPrice, downPayment, monthlyContribution decimal.Decimal, annualRatePct float64, termMonths int, now time.Time) GoalPlan {
	principal := targetPrice.Sub(downPayment)
	if principal.LessThan(decimal.Zero) {
		principal = decimal.Zero
	}

	var plan GoalPlan

	if months, ok := GoalProjection(decimal.Zero, principal, monthlyContribution); ok {
		plan.CashOK = true
		plan.MonthsToWait = months
		plan.CompletionDate = addMonths(now, months)
	}

	if annualRatePct > 0 && termMonths > 0 && principal.GreaterThan(decimal.Zero) {
		if loan, ok := LoanPayment(principal, annualRatePct, termMonths); ok {
			plan.Loan = loan
			plan.HasLoan = true
		}
	}

	if plan.CashOK && monthlyContribution.GreaterThan(decimal.Zero) {
		cut := suggestedCut(monthlyContribution)
		accelerated, _ := GoalProjection(decimal.Zero, principal, monthlyContribution.Add(cut))
		if saved := plan.MonthsToWait - accelerated; saved > 0 {
			plural := ""
			if saved > 1 {
				plural = "s"
			}
			plan.Insight = fmt.Sprintf(
				"If you save an extra $%s/month, you'll reach your goal %d month%s sooner.",
				cut.StringFixed(0), saved, plural)
		}
	}

	return plan
}

// suggestedCut proposes trimming about 15% of the current contribution,
// bounded to $25–$200.
func suggestedCut(monthlyContribution decimal.Decimal) decimal.Decimal {
	cut := monthlyContribution.Mul(decimal.NewFromFloat(0.15)).Round(0)
	if cut.LessThan(decimal.NewFromInt(25)) {
		return decimal.NewFromInt(25)
	}
	if cut.GreaterThan(decimal.NewFromInt(200)) {
		return decimal.NewFromInt(200)
	}
	return cut
}

// addMonths returns the first day of the month that is months after now.
func addMonths(now time.Time, months int) time.Time {
	total := int(now.Month()) - 1 + months
	return time.Date(now.Year()+total/12, time.Month(total%12+1), 1, 0, 0, 0, 0, now.Location())
}
