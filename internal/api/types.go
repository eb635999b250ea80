package api

import (
	"github.com/shopspring/decimal"

	"github.com/trackerhq/tracker-core/internal/finance"
)

// BudgetSummary is the server's month view of household spending.
type BudgetSummary struct {
	Month       string                     `json:"month"`
	TotalSpent  decimal.Decimal            `json:"total_spent"`
	BudgetLimit decimal.Decimal            `json:"budget_limit"`
	Remaining   decimal.Decimal            `json:"remaining"`
	ByCategory  map[string]decimal.Decimal `json:"by_category"`
	WasteCost   decimal.Decimal            `json:"waste_cost"`
}

// PantryItem is one tracked item in the household pantry.
type PantryItem struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category,omitempty"`
	Quantity       float64         `json:"quantity"`
	Unit           string          `json:"unit,omitempty"`
	ExpirationDate string          `json:"expiration_date,omitempty"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	Status         string          `json:"status"`
}

// Goal is a savings goal or planned loan purchase.
type Goal struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	TargetAmount        decimal.Decimal `json:"target_amount"`
	SavedAmount         decimal.Decimal `json:"saved_amount"`
	MonthlyContribution decimal.Decimal `json:"monthly_contribution"`
	IsLoan              bool            `json:"is_loan"`
	InterestRate        float64         `json:"interest_rate,omitempty"`
	TermMonths          int             `json:"term_months,omitempty"`
}

// Snapshot converts the wire goal into the projection engine's input type.
func (g Goal) Snapshot() finance.GoalSnapshot {
	return finance.GoalSnapshot{
		ID:                  g.ID,
		Name:                g.Name,
		TargetAmount:        g.TargetAmount,
		SavedAmount:         g.SavedAmount,
		MonthlyContribution: g.MonthlyContribution,
		IsLoan:              g.IsLoan,
		InterestRate:        g.InterestRate,
		TermMonths:          g.TermMonths,
	}
}

// BankTransaction is one imported bank statement line.
type BankTransaction struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category,omitempty"`
}

// Receipt is a scanned store receipt awaiting or past confirmation.
type Receipt struct {
	ID           string          `json:"id"`
	StoreName    string          `json:"store_name"`
	PurchaseDate string          `json:"purchase_date"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Status       string          `json:"status"`
}

// Notification is one in-app notification.
type Notification struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// PricePoint is one observation in an item's price history.
type PricePoint struct {
	Date     string          `json:"date"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}
