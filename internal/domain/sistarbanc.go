package domain

import (
	"fmt"
	"html"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Layouts used by the Sistarbanc site for dates and date-times.
const (
	SistarbancDateLayout     = "02/01/06"
	SistarbancDateTimeLayout = "02/01/06 15:04:05"
)

// SistarbancMovement is a movement on a Sistarbanc credit card statement.
type SistarbancMovement struct {
	Card     string          `json:"card"`
	Posted   civil.Date      `json:"ing"`
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	Moved civil.Date `json:"mov"`
}

func (m SistarbancMovement) Kind() Kind { return KindSistarbancMovement }

func (m SistarbancMovement) Matches(other Record) bool {
	o, ok := other.(SistarbancMovement)
	if !ok {
		return false
	}
	return m.Card == o.Card &&
		m.Posted == o.Posted &&
		m.Title == o.Title &&
		m.Amount.Equal(o.Amount) &&
		m.Currency == o.Currency
}

func (m SistarbancMovement) Format() string {
	var b strings.Builder
	b.WriteString(bold(m.Title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Mov: %s\n", m.Moved.In(time.UTC).Format(SistarbancDateLayout))
	fmt.Fprintf(&b, "Ing: %s\n", m.Posted.In(time.UTC).Format(SistarbancDateLayout))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "<b>%s: %s</b>", html.EscapeString(m.Currency), formatAmount(m.Amount))
	return b.String()
}

// SistarbancAuthorization is a pending authorization on a Sistarbanc card.
type SistarbancAuthorization struct {
	Card     string          `json:"card"`
	At       civil.DateTime  `json:"date"`
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	// ID is the bank's authorization number; it is not stable across polls.
	ID           string `json:"id"`
	Installment  int    `json:"installment"`
	Installments int    `json:"installments"`
}

func (a SistarbancAuthorization) Kind() Kind { return KindSistarbancAuthorization }

func (a SistarbancAuthorization) Matches(other Record) bool {
	o, ok := other.(SistarbancAuthorization)
	if !ok {
		return false
	}
	return a.Card == o.Card &&
		a.At == o.At &&
		a.Title == o.Title &&
		a.Amount.Equal(o.Amount) &&
		a.Currency == o.Currency
}

func (a SistarbancAuthorization) Format() string {
	var b strings.Builder
	title := bold(a.Title)
	if a.Installments > 1 {
		title = bold(a.Title, fmt.Sprintf("%d/%d", a.Installment, a.Installments))
	}
	b.WriteString(title)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Date: %s\n", a.At.In(time.UTC).Format(SistarbancDateTimeLayout))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "<b>%s: %s</b>", html.EscapeString(a.Currency), formatAmount(a.Amount))
	return b.String()
}
