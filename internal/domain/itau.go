package domain

import (
	"fmt"
	"html"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ItauAccountMovement is a posted movement on an Itau bank account for the
// current month.
type ItauAccountMovement struct {
	Date        civil.Date      `json:"date"`
	Type        string          `json:"type"` // "D" debit, "C" credit
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`

	// The bank appends or truncates the additional description between
	// polls, and the balance changes with every later movement.
	AdditionalDescription string          `json:"additional_description"`
	FormCode              int             `json:"form_code"`
	Balance               decimal.Decimal `json:"balance"`
}

func (m ItauAccountMovement) Kind() Kind { return KindItauAccountMovement }

func (m ItauAccountMovement) Matches(other Record) bool {
	o, ok := other.(ItauAccountMovement)
	if !ok {
		return false
	}
	return m.Date == o.Date &&
		m.Type == o.Type &&
		m.Description == o.Description &&
		m.Amount.Equal(o.Amount) &&
		m.Currency == o.Currency
}

func (m ItauAccountMovement) Format() string {
	var b strings.Builder
	b.WriteString(bold(m.Type, m.Description, m.AdditionalDescription))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "<b>Fecha:</b> %s\n\n", m.Date)
	fmt.Fprintf(&b, "<b>Importe:</b> %s %s\n", html.EscapeString(m.Currency), formatAmount(m.Amount))
	return b.String()
}

// ItauCardAuthorization is a pending (not yet posted) credit card
// authorization reported by Itau.
type ItauCardAuthorization struct {
	Date     civil.Date      `json:"date"`
	Card     string          `json:"card"`
	Merchant string          `json:"merchant"`
	Type     string          `json:"type"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`

	Time           string `json:"time"`
	Reservation    string `json:"reservation"`
	ResponseNumber int    `json:"response_number"`
	Label          string `json:"label"`
	Approved       bool   `json:"approved"`
}

func (a ItauCardAuthorization) Kind() Kind { return KindItauCardAuthorization }

func (a ItauCardAuthorization) Matches(other Record) bool {
	o, ok := other.(ItauCardAuthorization)
	if !ok {
		return false
	}
	return a.Date == o.Date &&
		a.Card == o.Card &&
		a.Merchant == o.Merchant &&
		a.Type == o.Type &&
		a.Currency == o.Currency &&
		a.Amount.Equal(o.Amount)
}

func (a ItauCardAuthorization) Format() string {
	var b strings.Builder
	b.WriteString(bold(a.Type, a.Merchant+":", a.Label))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "<b>Fecha:</b> %s %s\n\n", a.Date, html.EscapeString(a.Time))
	fmt.Fprintf(&b, "<b>%s:</b> %s\n", html.EscapeString(a.Currency), formatAmount(a.Amount))
	return b.String()
}
