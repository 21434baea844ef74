package domain

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind identifies the concrete record variant a stream produces. The string
// values double as the `type` discriminator in the accounts config.
type Kind string

const (
	KindItauAccountMovement     Kind = "itau_bank_account"
	KindItauCardAuthorization   Kind = "itau_card_authorizations"
	KindSistarbancMovement      Kind = "sistarbanc_movements"
	KindSistarbancAuthorization Kind = "sistarbanc_authorizations"
)

// Provider names the bank a record kind is fetched from. Streams of the same
// provider that share credentials share one login per cycle.
const (
	ProviderItau       = "itau"
	ProviderSistarbanc = "sistarbanc"
)

// Record is one fetched financial event. Implementations are value types and
// are never modified after the source builds them.
type Record interface {
	// Kind reports the variant; Matches is only true between records of the same kind.
	Kind() Kind

	// Matches reports whether other is the same real-world event, comparing
	// identity fields only. It is symmetric and reflexive.
	Matches(other Record) bool

	// Format renders the record as a Telegram HTML message body.
	Format() string
}

// Snapshot is the ordered list of records returned by one fetch of one stream.
type Snapshot []Record

// Validate checks that every record in the snapshot is of the given kind.
func (s Snapshot) Validate(kind Kind) error {
	for i, r := range s {
		if r == nil {
			return fmt.Errorf("record %d is nil", i)
		}
		if r.Kind() != kind {
			return fmt.Errorf("record %d is %s, want %s", i, r.Kind(), kind)
		}
	}
	return nil
}

type kindInfo struct {
	provider string
	identity []string
	volatile []string
	decode   func([]byte) (Snapshot, error)
}

// kinds is the closed set of record variants. Field names are the JSON names
// used in persisted snapshots.
var kinds = map[Kind]kindInfo{
	KindItauAccountMovement: {
		provider: ProviderItau,
		identity: []string{"date", "type", "description", "amount", "currency"},
		volatile: []string{"additional_description", "form_code", "balance"},
		decode:   decodeAs[ItauAccountMovement],
	},
	KindItauCardAuthorization: {
		provider: ProviderItau,
		identity: []string{"date", "card", "merchant", "type", "currency", "amount"},
		volatile: []string{"time", "reservation", "response_number", "label", "approved"},
		decode:   decodeAs[ItauCardAuthorization],
	},
	KindSistarbancMovement: {
		provider: ProviderSistarbanc,
		identity: []string{"card", "ing", "title", "amount", "currency"},
		volatile: []string{"mov"},
		decode:   decodeAs[SistarbancMovement],
	},
	KindSistarbancAuthorization: {
		provider: ProviderSistarbanc,
		identity: []string{"card", "date", "title", "amount", "currency"},
		volatile: []string{"id", "installment", "installments"},
		decode:   decodeAs[SistarbancAuthorization],
	},
}

// Kinds returns every known kind.
func Kinds() []Kind {
	return []Kind{
		KindItauAccountMovement,
		KindItauCardAuthorization,
		KindSistarbancMovement,
		KindSistarbancAuthorization,
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Provider returns the provider name for the kind, or "" for an unknown kind.
func (k Kind) Provider() string {
	return kinds[k].provider
}

// identityFields returns the JSON names of the fields Matches compares.
func (k Kind) identityFields() []string {
	return append([]string(nil), kinds[k].identity...)
}

// volatileFields returns the JSON names of the fields that may drift between
// polls and are ignored by Matches.
func (k Kind) volatileFields() []string {
	return append([]string(nil), kinds[k].volatile...)
}

// formatAmount renders an amount with two decimals, the way the banks print them.
func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func bold(parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		escaped = append(escaped, html.EscapeString(p))
	}
	return "<b>" + strings.Join(escaped, " ") + "</b>"
}
