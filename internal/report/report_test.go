package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-forwarder/internal/domain"
	"github.com/dvloznov/bank-forwarder/internal/runs"
)

func TestSnapshot(t *testing.T) {
	snap := domain.Snapshot{
		domain.SistarbancMovement{
			Card:     "XXXX 1234",
			Posted:   civil.Date{Year: 2024, Month: 1, Day: 3},
			Title:    "FARMACIA & CIA",
			Amount:   decimal.RequireFromString("12.3"),
			Currency: "USD",
			Moved:    civil.Date{Year: 2024, Month: 1, Day: 2},
		},
	}
	var buf bytes.Buffer

	Snapshot(&buf, snap)

	out := buf.String()
	for _, want := range []string{
		"sistarbanc_movements",
		"FARMACIA & CIA | Mov: 02/01/24 | Ing: 03/01/24 | USD: 12.30",
		"1 records",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<b>") {
		t.Errorf("markup not stripped:\n%s", out)
	}
}

func TestSnapshot_Empty(t *testing.T) {
	var buf bytes.Buffer
	Snapshot(&buf, nil)
	if !strings.Contains(buf.String(), "0 records") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestStreams(t *testing.T) {
	var buf bytes.Buffer

	Streams(&buf, []domain.Stream{
		{Name: "itau-uyu", Kind: domain.KindItauAccountMovement, CredentialsEnv: "ITAU_CREDS", AccountID: "0012345", Currency: "UYU"},
		{Name: "sis", Kind: domain.KindSistarbancMovement, CredentialsEnv: "SIS_CREDS", CardNumber: "1234"},
	})

	out := buf.String()
	for _, want := range []string{"itau-uyu", "itau_bank_account", "ITAU_CREDS", "0012345", "sistarbanc", "1234"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRuns(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer

	Runs(&buf, []*runs.Run{
		{Stream: "sis", Status: runs.StatusFailed, ErrorClass: "authentication", Error: strings.Repeat("x", 100), StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)},
		{Stream: "itau", Status: runs.StatusSucceeded, Fetched: 5, Additions: 2, Matches: 3, Notified: 2, StartedAt: start, FinishedAt: start.Add(time.Second)},
	})

	out := buf.String()
	for _, want := range []string{"2024-01-01T12:00:00Z", "authentication: xxx", "…", "1.5s", "succeeded"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", 60)) {
		t.Errorf("error not truncated:\n%s", out)
	}
}
