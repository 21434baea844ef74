package bigquery

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/bigquery"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/bank-forwarder/internal/runs"
)

// MockInserter is a mock implementation of rowInserter.
type MockInserter struct {
	PutFunc func(ctx context.Context, src interface{}) error
}

func (m *MockInserter) Put(ctx context.Context, src interface{}) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, src)
	}
	return nil
}

func sampleRun() *runs.Run {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &runs.Run{
		RunID:      "run-1",
		CycleID:    "cycle-1",
		Stream:     "itau-usd",
		Kind:       "itau_bank_account",
		Status:     runs.StatusFailed,
		Fetched:    4,
		Additions:  1,
		Matches:    3,
		ErrorClass: "persistence",
		Error:      "disk full",
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
	}
}

func TestRunRepository_RecordRun(t *testing.T) {
	var got interface{}
	repo := &RunRepository{inserter: &MockInserter{
		PutFunc: func(_ context.Context, src interface{}) error {
			got = src
			return nil
		},
	}}

	if err := repo.RecordRun(context.Background(), sampleRun()); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	row, ok := got.(*PollRunRow)
	if !ok {
		t.Fatalf("Put() got %T, want *PollRunRow", got)
	}
	if diff := cmp.Diff(sampleRun(), row.Run()); diff != "" {
		t.Errorf("row does not round-trip (-want +got):\n%s", diff)
	}
}

func TestRunRepository_RecordRunError(t *testing.T) {
	boom := errors.New("quota exceeded")
	repo := &RunRepository{inserter: &MockInserter{
		PutFunc: func(context.Context, interface{}) error { return boom },
	}}

	err := repo.RecordRun(context.Background(), sampleRun())
	if !errors.Is(err, boom) {
		t.Errorf("RecordRun() error = %v, want %v", err, boom)
	}
}

func TestPollRunRow_Save(t *testing.T) {
	row := PollRunRowFromRun(sampleRun())

	values, insertID, err := row.Save()
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if insertID != "run-1" {
		t.Errorf("insertID = %q, want run-1", insertID)
	}
	if values["stream"] != "itau-usd" || values["additions"] != int64(1) {
		t.Errorf("Save() values = %v", values)
	}
	if ec, _ := values["error_class"].(bigquery.NullString); !ec.Valid || ec.StringVal != "persistence" {
		t.Errorf("error_class = %v", values["error_class"])
	}
}

func TestPollRunRowFromRun_NullsAndTruncation(t *testing.T) {
	ok := PollRunRowFromRun(&runs.Run{RunID: "r", Status: runs.StatusSucceeded})
	if ok.ErrorClass.Valid || ok.ErrorMessage.Valid {
		t.Errorf("successful run has error columns set: %+v", ok)
	}

	long := PollRunRowFromRun(&runs.Run{RunID: "r", Error: strings.Repeat("x", 3000)})
	if got := len(long.ErrorMessage.StringVal); got != maxErrorLen {
		t.Errorf("error_message length = %d, want %d", got, maxErrorLen)
	}
}

func TestPollRunRowFromRun_TruncatesOnRuneBoundary(t *testing.T) {
	// "a" shifts every two-byte "ó" so the byte limit lands inside a rune.
	msg := "a" + strings.Repeat("ó", 1500)

	row := PollRunRowFromRun(&runs.Run{RunID: "r", Error: msg})

	got := row.ErrorMessage.StringVal
	if !utf8.ValidString(got) {
		t.Fatalf("error_message is not valid UTF-8 (%d bytes)", len(got))
	}
	if len(got) != maxErrorLen-1 {
		t.Errorf("error_message length = %d, want %d", len(got), maxErrorLen-1)
	}
	if !strings.HasPrefix(msg, got) {
		t.Error("error_message is not a prefix of the error")
	}
}

func TestIsAlreadyExists(t *testing.T) {
	if !isAlreadyExists(&googleapi.Error{Code: http.StatusConflict}) {
		t.Error("409 not treated as already exists")
	}
	if isAlreadyExists(&googleapi.Error{Code: http.StatusForbidden}) {
		t.Error("403 treated as already exists")
	}
	if isAlreadyExists(nil) {
		t.Error("nil treated as already exists")
	}
}

func TestInferSchema(t *testing.T) {
	schema, err := bigquery.InferSchema(PollRunRow{})
	if err != nil {
		t.Fatalf("InferSchema() error = %v", err)
	}
	if len(schema) != 16 {
		t.Errorf("schema has %d fields, want 16", len(schema))
	}
}
