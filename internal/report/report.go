// Package report renders operator tables for the CLI.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/dvloznov/bank-forwarder/internal/domain"
	"github.com/dvloznov/bank-forwarder/internal/notify"
	"github.com/dvloznov/bank-forwarder/internal/runs"
)

const maxErrorWidth = 60

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	return table
}

// Snapshot writes one row per cached record of a stream.
func Snapshot(w io.Writer, snap domain.Snapshot) {
	table := newTable(w, "#", "Kind", "Record")
	for i, r := range snap {
		table.Append([]string{strconv.Itoa(i + 1), string(r.Kind()), oneLine(notify.PlainText(r.Format()))})
	}
	table.Render()
	fmt.Fprintf(w, "%d records\n", len(snap))
}

// Streams writes the configured streams with their login group.
func Streams(w io.Writer, streams []domain.Stream) {
	table := newTable(w, "Stream", "Type", "Provider", "Credentials", "Account", "Currency")
	for _, s := range streams {
		account := s.AccountID
		if s.CardNumber != "" {
			account = s.CardNumber
		}
		table.Append([]string{s.Name, string(s.Kind), s.Provider(), s.CredentialsEnv, account, s.Currency})
	}
	table.Render()
}

// Runs writes the run log, newest first as given.
func Runs(w io.Writer, list []*runs.Run) {
	table := newTable(w, "Started", "Stream", "Status", "Fetched", "New", "Matched", "Gone", "Notified", "Duration", "Error")
	for _, r := range list {
		errText := ""
		if r.ErrorClass != "" {
			errText = r.ErrorClass + ": " + truncate(r.Error, maxErrorWidth)
		}
		table.Append([]string{
			r.StartedAt.UTC().Format(time.RFC3339),
			r.Stream,
			string(r.Status),
			strconv.Itoa(r.Fetched),
			strconv.Itoa(r.Additions),
			strconv.Itoa(r.Matches),
			strconv.Itoa(r.Deletions),
			strconv.Itoa(r.Notified),
			r.Duration().Round(time.Millisecond).String(),
			errText,
		})
	}
	table.Render()
}

// oneLine joins the non-blank lines of s with " | ".
func oneLine(s string) string {
	var parts []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " | ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
