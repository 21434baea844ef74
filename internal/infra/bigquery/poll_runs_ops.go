// Package bigquery stores the poll run log in BigQuery.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-forwarder/internal/logger"
	"github.com/dvloznov/bank-forwarder/internal/runs"
)

const pollRunsTable = "poll_runs"

// defaultListLimit caps ListRuns when the filter sets no limit.
const defaultListLimit = 100

// rowInserter is the part of *bigquery.Inserter the repository uses.
type rowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// RunRepository appends poll runs to the poll_runs table and queries them.
type RunRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	inserter  rowInserter
}

// NewRunRepository creates a repository with its own BigQuery client.
func NewRunRepository(ctx context.Context, projectID, datasetID string) (*RunRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRunRepository: creating client: %w", err)
	}
	return &RunRepository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		inserter:  client.Dataset(datasetID).Table(pollRunsTable).Inserter(),
	}, nil
}

// Close closes the BigQuery client connection.
func (r *RunRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// EnsureTable creates the poll_runs table, partitioned by day of started_ts,
// unless it already exists.
func (r *RunRepository) EnsureTable(ctx context.Context) error {
	schema, err := bigquery.InferSchema(PollRunRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: inferring schema: %w", err)
	}
	meta := &bigquery.TableMetadata{
		Schema:           schema,
		TimePartitioning: &bigquery.TimePartitioning{Field: "started_ts"},
	}
	err = r.client.Dataset(r.datasetID).Table(pollRunsTable).Create(ctx, meta)
	if isAlreadyExists(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("EnsureTable: creating %s.%s: %w", r.datasetID, pollRunsTable, err)
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("dataset", r.datasetID).
		Str("table", pollRunsTable).
		Msg("Created poll runs table")
	return nil
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

// RecordRun implements runs.Recorder.
func (r *RunRepository) RecordRun(ctx context.Context, run *runs.Run) error {
	if err := r.inserter.Put(ctx, PollRunRowFromRun(run)); err != nil {
		return fmt.Errorf("RecordRun: inserting run %s: %w", run.RunID, err)
	}
	return nil
}

// ListRuns implements runs.Store, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, filter runs.Filter) ([]*runs.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	q := r.client.Query(fmt.Sprintf(`
		SELECT *
		FROM `+"`%s.%s.%s`"+`
		WHERE (@stream = "" OR stream = @stream)
		  AND (@status = "" OR status = @status)
		ORDER BY started_ts DESC
		LIMIT @limit
	`, r.projectID, r.datasetID, pollRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "stream", Value: filter.Stream},
		{Name: "status", Value: string(filter.Status)},
		{Name: "limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRuns: reading query: %w", err)
	}

	var result []*runs.Run
	for {
		var row PollRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRuns: iterating: %w", err)
		}
		result = append(result, row.Run())
	}
	return result, nil
}

// Ensure RunRepository implements runs.Store.
var _ runs.Store = (*RunRepository)(nil)
