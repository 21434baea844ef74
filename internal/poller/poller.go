// Package poller runs poll cycles: for every configured stream it fetches the
// current snapshot, reconciles it against the cached one, notifies the
// additions and stores the new snapshot.
//
// Streams are processed one at a time. A failing stream is logged, recorded
// and skipped; it never affects the other streams of the cycle. The snapshot
// is stored only after every addition was handed to the notifiers, so a crash
// in between repeats notifications on the next cycle instead of losing them.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/bank-forwarder/internal/domain"
	"github.com/dvloznov/bank-forwarder/internal/logger"
	"github.com/dvloznov/bank-forwarder/internal/notify"
	"github.com/dvloznov/bank-forwarder/internal/reconcile"
	"github.com/dvloznov/bank-forwarder/internal/runs"
	"github.com/dvloznov/bank-forwarder/internal/source"
)

// Snapshots loads and stores the cached snapshot of a stream.
type Snapshots interface {
	Load(ctx context.Context, stream domain.Stream) (domain.Snapshot, error)
	Save(ctx context.Context, stream domain.Stream, snap domain.Snapshot) error
}

// Categorizer suggests a spending category for a record's plain text.
type Categorizer interface {
	Categorize(ctx context.Context, recordText string) (string, error)
}

// Auditor records the stored snapshots after a cycle.
type Auditor interface {
	Commit(ctx context.Context, streams []string) error
}

// Deps are the collaborators of a Poller. Factory and Snapshots are
// required; the rest may be nil.
type Deps struct {
	Factory   source.Factory
	Snapshots Snapshots
	Targets   []notify.Target

	Categorizer Categorizer
	Auditor     Auditor
	Recorder    runs.Recorder
	Metrics     *Metrics
}

// Options tune cycle behavior.
type Options struct {
	// AbortPersistOnNotifyFailure skips the store when any notification of
	// the stream failed, so the same additions are found again next cycle.
	AbortPersistOnNotifyFailure bool

	// AuthAlertAfter is the number of consecutive failed logins of a group
	// after which a human alert is sent. Zero disables the alert.
	AuthAlertAfter int
}

// Poller runs poll cycles over a fixed set of streams. It is not safe for
// concurrent use; cycles must not overlap.
type Poller struct {
	streams []domain.Stream
	deps    Deps
	opts    Options

	// authFailures counts consecutive failed logins per group.
	authFailures map[domain.LoginGroup]int

	now   func() time.Time
	newID func() string
}

// New creates a Poller for streams.
func New(streams []domain.Stream, deps Deps, opts Options) *Poller {
	return &Poller{
		streams:      streams,
		deps:         deps,
		opts:         opts,
		authFailures: make(map[domain.LoginGroup]int),
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// CycleResult summarises one poll cycle.
type CycleResult struct {
	CycleID string
	Runs    []*runs.Run
}

// Failed returns the runs that skipped their stream.
func (r *CycleResult) Failed() []*runs.Run {
	var failed []*runs.Run
	for _, run := range r.Runs {
		if run.Status == runs.StatusFailed {
			failed = append(failed, run)
		}
	}
	return failed
}

// RunCycle polls every stream once, grouped by login so each group logs in
// once. The cycle is not interrupted by cancellation of ctx; callers stop
// scheduling further cycles instead.
func (p *Poller) RunCycle(ctx context.Context) *CycleResult {
	ctx = context.WithoutCancel(ctx)
	result := &CycleResult{CycleID: p.newID()}

	log := logger.FromContext(ctx).With().Str("cycle_id", result.CycleID).Logger()
	ctx = logger.WithContext(ctx, log)
	started := p.now()

	order, groups := domain.GroupStreams(p.streams)
	for _, group := range order {
		result.Runs = append(result.Runs, p.pollGroup(ctx, result.CycleID, group, groups[group])...)
	}

	p.audit(ctx, result.Runs)

	elapsed := p.now().Sub(started)
	p.deps.Metrics.cycle(elapsed)
	log.Info().
		Int("streams", len(result.Runs)).
		Int("failed", len(result.Failed())).
		Dur("duration", elapsed).
		Msg("Poll cycle complete")

	return result
}

func (p *Poller) pollGroup(ctx context.Context, cycleID string, group domain.LoginGroup, streams []domain.Stream) []*runs.Run {
	log := logger.FromContext(ctx).With().
		Str("provider", group.Provider).
		Str("credentials_env", group.CredentialsEnv).
		Logger()
	ctx = logger.WithContext(ctx, log)

	provider, err := p.login(ctx, group)
	if err != nil {
		p.loginFailed(ctx, group, err)
		out := make([]*runs.Run, 0, len(streams))
		for _, stream := range streams {
			run := p.startRun(cycleID, stream)
			p.fail(logger.WithContext(ctx, logger.WithStream(log, stream.Name, string(stream.Kind))), run, err, false)
			out = append(out, run)
		}
		return out
	}
	defer func() {
		if err := provider.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close provider session")
		}
	}()
	delete(p.authFailures, group)

	out := make([]*runs.Run, 0, len(streams))
	for _, stream := range streams {
		out = append(out, p.pollStream(ctx, cycleID, provider, stream))
	}
	return out
}

func (p *Poller) login(ctx context.Context, group domain.LoginGroup) (source.Provider, error) {
	provider, err := p.deps.Factory.NewProvider(ctx, group)
	if err != nil {
		return nil, err
	}
	if err := provider.Login(ctx); err != nil {
		if cerr := provider.Close(); cerr != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(cerr).Msg("Failed to close provider session")
		}
		return nil, err
	}
	return provider, nil
}

// loginFailed counts the failure and alerts once when the streak reaches
// AuthAlertAfter.
func (p *Poller) loginFailed(ctx context.Context, group domain.LoginGroup, err error) {
	p.authFailures[group]++
	streak := p.authFailures[group]

	log := logger.FromContext(ctx)
	log.Error().
		Err(err).
		Int("consecutive_failures", streak).
		Msg("Login failed, skipping group")

	if p.opts.AuthAlertAfter > 0 && streak == p.opts.AuthAlertAfter {
		name := fmt.Sprintf("%s (%s)", group.Provider, group.CredentialsEnv)
		p.alert(ctx, name, domain.Classify(err), fmt.Errorf("%d consecutive login failures: %w", streak, err))
	}
}

func (p *Poller) startRun(cycleID string, stream domain.Stream) *runs.Run {
	return &runs.Run{
		RunID:     p.newID(),
		CycleID:   cycleID,
		Stream:    stream.Name,
		Kind:      string(stream.Kind),
		StartedAt: p.now(),
	}
}

// pollStream runs fetch, load, reconcile, notify and store for one stream.
func (p *Poller) pollStream(ctx context.Context, cycleID string, provider source.Provider, stream domain.Stream) *runs.Run {
	run := p.startRun(cycleID, stream)
	log := logger.WithStream(logger.FromContext(ctx), stream.Name, string(stream.Kind))
	log = log.With().Str("run_id", run.RunID).Logger()
	ctx = logger.WithContext(ctx, log)

	current, err := provider.Fetch(ctx, stream)
	if err != nil {
		p.fail(ctx, run, err, true)
		return run
	}
	if err := current.Validate(stream.Kind); err != nil {
		p.fail(ctx, run, &domain.FetchStructureError{Stream: stream.Name, Err: err}, true)
		return run
	}
	run.Fetched = len(current)

	cached, err := p.deps.Snapshots.Load(ctx, stream)
	if err != nil {
		p.fail(ctx, run, err, true)
		return run
	}

	diff := reconcile.Reconcile(current, cached)
	run.Additions = len(diff.Additions)
	run.Matches = len(diff.Matches)
	run.Deletions = len(diff.Deletions)
	p.deps.Metrics.observeDiff(stream.Name, run.Additions, run.Matches, run.Deletions)

	log.Debug().
		Int("fetched", run.Fetched).
		Int("cached", len(cached)).
		Int("additions", run.Additions).
		Int("matches", run.Matches).
		Int("deletions", run.Deletions).
		Msg("Reconciled snapshot")

	for _, record := range diff.Additions {
		p.notifyAddition(ctx, run, stream, record)
	}

	if run.NotifyFailures > 0 && p.opts.AbortPersistOnNotifyFailure {
		log.Warn().
			Int("notify_failures", run.NotifyFailures).
			Msg("Keeping previous snapshot so failed notifications are retried")
		p.finish(ctx, run, runs.StatusPartial)
		return run
	}

	if err := p.deps.Snapshots.Save(ctx, stream, current); err != nil {
		p.fail(ctx, run, err, true)
		return run
	}
	run.Persisted = true
	p.deps.Metrics.stored(stream.Name, p.now())

	status := runs.StatusSucceeded
	if run.NotifyFailures > 0 {
		status = runs.StatusPartial
	}
	p.finish(ctx, run, status)
	return run
}

// notifyAddition sends one addition to every target. Failures are counted
// and logged; they never stop the remaining deliveries.
func (p *Poller) notifyAddition(ctx context.Context, run *runs.Run, stream domain.Stream, record domain.Record) {
	log := logger.FromContext(ctx)
	message := notify.RecordMessage(stream.Name, p.body(ctx, record))

	for _, target := range p.deps.Targets {
		err := target.Send(ctx, message)
		p.deps.Metrics.notification(target.Name, err)
		if err != nil {
			run.NotifyFailures++
			log.Error().Err(err).Str("target", target.Name).Msg("Failed to deliver notification")
			continue
		}
		run.Notified++
	}
}

// body formats the record, adding the suggested category when a categorizer
// is configured and answers.
func (p *Poller) body(ctx context.Context, record domain.Record) string {
	body := record.Format()
	if p.deps.Categorizer == nil {
		return body
	}
	category, err := p.deps.Categorizer.Categorize(ctx, notify.PlainText(body))
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Categorization failed, sending without category")
		return body
	}
	return body + "\n\n<i>Category: " + category + "</i>"
}

// fail marks the run failed. Structural and persistence failures are also
// alerted when alert is set; login failures are alerted by loginFailed.
func (p *Poller) fail(ctx context.Context, run *runs.Run, err error, alert bool) {
	class := domain.Classify(err)
	run.ErrorClass = string(class)
	run.Error = err.Error()
	p.deps.Metrics.streamError(run.Stream, string(class))

	log := logger.FromContext(ctx)
	log.Error().
		Err(err).
		Str("error_class", string(class)).
		Msg("Stream skipped")

	if alert && (class == domain.ClassPersistence || class == domain.ClassFetchStructure) {
		p.alert(ctx, run.Stream, class, err)
	}
	p.finish(ctx, run, runs.StatusFailed)
}

func (p *Poller) finish(ctx context.Context, run *runs.Run, status runs.Status) {
	run.Status = status
	run.FinishedAt = p.now()

	log := logger.FromContext(ctx)
	if status != runs.StatusFailed {
		log.Info().
			Str("status", string(status)).
			Int("additions", run.Additions).
			Int("notified", run.Notified).
			Bool("persisted", run.Persisted).
			Msg("Stream polled")
	}
	if p.deps.Recorder == nil {
		return
	}
	if err := p.deps.Recorder.RecordRun(ctx, run); err != nil {
		log.Warn().Err(err).Msg("Failed to record run")
	}
}

// alert sends an operational message to every target. Delivery failures are
// only logged.
func (p *Poller) alert(ctx context.Context, name string, class domain.ErrorClass, err error) {
	log := logger.FromContext(ctx)
	message := notify.AlertMessage(name, string(class), err)
	for _, target := range p.deps.Targets {
		if serr := target.Send(ctx, message); serr != nil {
			log.Error().Err(serr).Str("target", target.Name).Msg("Failed to deliver alert")
		}
	}
}

// audit commits the stored snapshots. It never fails the cycle.
func (p *Poller) audit(ctx context.Context, cycleRuns []*runs.Run) {
	if p.deps.Auditor == nil {
		return
	}
	var touched []string
	for _, run := range cycleRuns {
		if run.Persisted {
			touched = append(touched, run.Stream)
		}
	}
	if len(touched) == 0 {
		return
	}
	log := logger.FromContext(ctx)
	if err := p.deps.Auditor.Commit(ctx, touched); err != nil {
		log.Warn().Err(err).Strs("streams", touched).Msg("Audit commit failed")
		return
	}
	log.Debug().Strs("streams", touched).Msg("Audit commit done")
}
