// Package pipeline loads a parsed timetable into the store, one transaction
// per service leg, across a fixed pool of workers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"timetable-importer/internal/iff"
	"timetable-importer/internal/journey"
)

// LegState is the lifecycle position of one leg.
type LegState uint8

const (
	Queued LegState = iota
	Processing
	Committed
	Skipped
	Failed
)

func (s LegState) String() string {
	switch s {
	case Queued:
		return "queued"
	case Processing:
		return "processing"
	case Committed:
		return "committed"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("LegState(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition can follow s.
func (s LegState) Terminal() bool { return s >= Committed }

// Store opens the per-leg transaction.
type Store interface {
	Begin(ctx context.Context) (journey.Tx, error)
}

type Materializer interface {
	Materialize(ctx context.Context, exec journey.Executor, leg iff.ServiceLeg) (journey.Result, error)
}

// Metrics receives leg lifecycle events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	LegQueued()
	LegStarted()
	LegFinished(state string, elapsed time.Duration, journeys, events int)
}

// Notifier is told about every terminal leg and the finished run.
type Notifier interface {
	LegFinished(r Report)
	RunFinished(s Summary)
}

// Report is the terminal state of one leg.
type Report struct {
	Worker      int
	ServiceID   iff.ServiceID
	TrainNumber string
	State       LegState
	Journeys    int
	Events      int
	Elapsed     time.Duration
	Err         error
}

type Failure struct {
	ServiceID   iff.ServiceID
	TrainNumber string
	Err         error
}

// Summary counts the outcome of a run.
type Summary struct {
	Legs      int
	Committed int
	Skipped   int
	Failed    int
	Journeys  int
	Events    int
	Failures  []Failure
	Elapsed   time.Duration
}

type Pipeline struct {
	Store        Store
	Materializer Materializer
	// Workers bounds concurrent transactions; values below 1 mean 1.
	Workers int
	// CommitRate caps commits per second. Only honored with a single worker.
	CommitRate float64
	Log        zerolog.Logger
	Metrics    Metrics
	Notifier   Notifier
}

// Run splits every service into legs and loads them. Cancelling ctx stops
// queueing new legs; legs already picked up by a worker run to completion.
// The summary covers every leg that reached a terminal state.
func (p *Pipeline) Run(ctx context.Context, services []iff.Service) (Summary, error) {
	start := time.Now()
	workers := max(p.Workers, 1)

	var limiter *rate.Limiter
	if workers == 1 && p.CommitRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.CommitRate), 1)
	}

	jobs := make(chan iff.ServiceLeg, workers)
	reports := make(chan Report, workers)

	var summary Summary
	var collector conc.WaitGroup
	collector.Go(func() {
		for r := range reports {
			p.collect(&summary, r)
		}
	})

	var pool conc.WaitGroup
	for id := range workers {
		pool.Go(func() {
			p.Log.Debug().Int("worker", id).Msg("worker started")
			for leg := range jobs {
				reports <- p.process(ctx, id, leg, limiter)
			}
			p.Log.Debug().Int("worker", id).Msg("worker exiting")
		})
	}

	err := p.produce(ctx, services, jobs, reports)
	close(jobs)
	pool.Wait()
	close(reports)
	collector.Wait()

	summary.Elapsed = time.Since(start)
	if p.Notifier != nil {
		p.Notifier.RunFinished(summary)
	}
	p.Log.Info().
		Int("legs", summary.Legs).
		Int("committed", summary.Committed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("journeys", summary.Journeys).
		Int("events", summary.Events).
		Dur("elapsed", summary.Elapsed).
		Msg("load finished")
	return summary, err
}

// produce flattens services into legs. A service that cannot be split is
// reported as failed without stopping the run.
func (p *Pipeline) produce(ctx context.Context, services []iff.Service, jobs chan<- iff.ServiceLeg, reports chan<- Report) error {
	for _, svc := range services {
		legs, err := svc.SplitLegs()
		if err != nil {
			reports <- Report{Worker: -1, ServiceID: svc.ID, State: Failed, Err: err}
			continue
		}
		for _, leg := range legs {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("queueing stopped: %w", err)
			}
			if p.Metrics != nil {
				p.Metrics.LegQueued()
			}
			select {
			case jobs <- leg:
			case <-ctx.Done():
				return fmt.Errorf("queueing stopped: %w", ctx.Err())
			}
		}
	}
	return nil
}

func (p *Pipeline) process(ctx context.Context, worker int, leg iff.ServiceLeg, limiter *rate.Limiter) Report {
	start := time.Now()
	if p.Metrics != nil {
		p.Metrics.LegStarted()
	}

	r := p.runLeg(context.WithoutCancel(ctx), leg, limiter)
	r.Worker = worker
	r.ServiceID = leg.ServiceID
	r.Elapsed = time.Since(start)
	return r
}

func (p *Pipeline) runLeg(ctx context.Context, leg iff.ServiceLeg, limiter *rate.Limiter) Report {
	tx, err := p.Store.Begin(ctx)
	if err != nil {
		return Report{State: Failed, Err: fmt.Errorf("begin: %w", err)}
	}

	res, err := p.Materializer.Materialize(ctx, tx, leg)
	r := Report{TrainNumber: res.TrainNumber}
	if err != nil {
		_ = tx.Rollback()
		r.State, r.Err = Failed, err
		return r
	}
	if res.Outcome == journey.OutcomeSkipped {
		_ = tx.Rollback()
		r.State = Skipped
		return r
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			_ = tx.Rollback()
			r.State, r.Err = Failed, err
			return r
		}
	}
	if err := tx.Commit(); err != nil {
		r.State, r.Err = Failed, fmt.Errorf("commit: %w", err)
		return r
	}
	r.State = Committed
	r.Journeys, r.Events = res.Journeys, res.Events
	return r
}

func (p *Pipeline) collect(s *Summary, r Report) {
	s.Legs++
	switch r.State {
	case Committed:
		s.Committed++
		s.Journeys += r.Journeys
		s.Events += r.Events
	case Skipped:
		s.Skipped++
	default:
		s.Failed++
		s.Failures = append(s.Failures, Failure{ServiceID: r.ServiceID, TrainNumber: r.TrainNumber, Err: r.Err})
	}

	if p.Metrics != nil {
		p.Metrics.LegFinished(r.State.String(), r.Elapsed, r.Journeys, r.Events)
	}
	if p.Notifier != nil {
		p.Notifier.LegFinished(r)
	}

	ev := p.Log.Debug()
	if r.State == Failed {
		ev = p.Log.Error().Err(r.Err)
		var se *journey.StatementError
		if errors.As(r.Err, &se) {
			ev = ev.Str("statement", se.Statement.SQL).Interface("args", se.Statement.Args)
		}
	}
	ev.Uint32("service_id", uint32(r.ServiceID)).
		Str("train_number", r.TrainNumber).
		Int("worker", r.Worker).
		Str("state", r.State.String()).
		Dur("elapsed", r.Elapsed).
		Msg("leg finished")
}
