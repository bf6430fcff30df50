package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetable-importer/internal/iff"
	"timetable-importer/internal/journey"
	"timetable-importer/internal/journey/journeytest"
	"timetable-importer/internal/pipeline"
)

func date(d int) time.Time { return time.Date(2025, time.January, d, 0, 0, 0, 0, time.UTC) }

func materializer() *journey.Materializer {
	ident := iff.Identification{CompanyNumber: "100", FirstValid: date(1), LastValid: date(3), VersionNumber: "1"}
	return &journey.Materializer{
		Identification: ident,
		Footnotes:      iff.NewFootnotes(ident, nil),
		Companies:      iff.NewCompanies(ident, []iff.Company{{ID: 100, Code: "ns", Name: "NS"}}),
		Log:            zerolog.Nop(),
	}
}

func call(t iff.StopType, station string, arr, dep *iff.Clock) iff.Call {
	return iff.Call{Event: iff.StationEvent{Type: t, Station: station, ArrivalTime: arr, DepartureTime: dep}}
}

func service(id iff.ServiceID, numbers ...uint32) iff.Service {
	svc := iff.Service{
		ID:            id,
		TransportMode: iff.TransportMode{Code: "SPR", FirstStop: 1, LastStop: 3},
		Calls: iff.Calls{
			call(iff.Departure, "ut", nil, &iff.Clock{Hour: 8}),
			call(iff.LongerStop, "ht", &iff.Clock{Hour: 8, Minute: 30}, &iff.Clock{Hour: 8, Minute: 32}),
			call(iff.Arrival, "ehv", &iff.Clock{Hour: 9}, nil),
		},
	}
	for i, n := range numbers {
		svc.Numbers = append(svc.Numbers, iff.ServiceNumber{
			CompanyNumber: 100,
			Number:        n,
			FirstStop:     uint32(i + 1),
			LastStop:      uint32(i + 2),
		})
	}
	return svc
}

type recorder struct {
	mu       sync.Mutex
	queued   int
	started  int
	finished map[string]int
	legs     []pipeline.Report
	runs     []pipeline.Summary
}

func newRecorder() *recorder { return &recorder{finished: map[string]int{}} }

func (r *recorder) LegQueued()  { r.mu.Lock(); r.queued++; r.mu.Unlock() }
func (r *recorder) LegStarted() { r.mu.Lock(); r.started++; r.mu.Unlock() }
func (r *recorder) LegFinished(state string, _ time.Duration, _, _ int) {
	r.mu.Lock()
	r.finished[state]++
	r.mu.Unlock()
}

type notifier struct{ *recorder }

func (n notifier) LegFinished(rep pipeline.Report) {
	n.mu.Lock()
	n.legs = append(n.legs, rep)
	n.mu.Unlock()
}

func (n notifier) RunFinished(s pipeline.Summary) {
	n.mu.Lock()
	n.runs = append(n.runs, s)
	n.mu.Unlock()
}

func TestRunIsolatesFailures(t *testing.T) {
	store := journeytest.NewMemStore()
	rec := newRecorder()

	badCompany := service(4, 4001)
	badCompany.Numbers[0].CompanyNumber = 999

	services := []iff.Service{
		service(1, 1001),
		service(2, 2001, 2002),
		service(3, 0),
		badCompany,
		service(5, 5001, 5002, 5003),
	}

	p := &pipeline.Pipeline{
		Store:        store,
		Materializer: materializer(),
		Workers:      3,
		Log:          zerolog.Nop(),
		Metrics:      rec,
		Notifier:     notifier{rec},
	}
	summary, err := p.Run(context.Background(), services)
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Legs)
	assert.Equal(t, 3, summary.Committed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 9, summary.Journeys)

	require.Len(t, summary.Failures, 2)
	var errs []error
	for _, f := range summary.Failures {
		errs = append(errs, f.Err)
	}
	joined := errors.Join(errs...)
	assert.ErrorIs(t, joined, journey.ErrCompanyNotFound)
	assert.ErrorIs(t, joined, iff.ErrUnsupportedLegCount)

	assert.Len(t, store.Services(), 3)
	assert.Equal(t, 3, store.Commits())

	assert.Equal(t, 5, rec.queued)
	assert.Equal(t, 5, rec.started)
	assert.Equal(t, map[string]int{"committed": 3, "skipped": 1, "failed": 2}, rec.finished)
	assert.Len(t, rec.legs, 6)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, summary.Legs, rec.runs[0].Legs)
}

func TestRunRollsBackFailedLeg(t *testing.T) {
	store := journeytest.NewMemStore()
	store.FailOn = func(st journey.Statement) error {
		if st.Name == journey.ServiceUpsertName && st.Args[0] == "2002" {
			return errors.New("unique violation")
		}
		return nil
	}

	p := &pipeline.Pipeline{Store: store, Materializer: materializer(), Workers: 2, Log: zerolog.Nop()}
	summary, err := p.Run(context.Background(), []iff.Service{service(1, 2001, 2002)})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Committed)
	assert.Equal(t, 1, summary.Failed)

	var se *journey.StatementError
	require.ErrorAs(t, summary.Failures[0].Err, &se)
	assert.Equal(t, "2002", summary.Failures[0].TrainNumber)

	services := store.Services()
	require.Len(t, services, 1)
	assert.Equal(t, "2001", services[0].TrainNumber)
}

func TestRunStopsQueueingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	services := make([]iff.Service, 20)
	for i := range services {
		services[i] = service(iff.ServiceID(i+1), uint32(1000+i))
	}

	p := &pipeline.Pipeline{Store: journeytest.NewMemStore(), Materializer: materializer(), Workers: 4, Log: zerolog.Nop()}
	summary, err := p.Run(ctx, services)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Legs)
}

type failingStore struct{}

func (failingStore) Begin(context.Context) (journey.Tx, error) {
	return nil, errors.New("too many connections")
}

func TestRunReportsBeginFailure(t *testing.T) {
	p := &pipeline.Pipeline{Store: failingStore{}, Materializer: materializer(), Log: zerolog.Nop()}
	summary, err := p.Run(context.Background(), []iff.Service{service(1, 1001)})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.ErrorContains(t, summary.Failures[0].Err, "begin")
}

func TestRunSingleWorkerWithCommitRate(t *testing.T) {
	store := journeytest.NewMemStore()
	p := &pipeline.Pipeline{
		Store:        store,
		Materializer: materializer(),
		Workers:      1,
		CommitRate:   1000,
		Log:          zerolog.Nop(),
	}
	summary, err := p.Run(context.Background(), []iff.Service{service(1, 1001), service(2, 1002)})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Committed)
	assert.Equal(t, 2, store.Commits())
}

func TestLegStateTerminal(t *testing.T) {
	assert.False(t, pipeline.Queued.Terminal())
	assert.False(t, pipeline.Processing.Terminal())
	assert.True(t, pipeline.Committed.Terminal())
	assert.True(t, pipeline.Skipped.Terminal())
	assert.True(t, pipeline.Failed.Terminal())
	assert.Equal(t, "failed", pipeline.Failed.String())
}
