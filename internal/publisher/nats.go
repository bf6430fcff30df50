package publisher

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"timetable-importer/internal/pipeline"
)

// NATSPublisher announces import progress. Publish failures are counted and
// logged but never fail the import.
type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	log         zerolog.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics, log zerolog.Logger) (*NATSPublisher, error) {
	log = log.With().Str("component", "nats").Logger()
	nc, err := nats.Connect(url,
		nats.Name("timetable-importer"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: subjectPrefix(prefix), logSubjects: logSubjects, metrics: m, log: log}, nil
}

// Close flushes pending messages before closing the connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.log.Warn().Err(err).Msg("nats drain")
		}
		p.nc.Close()
	}
}

type LegMessage struct {
	ServiceID   uint32    `json:"serviceId"`
	TrainNumber string    `json:"trainNumber,omitempty"`
	State       string    `json:"state"`
	Worker      int       `json:"worker"`
	Journeys    int       `json:"journeys"`
	Events      int       `json:"events"`
	ElapsedMs   int64     `json:"elapsedMs"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type RunMessage struct {
	Legs      int       `json:"legs"`
	Committed int       `json:"committed"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Journeys  int       `json:"journeys"`
	Events    int       `json:"events"`
	ElapsedMs int64     `json:"elapsedMs"`
	Timestamp time.Time `json:"timestamp"`
}

func legMessage(r pipeline.Report, now time.Time) LegMessage {
	msg := LegMessage{
		ServiceID:   uint32(r.ServiceID),
		TrainNumber: r.TrainNumber,
		State:       r.State.String(),
		Worker:      r.Worker,
		Journeys:    r.Journeys,
		Events:      r.Events,
		ElapsedMs:   r.Elapsed.Milliseconds(),
		Timestamp:   now.UTC(),
	}
	if r.Err != nil {
		msg.Error = r.Err.Error()
	}
	return msg
}

func runMessage(s pipeline.Summary, now time.Time) RunMessage {
	return RunMessage{
		Legs:      s.Legs,
		Committed: s.Committed,
		Skipped:   s.Skipped,
		Failed:    s.Failed,
		Journeys:  s.Journeys,
		Events:    s.Events,
		ElapsedMs: s.Elapsed.Milliseconds(),
		Timestamp: now.UTC(),
	}
}

func (p *NATSPublisher) legSubject(state pipeline.LegState) string {
	return p.prefix + ".leg." + subjectToken(state.String())
}

func (p *NATSPublisher) runSubject() string { return p.prefix + ".run" }

// LegFinished publishes the terminal state of one leg.
func (p *NATSPublisher) LegFinished(r pipeline.Report) {
	p.publish(p.legSubject(r.State), legMessage(r, time.Now()))
}

// RunFinished publishes the run summary.
func (p *NATSPublisher) RunFinished(s pipeline.Summary) {
	p.publish(p.runSubject(), runMessage(s, time.Now()))
	if err := p.nc.Flush(); err != nil {
		p.log.Warn().Err(err).Msg("nats flush")
	}
}

func (p *NATSPublisher) publish(subject string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		p.log.Error().Err(err).Str("subject", subject).Msg("marshal message")
		return
	}
	if p.logSubjects {
		p.log.Debug().Str("subject", subject).Msg("nats publish")
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("nats publish failed")
	}
}

func subjectPrefix(prefix string) string {
	parts := strings.Split(strings.Trim(prefix, "."), ".")
	for i, part := range parts {
		parts[i] = subjectToken(part)
	}
	return strings.Join(parts, ".")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
