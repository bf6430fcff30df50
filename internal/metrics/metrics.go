package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"
)

type Collector struct {
	reg *prometheus.Registry

	LegsQueued   prometheus.Counter
	LegsInFlight prometheus.Gauge
	LegsFinished *prometheus.CounterVec // state label: committed|skipped|failed

	JourneysWritten prometheus.Counter
	EventsWritten   prometheus.Counter

	LegDuration prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	Workers        prometheus.Gauge
	ValidityDays   prometheus.Gauge
	ServicesParsed prometheus.Gauge
}

func NewCollector(workers int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		LegsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "importer_legs_queued_total",
			Help: "Total service legs queued for loading.",
		}),
		LegsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "importer_legs_in_flight",
			Help: "Number of legs currently inside a worker transaction.",
		}),
		LegsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "importer_legs_finished_total",
			Help: "Total legs that reached a terminal state.",
		}, []string{"state"}),
		JourneysWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "importer_journeys_written_total",
			Help: "Total journey rows upserted in committed legs.",
		}),
		EventsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "importer_journey_events_written_total",
			Help: "Total journey event rows upserted in committed legs.",
		}),
		LegDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "importer_leg_duration_seconds",
			Help:    "Duration of one leg transaction.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "importer_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "importer_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "importer_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "importer_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "importer_workers",
			Help: "Configured number of load workers.",
		}),
		ValidityDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "importer_validity_days",
			Help: "Days covered by the delivery being loaded.",
		}),
		ServicesParsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "importer_services_parsed",
			Help: "Services parsed from the timetable file.",
		}),
	}

	reg.MustRegister(
		c.LegsQueued, c.LegsInFlight, c.LegsFinished,
		c.JourneysWritten, c.EventsWritten, c.LegDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.Workers, c.ValidityDays, c.ServicesParsed,
	)

	c.Workers.Set(float64(workers))
	return c
}

func (c *Collector) LegQueued()  { c.LegsQueued.Inc() }
func (c *Collector) LegStarted() { c.LegsInFlight.Inc() }

func (c *Collector) LegFinished(state string, elapsed time.Duration, journeys, events int) {
	c.LegsFinished.WithLabelValues(state).Inc()
	// Legs failed before a worker picked them up never entered the gauge.
	if elapsed > 0 {
		c.LegsInFlight.Dec()
		c.LegDuration.Observe(elapsed.Seconds())
	}
	c.JourneysWritten.Add(float64(journeys))
	c.EventsWritten.Add(float64(events))
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Router serves /metrics and a liveness probe on /healthz.
func (c *Collector) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", c.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve starts an HTTP server exposing Router on the given address.
func (c *Collector) Serve(addr string, log zerolog.Logger) *http.Server {
	srv := &http.Server{Addr: addr, Handler: c.Router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}

// Push sends the current values to a Prometheus Pushgateway. A batch run
// exits before it can be scraped, so this is called once at the end.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(c.reg).PushContext(ctx)
}

func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}
