package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"timetable-importer/internal/config"
	"timetable-importer/internal/db"
	"timetable-importer/internal/feed"
	"timetable-importer/internal/iff"
	"timetable-importer/internal/journey"
	"timetable-importer/internal/logging"
	"timetable-importer/internal/metrics"
	"timetable-importer/internal/pipeline"
	"timetable-importer/internal/publisher"
)

// errLegsFailed makes the process exit non-zero after a run that finished
// with failed legs.
var errLegsFailed = errors.New("one or more legs failed")

func main() {
	app := &cli.App{
		Name:  "importer",
		Usage: "Load IFF timetable deliveries into Postgres",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "trace|debug|info|warn|error", EnvVars: []string{"LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-format", Usage: "console|json", EnvVars: []string{"LOG_FORMAT"}},
			&cli.StringFlag{Name: "db-name", Usage: "override the database name of the configured DSN"},
		},
		Commands: []*cli.Command{
			timetableCommand(),
			schemaCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "importer:", err)
		os.Exit(1)
	}
}

func timetableCommand() *cli.Command {
	return &cli.Command{
		Name:  "timetable",
		Usage: "Import a timetable delivery",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "input-path",
				Aliases: []string{"i"},
				Usage:   "directory holding timetbls.dat, footnote.dat and company.dat; downloads the latest feed when empty",
			},
			&cli.IntFlag{Name: "workers", Usage: "concurrent leg transactions"},
			&cli.Float64Flag{Name: "commit-rate", Usage: "max commits per second with a single worker, 0 disables"},
			&cli.BoolFlag{Name: "dry-run", Usage: "parse and split legs without touching the database"},
			&cli.BoolFlag{Name: "force", Usage: "import even if this delivery was already imported"},
		},
		Action: runTimetable,
	}
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Create the tables and unique indexes the importer writes to",
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, 1, log)
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			if err := db.EnsureSchema(ctx, sqlDB); err != nil {
				return err
			}
			log.Info().Msg("schema ready")
			return nil
		},
	}
}

// setup loads the environment config, applies global flag overrides and
// builds the logger.
func setup(c *cli.Context) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.LogFormat = v
	}
	if v := c.String("db-name"); v != "" {
		if cfg.DatabaseURL, err = db.WithDBName(cfg.DatabaseURL, v); err != nil {
			return nil, zerolog.Nop(), fmt.Errorf("compose DSN: %w", err)
		}
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("commit-rate") {
		cfg.CommitRate = c.Float64("commit-rate")
	}
	if v := c.String("input-path"); v != "" {
		cfg.InputPath = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log, nil
}

func runTimetable(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dir := cfg.InputPath
	if dir == "" {
		tmp, err := os.MkdirTemp("", "timetable-importer-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		if err := feed.NewDownloader(log).Download(ctx, cfg.FeedURL, tmp); err != nil {
			return fmt.Errorf("download feed: %w", err)
		}
		dir = tmp
	}

	parseStart := time.Now()
	delivery, err := feed.Load(dir)
	if err != nil {
		return fmt.Errorf("load delivery from %s: %w", dir, err)
	}
	ident := delivery.Timetable.Identification
	log.Info().
		Str("company", ident.CompanyNumber).
		Str("version", ident.VersionNumber).
		Time("first_valid", ident.FirstValid).
		Time("last_valid", ident.LastValid).
		Int("services", len(delivery.Timetable.Services)).
		Int("footnotes", len(delivery.Footnotes.Data)).
		Int("companies", len(delivery.Companies.Data)).
		Dur("elapsed", time.Since(parseStart)).
		Msg("delivery parsed")

	if c.Bool("dry-run") {
		return dryRun(delivery.Timetable.Services, log)
	}

	mcol := metrics.NewCollector(cfg.Workers)
	mcol.ValidityDays.Set(float64(ident.DaysValid()))
	mcol.ServicesParsed.Set(float64(len(delivery.Timetable.Services)))
	if cfg.MetricsAddr != "" {
		srv := mcol.Serve(cfg.MetricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
	if cfg.PushgatewayURL != "" {
		defer func() {
			pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := mcol.Push(pushCtx, cfg.PushgatewayURL, "timetable_importer"); err != nil {
				log.Warn().Err(err).Msg("pushgateway")
			}
		}()
	}

	log.Info().Str("dsn", db.Redact(cfg.DatabaseURL)).Msg("connecting to database")
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, log)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := db.EnsureSchema(ctx, sqlDB); err != nil {
		return err
	}

	if !c.Bool("force") {
		prev, err := db.LatestImport(ctx, sqlDB, ident)
		if err != nil {
			return err
		}
		if prev != nil && prev.Failed == 0 {
			log.Info().Time("finished_at", prev.FinishedAt).Msg("delivery already imported, use --force to reload")
			return nil
		}
	}

	p := &pipeline.Pipeline{
		Store: db.NewStore(sqlDB),
		Materializer: &journey.Materializer{
			Identification: ident,
			Footnotes:      delivery.Footnotes,
			Companies:      delivery.Companies,
			Log:            log,
		},
		Workers:    cfg.Workers,
		CommitRate: cfg.CommitRate,
		Log:        log,
		Metrics:    mcol,
	}

	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, mcol, log)
		if err != nil {
			// Outcome publishing is optional; the import continues without it.
			log.Warn().Err(err).Msg("nats connect failed, outcomes will not be published")
		} else {
			defer pub.Close()
			p.Notifier = pub
		}
	}

	summary, runErr := p.Run(ctx, delivery.Timetable.Services)
	for _, f := range summary.Failures {
		log.Error().
			Err(f.Err).
			Uint32("service_id", uint32(f.ServiceID)).
			Str("train_number", f.TrainNumber).
			Msg("leg failed")
	}
	if runErr != nil {
		return runErr
	}

	err = db.RecordImport(context.WithoutCancel(ctx), sqlDB, db.ImportRun{
		Identification: ident,
		Legs:           summary.Legs,
		Committed:      summary.Committed,
		Skipped:        summary.Skipped,
		Failed:         summary.Failed,
	})
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errLegsFailed, summary.Failed, summary.Legs)
	}
	return nil
}

// dryRun splits every service and reports the legs without writing anything.
func dryRun(services []iff.Service, log zerolog.Logger) error {
	var legs, skipped, failed int
	for _, svc := range services {
		split, err := svc.SplitLegs()
		if err != nil {
			failed++
			log.Error().Err(err).Uint32("service_id", uint32(svc.ID)).Msg("split failed")
			continue
		}
		for _, leg := range split {
			legs++
			if _, ok := leg.Number.TrainNumber(); !ok {
				skipped++
			}
		}
	}
	log.Info().
		Int("services", len(services)).
		Int("legs", legs).
		Int("without_train_number", skipped).
		Int("split_failures", failed).
		Msg("dry run finished")
	if failed > 0 {
		return fmt.Errorf("%d services could not be split", failed)
	}
	return nil
}
