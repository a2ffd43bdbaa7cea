package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"

	"muster/pkg/bus"
	"muster/pkg/db"
	"muster/pkg/telemetry"
	"muster/services/inventory"
	"muster/services/inventory/internal/config"
)

const serviceName = "muster-inventory"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "musterd",
		Short:         "Host inventory service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newReaperCommand())
	cmd.AddCommand(newConsumerCommand())
	cmd.AddCommand(newMigrateCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the inventory HTTP API and the system-profile consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newReaperCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reaper",
		Short: "Delete culled hosts and emit deletion events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReaper()
		},
	}
}

func newConsumerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "consumer",
		Short: "Run only the system-profile consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsumer()
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			pool, err := db.Open(ctx, cfg.DatabaseDSN)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer pool.Close()

			return db.Migrate(ctx, pool)
		},
	}
}

// deps is the shared wiring for every subcommand.
type deps struct {
	cfg      config.Config
	logger   *log.Logger
	shutdown func(context.Context) error
	mware    func(http.Handler) http.Handler
	pool     *pgxpool.Pool
	bus      *bus.Bus
	producer inventory.EventProducer
	service  *inventory.Service
}

func initDeps(ctx context.Context, migrate bool) (*deps, error) {
	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if migrate {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	d := &deps{
		cfg:      cfg,
		logger:   logger,
		shutdown: shutdownTelemetry,
		mware:    middleware,
		pool:     pool,
	}

	if cfg.NATSURL != "" {
		d.bus, err = bus.New(cfg.NATSURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect bus: %w", err)
		}
		if err := d.bus.EnsureStream(cfg.StreamName, cfg.EventsSubject, cfg.IngressSubject, cfg.ProfileSubject); err != nil {
			d.close(ctx)
			return nil, fmt.Errorf("ensure stream: %w", err)
		}
		d.producer, err = inventory.NewBusProducer(d.bus, cfg.EventsSubject, logger)
	} else {
		d.producer, err = inventory.NewNullProducer(logger)
	}
	if err != nil {
		d.close(ctx)
		return nil, fmt.Errorf("create producer: %w", err)
	}

	store, err := inventory.NewPgStore(pool)
	if err != nil {
		d.close(ctx)
		return nil, err
	}

	d.service, err = inventory.NewService(store, d.producer, cfg.Staleness, logger)
	if err != nil {
		d.close(ctx)
		return nil, fmt.Errorf("create service: %w", err)
	}

	return d, nil
}

func (d *deps) close(ctx context.Context) {
	if d.bus != nil {
		d.bus.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
	if d.shutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := initDeps(ctx, true)
	if err != nil {
		return err
	}
	defer d.close(ctx)

	if d.bus != nil {
		ingress, err := inventory.NewIngressConsumer(d.service, d.cfg.IngressSubject, d.cfg.IngressDurable, d.logger)
		if err != nil {
			return err
		}
		if err := ingress.Start(ctx, d.bus); err != nil {
			return fmt.Errorf("start ingress consumer: %w", err)
		}
		defer ingress.Close()

		consumer, err := inventory.NewProfileConsumer(d.service, d.cfg.ProfileSubject, d.cfg.ConsumerDurable, d.logger)
		if err != nil {
			return err
		}
		if err := consumer.Start(ctx, d.bus); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
		defer consumer.Close()
	}

	api, err := inventory.NewAPI(d.service, d.logger)
	if err != nil {
		return err
	}
	routes, err := api.Routes()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context(), d.pool); err != nil {
			http.Error(w, "database not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", routes)

	server := &http.Server{
		Addr:    d.cfg.ListenAddr,
		Handler: d.mware(mux),
	}

	errCh := make(chan error, 1)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "%s: http shutdown error: %v\n", serviceName, err)
		}
	}()

	d.logger.Printf("INFO http listening on %s", server.Addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

func runReaper() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := initDeps(ctx, false)
	if err != nil {
		return err
	}
	defer d.close(ctx)

	store, err := inventory.NewPgStore(d.pool)
	if err != nil {
		return err
	}
	reaper, err := inventory.NewReaper(store, d.producer, d.logger)
	if err != nil {
		return err
	}

	result, err := reaper.Run(ctx, time.Now().UTC())

	if d.cfg.PushgatewayURL != "" {
		pushErr := push.New(d.cfg.PushgatewayURL, "inventory-reaper").
			Gatherer(prometheus.DefaultGatherer).
			Push()
		if pushErr != nil {
			d.logger.Printf("ERROR pushgateway push failed: %v", pushErr)
		}
	}

	if err != nil {
		return fmt.Errorf("reaper run: %w", err)
	}

	d.logger.Printf("INFO reaper: %d deleted, %d already gone, %d failed",
		result.Deleted, result.AlreadyGone, result.Failed)
	return nil
}

func runConsumer() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := initDeps(ctx, false)
	if err != nil {
		return err
	}
	defer d.close(ctx)

	if d.bus == nil {
		return errors.New("INVENTORY_NATS_URL is required for the consumer")
	}

	ingress, err := inventory.NewIngressConsumer(d.service, d.cfg.IngressSubject, d.cfg.IngressDurable, d.logger)
	if err != nil {
		return err
	}
	if err := ingress.Start(ctx, d.bus); err != nil {
		return fmt.Errorf("start ingress consumer: %w", err)
	}
	defer ingress.Close()

	consumer, err := inventory.NewProfileConsumer(d.service, d.cfg.ProfileSubject, d.cfg.ConsumerDurable, d.logger)
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx, d.bus); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumer.Close()

	<-ctx.Done()

	im := ingress.Metrics()
	pm := consumer.Metrics()
	d.logger.Printf("INFO consumer stopped: ingress %d accepted %d rejected, profile %d applied %d failed",
		im.Accepted, im.Rejected, pm.Applied, pm.Failed)
	return nil
}
