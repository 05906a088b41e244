package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Swind/go-confined-pump/internal/config"
	"github.com/Swind/go-confined-pump/internal/httpapi"
	obs "github.com/Swind/go-confined-pump/observability/prometheus"
)

func ServeCommand(cfg config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the store over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: cfg.Addr,
				Usage: "listen address",
			},
			&cli.DurationFlag{
				Name:  "request-timeout",
				Value: cfg.RequestTimeout,
				Usage: "how long a request waits for the worker",
			},
			&cli.DurationFlag{
				Name:  "metrics-poll",
				Value: cfg.MetricsPollInterval,
				Usage: "pump stats polling interval",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	exporter, err := obs.NewMetricsExporter("", reg, obs.ExporterOptions{})
	if err != nil {
		return errors.Wrap(err, "metrics exporter")
	}
	poller, err := obs.NewSnapshotPoller(reg, c.Duration("metrics-poll"))
	if err != nil {
		return errors.Wrap(err, "snapshot poller")
	}

	pump, logger, err := openPump(c, exporter)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poller.AddPump(pump.Name(), pump)
	poller.Start(ctx)
	defer poller.Stop()

	srv := httpapi.NewServer(pump, logger, c.Duration("request-timeout"))
	server := &http.Server{
		Addr:              c.String("addr"),
		Handler:           httpapi.NewRouter(srv, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server started", zap.String("addr", server.Addr), zap.String("pump", pump.Name()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	if derr := pump.Dispose(); derr != nil {
		logger.Error("pump dispose failed", zap.Error(derr))
		if err == nil {
			err = derr
		}
	}
	logger.Info("server stopped")
	return err
}
