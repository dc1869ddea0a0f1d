package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/toyz/loom/examples/blog"
	"github.com/toyz/loom/internal/config"
	"github.com/toyz/loom/internal/logging"
	"github.com/toyz/loom/internal/metrics"
	"github.com/toyz/loom/pkg/loom"
	"github.com/toyz/loom/pkg/loom/adapters"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("loom-blog stopped")
	}
}

func run() error {
	// a missing .env is fine, the environment still applies
	_ = godotenv.Load()

	sc, err := config.LoadServer()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:  sc.LogLevel,
		Format: sc.LogFormat,
		File:   sc.LogFile,
		Output: os.Stdout,
	})
	if err != nil {
		return err
	}

	opts := []loom.Option{
		loom.WithLogger(logger),
		loom.WithLookupCacheTTL(sc.LookupCacheTTL),
	}
	if len(sc.PropertyFiles) > 0 {
		props, err := config.LoadProperties(sc.PropertyFiles...)
		if err != nil {
			return err
		}
		opts = append(opts, loom.WithProperties(props))
	}

	collector := metrics.NewCollector()
	opts = append(opts, loom.WithMetrics(collector))

	app, err := blog.NewApplication(opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	handler, err := adapters.New(sc.Adapter, app, adapters.ConfigFrom(sc, collector))
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"adapter": sc.Adapter,
		"routes":  len(app.Routes()),
	}).Info("blog ready")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return adapters.Serve(ctx, sc.Address, handler, shutdownTimeout, logger)
}
