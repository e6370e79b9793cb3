// Command mudisd boots a configured mudis cache and, optionally, its
// local IPC server, blocking until SIGINT/SIGTERM. It plays the same role
// for mudis that the teacher's cmd/bench plays for shardcache: a small
// binary that exercises the library end to end, here driving the server
// instead of a synthetic benchmark.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/kiebor81/mudis/cache"
	"github.com/kiebor81/mudis/internal/logging"
	pmet "github.com/kiebor81/mudis/metrics/prom"
	"github.com/kiebor81/mudis/server"
)

func main() {
	logging.Init()

	cmd := &cli.Command{
		Name:  "mudisd",
		Usage: "run a standalone mudis cache instance with an optional IPC server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve Prometheus /metrics at this address (empty disables)",
				Value: "",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.WithField("err", err).Fatal("mudisd: exiting")
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	fc := fileConfig{}
	if path := cmd.String("config"); path != "" {
		loaded, err := loadFileConfig(path)
		if err != nil {
			return err
		}
		fc = loaded
	}
	cfg := fc.toCacheConfig()

	var sink cache.Sink
	if fc.Metrics.Prometheus {
		sink = pmet.New(prometheus.DefaultRegisterer, fc.Metrics.Namespace, fc.Metrics.Subsystem, nil)
	}

	c, err := cache.NewWithSink(cfg, sink)
	if err != nil {
		return fmt.Errorf("mudisd: configure cache: %w", err)
	}
	if err := c.LoadSnapshot(); err != nil {
		log.WithField("err", err).Warn("mudisd: snapshot load failed, starting empty")
	}

	if addr := cmd.String("metrics-addr"); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.WithField("addr", addr).Info("mudisd: serving prometheus metrics")
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.WithField("err", err).Error("mudisd: metrics server stopped")
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var srv *server.Server
	if fc.IPC.Enabled {
		srv = server.New(c, server.Config{
			Network:       fc.IPC.Network,
			Address:       fc.IPC.Address,
			RatePerSecond: fc.IPC.RatePerSecond,
			RateBurst:     fc.IPC.RateBurst,
		})
		go func() {
			if err := srv.ListenAndServe(runCtx); err != nil {
				log.WithField("err", err).Error("mudisd: ipc server stopped")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("mudisd: shutting down")
	case <-ctx.Done():
	}

	cancel()
	if srv != nil {
		_ = srv.Close()
	}
	if err := c.SaveSnapshot(); err != nil {
		log.WithField("err", err).Error("mudisd: snapshot save failed")
	}
	return c.Close()
}
