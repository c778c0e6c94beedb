// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command vladiator runs a single validator node: one process holding
// every configured chain driver, the feature registry, the gossip bus,
// and the orchestrator that ties them together (§9.1 — one binary,
// with no separate signature-aggregator/relayer process split).
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/log"

	"github.com/vladiator-network/core/bus"
	"github.com/vladiator-network/core/config"
	"github.com/vladiator-network/core/driver"
	"github.com/vladiator-network/core/driver/evm"
	"github.com/vladiator-network/core/driver/substrate"
	"github.com/vladiator-network/core/feature"
	"github.com/vladiator-network/core/message"
	"github.com/vladiator-network/core/metrics"
	"github.com/vladiator-network/core/orchestrator"
	"github.com/vladiator-network/core/sink"
)

var version = "v0.0.0-dev"

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:     "vladiator",
		Short:   "Cross-chain message-relay validator node",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the node's YAML config file")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.New(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logLevel, err := log.ToLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logger := log.NewLogger(
		"vladiator",
		log.NewWrappedCore(logLevel, os.Stdout, log.JSON.ConsoleEncoder()),
	)
	logger.Info("Starting vladiator", zap.String("version", version))

	drivers, err := buildDrivers(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building drivers: %w", err)
	}

	features := feature.NewRegistry()
	features.Register(&feature.MemoRelay{})
	features.Register(&feature.GasRebateQuote{})

	b := bus.New(cfg.NodePublicKey, logger)
	if err := connectBus(ctx, cfg, b); err != nil {
		return fmt.Errorf("connecting bus: %w", err)
	}

	registerer := prometheus.NewRegistry()
	m := metrics.New(registerer)
	b.OnDedupHit = func(topic message.Topic) { m.ObserveDedupHit(string(topic)) }

	v := orchestrator.New(cfg.NodePublicKey, drivers, features, b, m, logger)
	v.RegisterChatSink(sink.Filter{}, sink.NoopChat{})
	v.RegisterDataStreamSink(sink.Filter{}, sink.NoopDataStream{})

	started := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v.Run(gctx)
		return nil
	})
	g.Go(func() error {
		b.RunHeartbeat(gctx, started)
		return nil
	})
	g.Go(func() error {
		return serveMetrics(gctx, cfg.MetricsPort, registerer, m, b)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("vladiator shut down")
	return nil
}

// buildDrivers constructs and connects one driver per configured
// network, dispatching on NetworkConfig.Type (§4.1/§6).
func buildDrivers(ctx context.Context, cfg *config.Config, logger log.Logger) (*driver.Registry, error) {
	registry := driver.NewRegistry()
	for label, net := range cfg.Networks {
		d, err := newDriver(net, cfg.NodePrivateKey, logger)
		if err != nil {
			return nil, fmt.Errorf("network %q: %w", label, err)
		}
		if err := d.Connect(ctx, net); err != nil {
			return nil, fmt.Errorf("network %q: %w", label, err)
		}
		registry.Register(d)
	}
	return registry, nil
}

func newDriver(net config.NetworkConfig, privateKey string, logger log.Logger) (driver.Driver, error) {
	switch net.Type {
	case "evm":
		return evm.NewDriver(net.ID, privateKey, logger)
	case "substrate":
		seed, err := hex.DecodeString(strings.TrimPrefix(privateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid node private key: %w", err)
		}
		return substrate.NewDriver(net.ID, seed, logger)
	default:
		return nil, fmt.Errorf("unknown network type %q", net.Type)
	}
}

// connectBus dials every configured bootstrap peer and, when this node
// is a bootnode, starts the inbound accept listener (§6).
func connectBus(ctx context.Context, cfg *config.Config, b *bus.Bus) error {
	for _, peerAddr := range cfg.BootstrapPeerList() {
		if err := b.Dial(ctx, peerAddr); err != nil {
			return fmt.Errorf("dialing peer %s: %w", peerAddr, err)
		}
	}
	if cfg.Bootnode {
		mux := http.NewServeMux()
		mux.HandleFunc("/p2p", b.Accept)
		addr := cfg.AnnounceAddress
		if addr == "" {
			addr = ":9650"
		}
		go func() {
			_ = http.ListenAndServe(addr, mux)
		}()
	}
	return nil
}

// serveMetrics exposes /metrics and periodically samples the peer-count
// gauge until ctx is canceled.
func serveMetrics(ctx context.Context, port int, registerer *prometheus.Registry, m *metrics.Metrics, b *bus.Bus) error {
	if port == 0 {
		port = 9651
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SetPeerCount(b.PeerCount())
			}
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
