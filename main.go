package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/globfs/globd/config"
	"github.com/globfs/globd/transport"
	"github.com/globfs/globd/wire"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		listenAddr = flag.String("listen", "", "override listen address")
		serveRoot  = flag.String("root", "", "override serve root")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// The logger's level comes from config, so this one error goes to stderr directly.
		os.Stderr.WriteString("globd: " + err.Error() + "\n")
		os.Exit(1)
	}

	if *listenAddr != "" {
		cfg.ListenAddress = *listenAddr
	}
	if *serveRoot != "" {
		cfg.ServeRoot = *serveRoot
	}

	logger := newLogger(cfg.LogLevel)
	wire.RegisterMessageTypes()

	tr := transport.NewTCPTransport(transport.TCPTransportConfig{
		ListenAddress: cfg.ListenAddress,
		Handshake:     transport.NOPHandshakeFunc,
		Decoder:       transport.DefaultDecoder{},
		Logger:        log.With(logger, "component", "transport"),
	})

	var cache *ResolveCache
	if cfg.CacheEnabled {
		cache, err = NewResolveCache(cfg.ServeRoot, log.With(logger, "component", "cache"))
		if err != nil {
			level.Error(logger).Log("msg", "failed to start resolve cache", "err", err)
			os.Exit(1)
		}
		defer cache.Close()
	}

	metrics := NewMetrics(prometheus.DefaultRegisterer)
	if cfg.MetricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
				level.Error(logger).Log("msg", "metrics listener failed", "err", err)
			}
		}()
	}

	server := NewGlobServer(GlobServerConfig{
		ServeRoot:   cfg.ServeRoot,
		Transport:   tr,
		Parallelism: cfg.Parallelism,
		Cache:       cache,
		Metrics:     metrics,
		Logger:      log.With(logger, "component", "server"),
	})
	tr.OnPeer = server.OnPeer
	tr.OnPeerClose = server.OnPeerClose

	level.Info(logger).Log("msg", "starting glob server", "listen", cfg.ListenAddress, "root", cfg.ServeRoot)
	if err := server.Start(); err != nil {
		level.Error(logger).Log("msg", "server failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	var opt level.Option
	switch lvl {
	case "debug":
		opt = level.AllowDebug()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		opt = level.AllowInfo()
	}

	return level.NewFilter(logger, opt)
}
