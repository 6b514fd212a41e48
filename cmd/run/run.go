package run

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"treacle/internal/conf"
	"treacle/internal/flog"
	"treacle/internal/metrics"
	"treacle/internal/pkg/buffer"
	"treacle/internal/proxy"
)

var (
	configPath  string
	listenPort  int
	destination string
	bps         int
	logLevel    string
	statsEvery  time.Duration
)

func init() {
	Cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file.")
	Cmd.Flags().IntVarP(&listenPort, "port", "p", 0, "Local port to listen on (overrides config).")
	Cmd.Flags().StringVarP(&destination, "destination", "d", "", "Destination URL or host:port (overrides config).")
	Cmd.Flags().IntVarP(&bps, "bps", "b", -1, "Bandwidth ceiling in bytes per second, 0 for unlimited (overrides config).")
	Cmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "Log level: debug, info, warn, error, fatal, none.")
	Cmd.Flags().DurationVar(&statsEvery, "stats", 0, "Interval for periodic transfer statistics, 0 to disable.")
}

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Start the throttled forwarding proxy.",
	Long:  `Starts the proxy: accepts connections on the local port and relays each one to the configured destination, with aggregate throughput capped at the configured bytes-per-second ceiling. A browser pointed at the local port experiences the destination as if reached over a slow link.`,
	Run: func(cmd *cobra.Command, args []string) {
		startProxy(loadConf())
	},
}

// loadConf reads the config file when given, then layers flag overrides on
// top before validating.
func loadConf() *conf.Conf {
	cfg := &conf.Conf{}
	if configPath != "" {
		var err error
		cfg, err = conf.ReadFile(configPath)
		if err != nil {
			flog.Fatalf("Failed to read config %s: %v", configPath, err)
		}
	}
	if listenPort != 0 {
		cfg.ListenPort = listenPort
	}
	if destination != "" {
		cfg.Destination_ = destination
	}
	if bps >= 0 {
		cfg.BytesPerSecond_ = &bps
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Finalize(); err != nil {
		flog.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func startProxy(cfg *conf.Conf) {
	level, err := flog.ParseLevel(cfg.Log.Level)
	if err != nil {
		flog.Fatalf("%v", err)
	}
	flog.SetLevel(level)
	buffer.Initialize(cfg.ChunkSize)

	srv := proxy.New(proxy.Config{
		ListenPort:     cfg.ListenPort,
		Destination:    cfg.Destination,
		BytesPerSecond: cfg.BytesPerSecond,
		DialTimeout:    cfg.DialTimeout,
	}, flog.Default())

	if err := srv.Start(); err != nil {
		flog.Fatalf("Failed to start proxy: %v", err)
	}
	if cfg.BytesPerSecond > 0 {
		flog.Infof("Listening on %s, forwarding to %s at %d bytes/sec", srv.Addr(), cfg.Destination, cfg.BytesPerSecond)
	} else {
		flog.Infof("Listening on %s, forwarding to %s unthrottled", srv.Addr(), cfg.Destination)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	stopStats := make(chan struct{})
	if statsEvery > 0 {
		go reportStats(statsEvery, stopStats)
	}

	<-sig
	flog.Infof("Shutdown signal received")
	close(stopStats)
	if err := srv.Stop(); err != nil {
		flog.Errorf("Shutdown: %v", err)
	}

	snap := metrics.Take()
	flog.Infof("Relayed %d bytes to destination and %d bytes back over %d connections (%d dial failures, %d relay errors)",
		snap.BytesTX, snap.BytesRX, snap.TotalConns, snap.DialFailures, snap.RelayErrors)
}

func reportStats(every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	var last metrics.Snapshot
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := metrics.Take()
			flog.Infof("stats: %d active conns, tx %d B (+%d), rx %d B (+%d)",
				snap.ActiveConns,
				snap.BytesTX, snap.BytesTX-last.BytesTX,
				snap.BytesRX, snap.BytesRX-last.BytesRX)
			for _, c := range metrics.Tracker.Snapshot() {
				flog.Infof("  conn %d: %s -> %s, up %s, tx %d B, rx %d B",
					c.ID, c.Client, c.Destination,
					time.Since(c.Start).Round(time.Second),
					c.BytesTX, c.BytesRX)
			}
			last = snap
		}
	}
}
