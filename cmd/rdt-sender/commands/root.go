package commands

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/blake2b"

	"github.com/skycoin/rdt/internal/logutil"
	"github.com/skycoin/rdt/internal/netutil"
	"github.com/skycoin/rdt/pkg/metrics"
	"github.com/skycoin/rdt/pkg/sender"
	"github.com/skycoin/rdt/pkg/statusapi"
	"github.com/skycoin/rdt/pkg/transferlog"
	"github.com/skycoin/rdt/pkg/transport"
)

const (
	metricsService = "rdt_sender"

	dialBackoff   = 100 * time.Millisecond
	dialThreshold = 10 * time.Second
	dialFactor    = 2
)

// fileConfig is the JSON configuration accepted by --config.
type fileConfig struct {
	Host         string          `json:"host"`
	Port         int             `json:"port"`
	File         string          `json:"file"`
	Debug        int             `json:"debug"`
	Sender       sender.Config   `json:"sender"`
	PollInterval sender.Duration `json:"poll_interval"`
	Metrics      string          `json:"metrics"`
	LogStore     string          `json:"log_store"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Debug:        logutil.DefaultDebugLevel,
		Sender:       sender.DefaultConfig(),
		PollInterval: sender.Duration(transport.DefaultPollInterval),
	}
}

type runCfg struct {
	configPath     string
	host           string
	port           int
	file           string
	debug          int
	window         int
	timeout        time.Duration
	maxRetransmits int
	trackSentinel  bool
	pollInterval   time.Duration
	metricsAddr    string
	logStorePath   string
	syslogAddr     string
	tag            string
	profileMode    string

	conf         fileConfig
	profileStop  func()
	masterLogger *logging.MasterLogger
	logger       *logging.Logger
}

var rootCmd = newRootCmd(&runCfg{})

func newRootCmd(cfg *runCfg) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rdt-sender -h <host> -p <port> -f <file>",
		Short:         "Sends a file over UDP using Go-Back-N",
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.readConfig(cmd); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			cfg.startLogger().startProfiler()
			defer cfg.profileStop()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go cfg.waitOsSignals(ctx, cancel)

			return cfg.run(ctx)
		},
	}

	defaults := defaultFileConfig()
	flags := cmd.Flags()

	// Registered ahead of cobra's default so that -h can name the host.
	flags.Bool("help", false, "help for rdt-sender")

	flags.StringVarP(&cfg.host, "host", "h", "", "receiver host name or address (required)")
	flags.IntVarP(&cfg.port, "port", "p", 0, "receiver UDP port (required)")
	flags.StringVarP(&cfg.file, "file", "f", "", "file to send (required)")
	flags.IntVarP(&cfg.debug, "debug", "d", defaults.Debug, "debug level: 0 fatal, 1 error, 2 warn, 3 info, 4 debug, 5 trace")
	flags.StringVar(&cfg.configPath, "config", "", "JSON config file; flags override its values")
	flags.IntVar(&cfg.window, "window", defaults.Sender.WindowSize, "window size in datagrams")
	flags.DurationVar(&cfg.timeout, "timeout", time.Duration(defaults.Sender.RetransmitTimeout), "retransmission timeout")
	flags.IntVar(&cfg.maxRetransmits, "max-retransmits", 0, "consecutive timeouts without progress before giving up, 0 retries forever")
	flags.BoolVar(&cfg.trackSentinel, "track-sentinel", false, "retransmit the end-of-transfer datagram until acknowledged")
	flags.DurationVar(&cfg.pollInterval, "poll-interval", time.Duration(defaults.PollInterval), "longest wait for an acknowledgment per loop iteration")
	flags.StringVar(&cfg.metricsAddr, "metrics", "", "address to serve Prometheus metrics and the transfer log API on, disabled when empty")
	flags.StringVar(&cfg.logStorePath, "log-store", "", "BoltDB file to record transfers in, in-memory when empty")
	flags.StringVar(&cfg.syslogAddr, "syslog", "none", "syslog server address. E.g. localhost:514")
	flags.StringVar(&cfg.tag, "tag", "rdt-sender", "logging tag")
	flags.StringVar(&cfg.profileMode, "profile", "none", "enable profiling with pprof. Mode:  none or one of: [cpu, mem, mutex, block, trace]")

	return cmd
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// readConfig loads --config, applies explicitly set flags on top and validates the result.
func (cfg *runCfg) readConfig(cmd *cobra.Command) error {
	cfg.conf = defaultFileConfig()

	if cfg.configPath != "" {
		path, err := homedir.Expand(cfg.configPath)
		if err != nil {
			return errors.Wrap(err, "failed to expand config path")
		}
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrap(err, "failed to open config")
		}
		err = json.NewDecoder(f).Decode(&cfg.conf)
		f.Close() // nolint: errcheck
		if err != nil {
			return errors.Wrapf(err, "failed to decode %s", cfg.configPath)
		}
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("host", func() { cfg.conf.Host = cfg.host })
	set("port", func() { cfg.conf.Port = cfg.port })
	set("file", func() { cfg.conf.File = cfg.file })
	set("debug", func() { cfg.conf.Debug = cfg.debug })
	set("window", func() { cfg.conf.Sender.WindowSize = cfg.window })
	set("timeout", func() { cfg.conf.Sender.RetransmitTimeout = sender.Duration(cfg.timeout) })
	set("max-retransmits", func() { cfg.conf.Sender.MaxRetransmits = cfg.maxRetransmits })
	set("track-sentinel", func() { cfg.conf.Sender.TrackSentinel = cfg.trackSentinel })
	set("poll-interval", func() { cfg.conf.PollInterval = sender.Duration(cfg.pollInterval) })
	set("metrics", func() { cfg.conf.Metrics = cfg.metricsAddr })
	set("log-store", func() { cfg.conf.LogStore = cfg.logStorePath })

	return cfg.conf.validate()
}

func (c fileConfig) validate() error {
	switch {
	case c.Host == "":
		return errors.New("missing required flag: -h/--host")
	case c.Port == 0:
		return errors.New("missing required flag: -p/--port")
	case c.File == "":
		return errors.New("missing required flag: -f/--file")
	case c.Port < 0 || c.Port > 65535:
		return errors.Errorf("port %d out of range", c.Port)
	case c.PollInterval < 0:
		return errors.New("poll interval must not be negative")
	}
	if _, err := logutil.LevelFromDebug(c.Debug); err != nil {
		return err
	}
	return c.Sender.Validate()
}

func (cfg *runCfg) startLogger() *runCfg {
	lvl, err := logutil.LevelFromDebug(cfg.conf.Debug)
	if err != nil {
		log.Fatal(err)
	}
	logging.SetLevel(lvl)

	cfg.masterLogger = logutil.NewTaggedMasterLogger(cfg.tag, lvl)
	cfg.logger = cfg.masterLogger.PackageLogger(cfg.tag)

	if cfg.syslogAddr != "none" {
		if err := logutil.AttachSyslog(cfg.masterLogger, cfg.syslogAddr, cfg.tag); err != nil {
			cfg.logger.WithError(err).Error("Failed to attach syslog hook")
		}
	}
	return cfg
}

func (cfg *runCfg) startProfiler() *runCfg {
	var option func(*profile.Profile)
	switch cfg.profileMode {
	case "cpu":
		option = profile.CPUProfile
	case "mem":
		option = profile.MemProfile
	case "mutex":
		option = profile.MutexProfile
	case "block":
		option = profile.BlockProfile
	case "trace":
		option = profile.TraceProfile
	default:
		if cfg.profileMode != "none" {
			cfg.logger.Warnf("Unknown profile mode %q, profiling disabled", cfg.profileMode)
		}
		cfg.profileStop = func() {}
		return cfg
	}
	cfg.profileStop = profile.Start(profile.ProfilePath("./logs/"+cfg.tag), option).Stop
	return cfg
}

func (cfg *runCfg) waitOsSignals(ctx context.Context, cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}...)
	defer signal.Stop(ch)

	select {
	case s := <-ch:
		cfg.logger.Warnf("Received signal %s: terminating", s)
		cancel()
	case <-ctx.Done():
	}
}

// run performs a single transfer and records it in the transfer log.
func (cfg *runCfg) run(ctx context.Context) (err error) {
	f, err := os.Open(cfg.conf.File)
	if err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	defer func() {
		if cErr := f.Close(); cErr != nil {
			cfg.logger.WithError(cErr).Warn("Failed to close file")
		}
	}()

	store, err := cfg.openLogStore()
	if err != nil {
		return err
	}
	defer func() {
		if cErr := store.Close(); cErr != nil {
			cfg.logger.WithError(cErr).Warn("Failed to close transfer log")
		}
	}()

	recorder, stopAPI := cfg.startAPI(store)
	defer stopAPI()

	remote := net.JoinHostPort(cfg.conf.Host, strconv.Itoa(cfg.conf.Port))
	entry := transferlog.NewEntry(cfg.conf.File, remote)
	logger := cfg.logger.WithField("transfer", entry.ID)

	defer func() {
		entry.Finished = time.Now()
		if err != nil {
			entry.Error = err.Error()
		}
		if rErr := store.Record(entry); rErr != nil {
			logger.WithError(rErr).Warn("Failed to record transfer")
		}
	}()

	var port *transport.UDPPort
	retrier := netutil.NewRetrier(dialBackoff, dialThreshold, dialFactor)
	err = retrier.Do(ctx, func() error {
		var dErr error
		port, dErr = transport.DialUDP(ctx, cfg.conf.Host, cfg.conf.Port, time.Duration(cfg.conf.PollInterval))
		return dErr
	})
	if err != nil {
		return errors.Wrapf(err, "failed to reach %s", remote)
	}
	defer func() {
		logger.Info("Closing connection.")
		if cErr := port.Close(); cErr != nil {
			logger.WithError(cErr).Warn("Failed to close connection")
		}
	}()
	logger.Infof("Sending %s to %s", cfg.conf.File, port.RemoteAddr())

	snd, err := sender.New(cfg.conf.Sender, port, nil, cfg.masterLogger.PackageLogger("sender"), recorder)
	if err != nil {
		return err
	}

	digest, err := blake2b.New256(nil)
	if err != nil {
		return err
	}
	stats, err := snd.Run(ctx, io.TeeReader(f, digest))
	entry.Digest = hex.EncodeToString(digest.Sum(nil))
	entry.Bytes = stats.Bytes
	entry.Datagrams = stats.Datagrams
	entry.Retransmissions = stats.Retransmissions
	entry.Timeouts = stats.Timeouts
	if err != nil {
		return errors.Wrap(err, "transfer failed")
	}

	logger.WithField("datagrams", stats.Datagrams).
		WithField("retransmissions", stats.Retransmissions).
		Infof("Sent %d bytes", stats.Bytes)
	return nil
}

func (cfg *runCfg) openLogStore() (transferlog.Store, error) {
	if cfg.conf.LogStore == "" {
		return transferlog.InMemoryStore(), nil
	}
	path, err := homedir.Expand(cfg.conf.LogStore)
	if err != nil {
		return nil, errors.Wrap(err, "failed to expand transfer log path")
	}
	store, err := transferlog.BoltDBStore(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open transfer log")
	}
	return store, nil
}

// startAPI serves Prometheus metrics and the transfer log when an address is configured.
func (cfg *runCfg) startAPI(store transferlog.Store) (metrics.Recorder, func()) {
	if cfg.conf.Metrics == "" {
		return metrics.NewDummy(), func() {}
	}

	reg := prometheus.NewRegistry()
	recorder := metrics.NewPrometheus(metricsService, reg)
	api := statusapi.New(store, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.conf.Metrics, Handler: api}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cfg.logger.WithError(err).Error("Failed to start metrics API")
		}
	}()

	return recorder, func() {
		if err := srv.Close(); err != nil {
			cfg.logger.WithError(err).Warn("Failed to stop metrics API")
		}
	}
}
