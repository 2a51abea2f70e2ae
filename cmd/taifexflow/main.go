package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"taifexflow/config"
	"taifexflow/internal/book"
	"taifexflow/internal/capture"
	"taifexflow/internal/dashboard"
	"taifexflow/internal/feed"
	"taifexflow/internal/metrics"
	"taifexflow/internal/model"
	"taifexflow/internal/replay"
	"taifexflow/internal/retransmission"
	"taifexflow/internal/sdk"
	"taifexflow/logger"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	log := logger.GetLogger()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if err := log.Configure(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.MaxAgeDays); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel, log)

	log.WithFields(logger.Fields{
		"feed_mode": cfg.Feed.Mode,
		"recovery":  cfg.Recovery.Enabled(),
	}).Info("taifexflow starting")

	core := sdk.New(log)
	store := dashboard.NewStore()
	frames := make(chan []byte, cfg.Feed.Buffer)

	// Recovery client, when at least one endpoint is configured.
	var client *retransmission.Client
	var recovered <-chan []byte
	if cfg.Recovery.Enabled() {
		client, err = retransmission.NewClient(retransmission.Config{
			Primary:           recoveryEndpoint(cfg.Recovery.Primary),
			Backup:            recoveryEndpoint(cfg.Recovery.Backup),
			RecvTimeout:       cfg.Recovery.RecvTimeout,
			ReconnectDelay:    cfg.Recovery.ReconnectDelay,
			RequestsPerSecond: cfg.Recovery.RequestsPerSecond,
			RecoveredBuffer:   cfg.Recovery.Buffer,
		}, log)
		if err != nil {
			log.WithError(err).Fatal("failed to build retransmission client")
		}
		if err := client.Start(ctx); err != nil {
			log.WithError(err).Fatal("failed to start retransmission client")
		}
		defer client.Stop()
		core.SetRecoverer(client)
		recovered = client.Recovered()
	}

	// Capture writer.
	var captureCh chan model.TopOfBook
	if cfg.Capture.Enabled {
		captureCh = make(chan model.TopOfBook, 1024)
		writer, err := capture.NewWriter(cfg.Capture, captureCh, log)
		if err != nil {
			log.WithError(err).Fatal("failed to build capture writer")
		}
		if err := writer.Start(ctx); err != nil {
			log.WithError(err).Fatal("failed to start capture writer")
		}
		defer writer.Stop()
	}

	depth := cfg.Capture.Depth
	core.OnBookUpdate(func(b *book.Book) {
		tob := model.Snapshot(b, depth, time.Now())
		store.UpdateBook(tob)
		if captureCh != nil {
			select {
			case captureCh <- tob:
			default:
				// Capture is lossy by design; the dashboard always has the
				// latest state.
			}
		}
	})

	dash := dashboard.NewServer(cfg.Dashboard, store, log)
	dash.Start()
	defer dash.Stop()

	pub := metrics.NewPublisher(cfg.Metrics, store.Stats, log)
	go pub.Run(ctx)

	// Frame source.
	switch cfg.Feed.Mode {
	case "multicast":
		receiver := feed.NewReceiver(cfg.Feed.Multicast, frames, log)
		go func() {
			if err := receiver.Run(ctx); err != nil {
				log.WithError(err).Error("multicast receiver failed")
				cancel()
			}
		}()
	case "replay":
		player := replay.NewPlayer(cfg.Feed.Replay.Path, cfg.Feed.Replay.Pace, frames, log)
		go func() {
			if err := player.Run(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("replay failed")
			}
			cancel()
		}()
	}

	runPipeline(ctx, core, store, frames, recovered)
	log.Info("taifexflow stopped")
}

// runPipeline is the single consumer of both the live and recovered
// frame channels; every frame passes through the same entry point.
func runPipeline(ctx context.Context, core *sdk.SDK, store *dashboard.Store, frames <-chan []byte, recovered <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			drainRecovered(core, recovered)
			store.SetStats(core.Stats())
			return
		case buf := <-frames:
			_ = core.ProcessFrame(buf)
			store.SetStats(core.Stats())
		case buf := <-recovered:
			_ = core.ProcessFrame(buf)
			store.SetStats(core.Stats())
		}
	}
}

// drainRecovered consumes whatever recovery already delivered before
// shutdown completes.
func drainRecovered(core *sdk.SDK, recovered <-chan []byte) {
	for {
		select {
		case buf := <-recovered:
			_ = core.ProcessFrame(buf)
		default:
			return
		}
	}
}

func recoveryEndpoint(srv *config.RecoveryServer) *retransmission.Endpoint {
	if srv == nil {
		return nil
	}
	return &retransmission.Endpoint{
		IP:        srv.IP,
		Port:      srv.Port,
		SessionID: srv.SessionID,
		Password:  srv.Password,
	}
}

func handleShutdown(cancel context.CancelFunc, log *logger.Log) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.WithField("signal", s.String()).Warn("shutdown requested")
	cancel()
}
