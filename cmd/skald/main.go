package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/huginmedia/skald/internal/chat"
	"github.com/huginmedia/skald/internal/config"
	"github.com/huginmedia/skald/internal/events"
	"github.com/huginmedia/skald/internal/logbuffer"
	"github.com/huginmedia/skald/internal/logging"
	"github.com/huginmedia/skald/internal/media"
	"github.com/huginmedia/skald/internal/playlist"
	"github.com/huginmedia/skald/internal/playout"
	"github.com/huginmedia/skald/internal/progress"
	"github.com/huginmedia/skald/internal/server"
	"github.com/huginmedia/skald/internal/sink"
	"github.com/huginmedia/skald/internal/telemetry"
	"github.com/huginmedia/skald/internal/version"
	"github.com/huginmedia/skald/internal/votes"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
	logBuf *logbuffer.Buffer

	streamFrom int64
)

var rootCmd = &cobra.Command{
	Use:     "skald",
	Short:   "Skald - 24/7 playlist broadcaster",
	Long:    "Skald feeds an ordered playlist of local clips into a long-lived broadcast encoder, with chat-driven skip votes and durable resume.",
	Version: version.Version,
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Start broadcasting the playlist",
	Long:  "Start the playout loop, the chat listener, and the operator HTTP server",
	RunE:  runStream,
}

func init() {
	streamCmd.Flags().Int64Var(&streamFrom, "from", 0, "Resume after this clip id instead of the saved position")
	rootCmd.AddCommand(streamCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logBuf = logbuffer.New(5000)
	logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(logBuf, nil))
	return nil
}

func runStream(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("skald starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := progress.Open(cfg.ProgressPath)
	if err != nil {
		return fmt.Errorf("open progress store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("close progress store failed")
		}
	}()

	metrics := telemetry.New()
	bus := events.NewBus()
	source := playlist.NewFileSource(cfg.PlaylistPath)
	sinkCtl := sink.NewController(cfg, logger)
	player := media.NewPlayer(cfg, metrics, logger)
	transition := media.NewTransition(cfg, metrics, logger)

	var (
		chatClient *chat.Client
		notify     func(string)
	)
	if cfg.ChatEnabled() {
		chatClient = chat.NewClient(cfg, logger)
		notify = chatClient.Say
	}

	tracker := votes.NewTracker(cfg, notify, metrics, logger)

	if chatClient != nil {
		chatClient.OnMessage(func(msg chat.Message) {
			tracker.OnMessage(msg.User, msg.Text)
		})
		go func() {
			if err := chatClient.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("chat listener stopped")
			}
		}()
	} else {
		logger.Info().Msg("chat disabled, skip votes unavailable")
	}

	director := playout.NewDirector(cfg, playout.Deps{
		Source:     source,
		Store:      store,
		Sink:       sinkCtl,
		Clips:      player,
		Transition: transition,
		Skips:      tracker,
		Announcer:  announcer(chatClient),
		Bus:        bus,
		Metrics:    metrics,
	}, logger)
	if streamFrom > 0 {
		director.SetStartOverride(streamFrom)
	}

	srv := server.New(cfg, server.Deps{
		NowPlaying:  director.Current,
		SinkRunning: sinkCtl.Running,
		SinkAge:     sinkCtl.Age,
		Votes:       tracker.Votes,
		Bus:         bus,
		LogBuffer:   logBuf,
		Metrics:     metrics,
	}, logger)
	go func() {
		if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	err = director.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("skald stopped")
		return nil
	}
	return err
}

// announcer avoids a typed-nil interface when chat is disabled.
func announcer(client *chat.Client) playout.Announcer {
	if client == nil {
		return nil
	}
	return client
}
