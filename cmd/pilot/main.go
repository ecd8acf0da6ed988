package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"voxelpilot.ai/internal/action"
	"voxelpilot.ai/internal/agent"
	"voxelpilot.ai/internal/audit"
	"voxelpilot.ai/internal/config"
	"voxelpilot.ai/internal/convo"
	"voxelpilot.ai/internal/extract"
	"voxelpilot.ai/internal/logging"
	"voxelpilot.ai/internal/metrics"
	"voxelpilot.ai/internal/model"
	"voxelpilot.ai/internal/pilot"
	"voxelpilot.ai/internal/prompt"
	"voxelpilot.ai/internal/status"
)

func main() {
	var (
		host       = flag.String("host", "localhost", "world server host")
		port       = flag.Int("port", 8080, "world server port")
		username   = flag.String("username", "pilot", "agent name in the world")
		configPath = flag.String("config", "", "path to pilot.yaml (optional)")
		envPath    = flag.String("env", "", "path to .env (default: ./.env if present)")
		ask        = flag.String("ask", "", "send one message to the model, print the completion and exit")
	)
	flag.Parse()

	if err := run(*configPath, *envPath, *ask, func(cfg *config.Config) {
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "host":
				cfg.World.Host = *host
			case "port":
				cfg.World.Port = *port
			case "username":
				cfg.World.Username = *username
			}
		})
	}); err != nil {
		fmt.Fprintf(os.Stderr, "pilot: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envPath, ask string, override func(*config.Config)) error {
	if err := config.LoadEnv(envPath); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	override(&cfg)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	met := metrics.New()

	creds, err := model.CredentialsFromEnv()
	if err != nil {
		return err
	}
	mc, err := model.New(model.Config{
		Endpoint:        cfg.Model.Endpoint,
		Region:          cfg.Model.Region,
		ModelID:         cfg.Model.ModelID,
		MaxOutputTokens: cfg.Model.MaxOutputTokens,
		Temperature:     cfg.Model.Temperature,
		StopSequences:   cfg.Model.StopSequences,
		Timeout:         cfg.Model.Timeout,
		Credentials:     creds,
		Logger:          logger,
		Metrics:         met,
	})
	if err != nil {
		return fmt.Errorf("model client: %w", err)
	}

	lib, err := convo.OpenLibrary(cfg.Convo.Backend, cfg.Convo.Dir, cfg.Convo.DBPath)
	if err != nil {
		return fmt.Errorf("open context library: %w", err)
	}
	defer lib.Close()
	store := convo.NewStore(lib, cfg.Convo.MaxExchanges)
	builder := prompt.NewBuilder(cfg.Model.StopSequences)

	if ask != "" {
		// Invoke logs model failures itself and yields "".
		fmt.Println(mc.Invoke(context.Background(), builder.Build(ask, store.Current().Text())))
		return nil
	}

	var auditLog *audit.Logger
	if cfg.Audit.Enabled {
		auditLog = audit.NewLogger(cfg.Audit.Dir)
		defer auditLog.Close()
	}

	sess := agent.NewSession(agent.SessionConfig{
		WorldWSURL:    cfg.WorldURL(),
		Name:          cfg.World.Username,
		ChatPerSecond: cfg.Pilot.ChatPerSecond,
		ChatBurst:     cfg.Pilot.ChatBurst,
		EventBuffer:   cfg.Pilot.QueueSize,
		Logger:        logger,
		OnConnected:   met.Connected,
	})

	p := pilot.New(pilot.Config{
		Session: sess,
		Model:   mc,
		Sandbox: action.New(action.Config{
			Agent:   sess,
			Logger:  logger,
			Audit:   auditLog,
			Metrics: met,
		}),
		Store:          store,
		Builder:        builder,
		Extractor:      extract.New(extract.DefaultOpen, extract.DefaultClose, true),
		MaxResponseAge: cfg.Pilot.MaxResponseAge,
		Logger:         logger,
		Metrics:        met,
	})

	var statusSrv *status.Server
	if cfg.Status.Listen != "" {
		statusSrv = status.New(cfg.Status.Listen, sess, met.Registry, logger)
		statusSrv.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("world", cfg.WorldURL()).
		Str("username", cfg.World.Username).
		Str("model", cfg.Model.ModelID).
		Str("contexts", cfg.Convo.Backend).
		Msg("pilot starting")
	sess.Start()

	err = p.Run(ctx)
	shutdown(logger, sess, statusSrv)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func shutdown(logger zerolog.Logger, sess *agent.Session, statusSrv *status.Server) {
	logger.Info().Msg("shutting down")
	sess.Close()
	if statusSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := statusSrv.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("status server shutdown")
		}
	}
}
