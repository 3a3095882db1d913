package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/digital-human/internal/app"
	"github.com/zhouzirui/digital-human/internal/config"
	"github.com/zhouzirui/digital-human/internal/handler"
	"github.com/zhouzirui/digital-human/internal/metrics"
	"github.com/zhouzirui/digital-human/internal/platform/console"
	"github.com/zhouzirui/digital-human/internal/storage"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run the digital human client in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		// 日志与对话共用终端，降到 warn 以免淹没输出。
		if !verbose {
			logger = logger.Level(zerolog.WarnLevel)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		store, closeStore := openStorage(ctx, cfg, logger)
		defer closeStore()

		m := metrics.New()
		voice := console.NewVoice()
		client := app.NewClient(cfg, app.Deps{
			Storage:     store,
			Synthesizer: console.NewSynthesizer(os.Stdout, cfg.Speech.CharDuration),
			Microphone:  voice,
			Recognizer:  voice,
			Transcripts: voice,
			Camera:      console.Camera{},
			Models:      console.Models{},
			VideoTarget: console.Target{},
			Metrics:     m,
			Logger:      logger,
		})
		defer client.Close()

		client.Start(ctx)

		g, gctx := errgroup.WithContext(ctx)
		if cfg.Server.StateAddr != "" {
			router := handler.NewStateRouter(client.Store, m.Handler(), logger)
			g.Go(func() error {
				return startServer(gctx, cfg.Server.StateAddr, router, logger)
			})
		}
		g.Go(func() error {
			defer cancel()
			return client.RunConsole(gctx, os.Stdin, os.Stdout)
		})
		return g.Wait()
	},
}

// openStorage 优先使用 Redis 持久化会话 ID，连接失败时回退到内存。
func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.Store, func()) {
	if !cfg.Redis.Enabled() {
		return storage.NewMemoryStore(), func() {}
	}

	rs, err := storage.NewRedisStore(ctx, storage.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, session id will not survive restarts")
		return storage.NewMemoryStore(), func() {}
	}
	return rs, func() {
		if err := rs.Close(); err != nil {
			logger.Warn().Err(err).Msg("close redis")
		}
	}
}
