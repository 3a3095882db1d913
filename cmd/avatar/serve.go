package main

import (
	"github.com/spf13/cobra"

	"github.com/zhouzirui/digital-human/internal/handler"
	"github.com/zhouzirui/digital-human/internal/metrics"
	"github.com/zhouzirui/digital-human/internal/service/ai"
	"github.com/zhouzirui/digital-human/internal/service/chat"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dialogue backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}

		m := metrics.New()
		opts := []chat.Option{chat.WithObserver(m)}

		if cfg.AI.Enabled() {
			chatModel, err := cfg.AI.NewChatModel(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to create chat model, continuing with mock replies")
			} else if aiService, err := ai.NewService(ctx, chatModel, logger); err != nil {
				logger.Warn().Err(err).Msg("failed to initialize AI service, continuing with mock replies")
			} else {
				opts = append(opts, chat.WithResponder(aiService))
				logger.Info().Str("model", cfg.AI.Model).Msg("AI service initialized")
			}
		} else {
			logger.Info().Msg("Ark 凭证未配置，使用智能 Mock 回复")
		}

		chatService := chat.NewService(logger, opts...)
		router := handler.NewRouter(chatService, m.Handler(), logger)

		return startServer(ctx, cfg.Server.Addr, router, logger)
	},
}
