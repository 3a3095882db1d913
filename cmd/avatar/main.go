package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/digital-human/internal/config"
	"github.com/zhouzirui/digital-human/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "avatar",
	Short: "Digital human dialogue backend and client runtime",
	Long: `avatar 提供两种运行方式：

  serve    启动对话后端（GET /health, POST /v1/chat, 会话历史与 /metrics）
  console  在终端运行数字人客户端，文字输入直接对话，以 ! 开头的行模拟语音

配置按以下顺序覆盖：内置默认值 < config.yaml（或 --config）< .env < 环境变量。`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// bootstrap 加载 .env 与配置并构建根日志器。
func bootstrap() (*config.Config, zerolog.Logger, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose {
		cfg.Log.Level = logging.LevelDebug
	}

	logger := logging.New(cfg.Log)
	zlog.Logger = logger

	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file loaded, continuing with system environment variables only")
	}
	return cfg, logger, nil
}
