package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"

	"github.com/zhouzirui/digital-human/internal/logging"
	"github.com/zhouzirui/digital-human/internal/service/asr"
	"github.com/zhouzirui/digital-human/internal/service/dialogue"
	"github.com/zhouzirui/digital-human/internal/service/tts"
	"github.com/zhouzirui/digital-human/internal/service/vision"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	AI       AIConfig        `mapstructure:"ai"`
	Dialogue dialogue.Config `mapstructure:"dialogue"`
	Speech   SpeechConfig    `mapstructure:"speech"`
	Vision   VisionConfig    `mapstructure:"vision"`
	Store    StoreConfig     `mapstructure:"store"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Log      logging.Config  `mapstructure:"log"`
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	// StatePort 是客户端运行时状态推送的端口，为空时不启动。
	StatePort string `mapstructure:"state_port"`

	Addr      string `mapstructure:"-"`
	StateAddr string `mapstructure:"-"`
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string   `mapstructure:"api_key"`
	AccessKey   string   `mapstructure:"access_key"`
	SecretKey   string   `mapstructure:"secret_key"`
	Model       string   `mapstructure:"model"`
	BaseURL     string   `mapstructure:"base_url"`
	Region      string   `mapstructure:"region"`
	Temperature *float64 `mapstructure:"temperature"`
	TopP        *float64 `mapstructure:"top_p"`
	MaxTokens   *int     `mapstructure:"max_tokens"`
}

// SpeechConfig 描述语音合成与识别配置
type SpeechConfig struct {
	TTS tts.Config `mapstructure:"tts"`
	ASR asr.Config `mapstructure:"asr"`
	// CharDuration 是控制台合成器每个字符的播放时长。
	CharDuration time.Duration `mapstructure:"char_duration"`
}

// VisionConfig 描述摄像头与视觉模型配置，未设置的阈值使用 vision.DefaultConfig。
type VisionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Pipeline vision.Config `mapstructure:",squash"`
}

// StoreConfig 描述共享状态容器的限制。
type StoreConfig struct {
	SessionKey     string        `mapstructure:"session_key"`
	MaxChatHistory int           `mapstructure:"max_chat_history"`
	MaxErrorQueue  int           `mapstructure:"max_error_queue"`
	ErrorAutoHide  time.Duration `mapstructure:"error_auto_hide"`
}

// RedisConfig 为空地址时使用内存存储。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Enabled 表示是否配置了 Redis。
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// envBindings 保留原有环境变量名，新增项统一使用 AVATAR_ 前缀。
var envBindings = map[string][]string{
	"server.port":       {"PORT"},
	"server.state_port": {"AVATAR_STATE_PORT"},

	"ai.api_key":     {"ARK_API_KEY"},
	"ai.access_key":  {"ARK_ACCESS_KEY"},
	"ai.secret_key":  {"ARK_SECRET_KEY"},
	"ai.model":       {"Model", "ARK_MODEL"},
	"ai.base_url":    {"ARK_BASE_URL"},
	"ai.region":      {"ARK_REGION"},
	"ai.temperature": {"ARK_TEMPERATURE"},
	"ai.top_p":       {"ARK_TOP_P"},
	"ai.max_tokens":  {"ARK_MAX_TOKENS"},

	"dialogue.base_url":           {"AVATAR_DIALOGUE_URL"},
	"dialogue.max_retries":        {"AVATAR_DIALOGUE_MAX_RETRIES"},
	"dialogue.retry_delay":        {"AVATAR_DIALOGUE_RETRY_DELAY"},
	"dialogue.timeout":            {"AVATAR_DIALOGUE_TIMEOUT"},
	"dialogue.max_history_length": {"AVATAR_DIALOGUE_MAX_HISTORY"},
	"dialogue.health_timeout":     {"AVATAR_DIALOGUE_HEALTH_TIMEOUT"},

	"speech.tts.language":  {"AVATAR_TTS_LANGUAGE", "SPEECH_TTS_LANGUAGE"},
	"speech.tts.rate":      {"AVATAR_TTS_RATE", "SPEECH_TTS_SPEED"},
	"speech.tts.pitch":     {"AVATAR_TTS_PITCH"},
	"speech.tts.volume":    {"AVATAR_TTS_VOLUME", "SPEECH_TTS_VOLUME"},
	"speech.char_duration": {"AVATAR_TTS_CHAR_DURATION"},

	"speech.asr.language":        {"AVATAR_ASR_LANGUAGE", "SPEECH_ASR_LANGUAGE"},
	"speech.asr.timeout":         {"AVATAR_ASR_TIMEOUT"},
	"speech.asr.continuous":      {"AVATAR_ASR_CONTINUOUS"},
	"speech.asr.interim_results": {"AVATAR_ASR_INTERIM_RESULTS"},

	"vision.enabled":        {"AVATAR_VISION_ENABLED"},
	"vision.face_model_url": {"AVATAR_VISION_FACE_MODEL"},
	"vision.pose_model_url": {"AVATAR_VISION_POSE_MODEL"},

	"store.session_key":      {"AVATAR_SESSION_KEY"},
	"store.max_chat_history": {"AVATAR_MAX_CHAT_HISTORY"},
	"store.max_error_queue":  {"AVATAR_MAX_ERROR_QUEUE"},
	"store.error_auto_hide":  {"AVATAR_ERROR_AUTO_HIDE"},

	"redis.addr":     {"AVATAR_REDIS_ADDR", "REDIS_ADDR"},
	"redis.password": {"AVATAR_REDIS_PASSWORD", "REDIS_PASSWORD"},
	"redis.db":       {"AVATAR_REDIS_DB"},
	"redis.prefix":   {"AVATAR_REDIS_PREFIX"},

	"log.level":  {"AVATAR_LOG_LEVEL", "LOG_LEVEL"},
	"log.format": {"AVATAR_LOG_FORMAT"},
	"log.app":    {"AVATAR_LOG_APP"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.state_port", "8090")

	v.SetDefault("ai.base_url", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("ai.region", "cn-beijing")

	dialogueDefaults := dialogue.DefaultConfig()
	v.SetDefault("dialogue.base_url", dialogueDefaults.BaseURL)
	v.SetDefault("dialogue.max_retries", dialogueDefaults.MaxRetries)
	v.SetDefault("dialogue.retry_delay", dialogueDefaults.RetryDelay)
	v.SetDefault("dialogue.timeout", dialogueDefaults.Timeout)
	v.SetDefault("dialogue.max_history_length", dialogueDefaults.MaxHistoryLength)
	v.SetDefault("dialogue.health_timeout", dialogueDefaults.HealthTimeout)

	v.SetDefault("speech.tts.language", "zh-CN")
	v.SetDefault("speech.tts.rate", 1.0)
	v.SetDefault("speech.tts.pitch", 1.0)
	v.SetDefault("speech.tts.volume", 1.0)
	v.SetDefault("speech.char_duration", 60*time.Millisecond)

	v.SetDefault("speech.asr.language", "zh-CN")
	v.SetDefault("speech.asr.timeout", 30*time.Second)
	v.SetDefault("speech.asr.continuous", false)
	v.SetDefault("speech.asr.interim_results", true)

	visionDefaults := vision.DefaultConfig()
	v.SetDefault("vision.enabled", false)
	v.SetDefault("vision.face_model_url", visionDefaults.FaceModelURL)
	v.SetDefault("vision.pose_model_url", visionDefaults.PoseModelURL)
	v.SetDefault("vision.constraints.width", visionDefaults.Constraints.Width)
	v.SetDefault("vision.constraints.height", visionDefaults.Constraints.Height)
	v.SetDefault("vision.constraints.frame_rate", visionDefaults.Constraints.FrameRate)
	v.SetDefault("vision.constraints.facing_mode", visionDefaults.Constraints.FacingMode)

	v.SetDefault("store.session_key", "digital-human-session-id")
	v.SetDefault("store.max_chat_history", 50)
	v.SetDefault("store.max_error_queue", 5)
	v.SetDefault("store.error_auto_hide", 5*time.Second)

	v.SetDefault("redis.prefix", "digital-human:")

	def := logging.DefaultConfig()
	v.SetDefault("log.level", string(def.Level))
	v.SetDefault("log.format", string(def.Format))
	v.SetDefault("log.app", def.App)
}

// Load 读取可选的配置文件，再用环境变量覆盖。configFile 为空时在当前目录查找 config.yaml。
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	addr, err := normalizeAddr("PORT", cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if strings.TrimSpace(cfg.Server.StatePort) != "" {
		stateAddr, err := normalizeAddr("AVATAR_STATE_PORT", cfg.Server.StatePort)
		if err != nil {
			return nil, err
		}
		cfg.Server.StateAddr = stateAddr
	}

	return &cfg, nil
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(name, port string) (string, error) {
	port = strings.TrimSpace(port)
	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if port == "" || strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid %s value: %q", name, port)
	}

	return ":" + port, nil
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}
