package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	RouterModeLLM     = "llm"
	RouterModeKeyword = "keyword"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	Port           string
	AppEnv         string
	LogLevel       string
	RequestTimeout time.Duration

	VerifyToken     string
	WhatsAppToken   string
	PhoneNumberID   string
	GraphAPIBaseURL string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIChatModel  string
	OpenAIImageModel string

	SongAPIKey       string
	SongBaseURL      string
	VideoAPIKey      string
	VideoBaseURL     string
	VideoModel       string
	PollInterval     time.Duration
	SongMaxAttempts  int
	VideoMaxAttempts int

	MySQLDSN string

	RouterMode         string
	FreeTrialUses      int
	SubscriberDailyCap int
	Location           *time.Location
	PaymentURL         string

	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	ConversationMaxTurns int
	ConversationTTL      time.Duration
	ConversationMaxUsers int

	NATSURL     string
	NATSSubject string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string

	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:                 getEnv("PORT", "3000"),
		AppEnv:               strings.ToLower(getEnv("APP_ENV", "development")),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		RequestTimeout:       time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		GraphAPIBaseURL:      normalizeBaseURL(getEnv("GRAPH_API_BASE_URL", "https://graph.facebook.com/v22.0")),
		OpenAIBaseURL:        normalizeBaseURL(getEnv("OPENAI_BASE_URL", "https://api.openai.com")),
		OpenAIChatModel:      getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAIImageModel:     getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
		SongBaseURL:          normalizeBaseURL(getEnv("SONG_BASE_URL", "https://api.piapi.ai")),
		VideoBaseURL:         normalizeBaseURL(getEnv("VIDEO_BASE_URL", "https://api.replicate.com")),
		VideoModel:           getEnv("VIDEO_MODEL", "minimax/video-01"),
		PollInterval:         time.Second * time.Duration(getInt("POLL_INTERVAL_SECONDS", 5)),
		SongMaxAttempts:      getInt("SONG_MAX_ATTEMPTS", 36),
		VideoMaxAttempts:     getInt("VIDEO_MAX_ATTEMPTS", 36),
		RouterMode:           strings.ToLower(getEnv("ROUTER_MODE", RouterModeLLM)),
		FreeTrialUses:        getInt("FREE_TRIAL_USES", 3),
		SubscriberDailyCap:   getInt("SUBSCRIBER_DAILY_CAP", 20),
		PaymentURL:           getEnv("PAYMENT_URL", ""),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		ConversationMaxTurns: getInt("CONVERSATION_MAX_TURNS", 12),
		ConversationTTL:      time.Minute * time.Duration(getInt("CONVERSATION_TTL_MINUTES", 24*60)),
		ConversationMaxUsers: getInt("CONVERSATION_MAX_USERS", 10000),
		NATSURL:              getEnv("NATS_URL", ""),
		NATSSubject:          getEnv("NATS_SUBJECT", "nabi.creations"),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3Region:             os.Getenv("S3_REGION"),
		S3AccessKey:          os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:          os.Getenv("S3_SECRET_KEY"),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:      os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:       getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:             getEnv("S3_PREFIX", "inbound"),
		AdminListenAddr:      getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:        getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:        getEnv("ADMIN_PASSWORD", "change-me"),
	}

	cfg.VerifyToken = os.Getenv("VERIFY_TOKEN")
	cfg.WhatsAppToken = os.Getenv("WHATSAPP_TOKEN")
	cfg.PhoneNumberID = os.Getenv("PHONE_NUMBER_ID")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.SongAPIKey = os.Getenv("SONG_API_KEY")
	cfg.VideoAPIKey = os.Getenv("VIDEO_API_KEY")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "Asia/Jerusalem"))
	if err != nil {
		return Config{}, fmt.Errorf("load timezone: %w", err)
	}
	cfg.Location = loc

	if cfg.RouterMode != RouterModeLLM && cfg.RouterMode != RouterModeKeyword {
		return Config{}, fmt.Errorf("unsupported ROUTER_MODE %q", cfg.RouterMode)
	}
	if cfg.ConversationMaxTurns <= 0 {
		cfg.ConversationMaxTurns = 12
	}

	var missing []string
	required := []struct {
		key   string
		value string
	}{
		{"VERIFY_TOKEN", cfg.VerifyToken},
		{"WHATSAPP_TOKEN", cfg.WhatsAppToken},
		{"PHONE_NUMBER_ID", cfg.PhoneNumberID},
		{"OPENAI_API_KEY", cfg.OpenAIAPIKey},
		{"SONG_API_KEY", cfg.SongAPIKey},
		{"VIDEO_API_KEY", cfg.VideoAPIKey},
		{"MYSQL_DSN", cfg.MySQLDSN},
	}
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.key)
		}
	}
	if cfg.S3Bucket != "" {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if cfg.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// IsProduction reports whether the deployment runs with production policies
// (verified TLS towards the database).
func (c Config) IsProduction() bool {
	return c.AppEnv == "production" || c.AppEnv == "prod"
}

// ListenAddr is the webhook listener address.
func (c Config) ListenAddr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// normalizeBaseURL trims trailing slashes and defaults the scheme to https.
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return strings.TrimRight(raw, "/")
	}
	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + raw)
		if err != nil {
			return strings.TrimRight(raw, "/")
		}
	}
	return strings.TrimRight(parsed.String(), "/")
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// loadEnvFile applies the first env file found. A missing file is not an error:
// container deployments pass everything through the environment.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
