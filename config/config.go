package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Provider  ProviderConfig
	LiveKit   LiveKitConfig
	Zego      ZegoConfig
	WebRTC    WebRTCConfig
	AWS       AWSConfig
	Live      LiveConfig
	Telemetry TelemetryConfig
	Retry     RetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds app JWT validation settings (operator/viewer identity
// tokens minted by the main application backend; shared secret).
type JWTConfig struct {
	Secret string
}

// ProviderConfig selects the media room backend.
type ProviderConfig struct {
	Name string // "livekit" (default) or "zego"
}

// LiveKitConfig holds LiveKit credentials.
type LiveKitConfig struct {
	URL       string
	APIKey    string
	APISecret string
}

// ZegoConfig holds ZEGOCLOUD credentials (alternate provider).
type ZegoConfig struct {
	AppID        uint32
	ServerSecret string
	URL          string
}

// WebRTCConfig holds STUN/TURN ICE server URLs handed to clients with join
// tokens (comma-separated in env).
type WebRTCConfig struct {
	ICEUrls []string
}

// AWSConfig holds AWS credentials and the recordings bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireMinutes int
}

// LiveConfig holds session lifecycle timings and policy.
type LiveConfig struct {
	StartTimeoutSec      int  // bounded wait for provider confirmation on start
	ResumeGraceSec       int  // pause→ended auto-transition window
	ReconnectGraceSec    int  // participant disconnect absorption window
	ModerationTimeoutSec int  // deadline for moderation commands
	AllowCoPublish       bool // default false: single publisher per room
	PublisherTTLHours    int
	ViewerTTLMinutes     int
	ModeratorTTLHours    int
}

// TelemetryConfig holds aggregator intervals and alert thresholds.
type TelemetryConfig struct {
	PollIntervalSec      int
	RingSize             int
	RTTThresholdMs       int
	LossThresholdPercent float64
	WarnAfter            int // consecutive breaches for warn
	CritAfter            int // consecutive breaches for crit
	AlertMinIntervalSec  int // rate limit between emitted alerts
	StaleAfterFailures   int // consecutive failed polls before stale
}

// RetryConfig holds the shared retry policy for provider calls.
type RetryConfig struct {
	MaxAttempts int
	BaseDelayMs int
	MaxDelayMs  int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	zegoAppID, _ := strconv.ParseUint(getEnv("ZEGO_APP_ID", "0"), 10, 32)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/kurban_live?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "kurban_live"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me-in-production"),
		},
		Provider: ProviderConfig{
			Name: getEnv("LIVE_PROVIDER", "livekit"),
		},
		LiveKit: LiveKitConfig{
			URL:       getEnv("LIVEKIT_URL", ""),
			APIKey:    getEnv("LIVEKIT_API_KEY", ""),
			APISecret: getEnv("LIVEKIT_API_SECRET", ""),
		},
		Zego: ZegoConfig{
			AppID:        uint32(zegoAppID),
			ServerSecret: getEnv("ZEGO_SERVER_SECRET", ""),
			URL:          getEnv("ZEGO_URL", ""),
		},
		WebRTC: WebRTCConfig{
			ICEUrls: splitTrim(getEnv("WEBRTC_ICE_URLS", "stun:stun.l.google.com:19302"), ","),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket:     getEnv("AWS_S3_RECORDINGS_BUCKET", "kurban-live-recordings"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Live: LiveConfig{
			StartTimeoutSec:      getEnvInt("LIVE_START_TIMEOUT_SEC", 15),
			ResumeGraceSec:       getEnvInt("LIVE_RESUME_GRACE_SEC", 60),
			ReconnectGraceSec:    getEnvInt("LIVE_RECONNECT_GRACE_SEC", 10),
			ModerationTimeoutSec: getEnvInt("LIVE_MODERATION_TIMEOUT_SEC", 10),
			AllowCoPublish:       getEnv("LIVE_ALLOW_CO_PUBLISH", "false") == "true",
			PublisherTTLHours:    getEnvInt("LIVE_PUBLISHER_TTL_HOURS", 4),
			ViewerTTLMinutes:     getEnvInt("LIVE_VIEWER_TTL_MINUTES", 60),
			ModeratorTTLHours:    getEnvInt("LIVE_MODERATOR_TTL_HOURS", 2),
		},
		Telemetry: TelemetryConfig{
			PollIntervalSec:      getEnvInt("TELEMETRY_POLL_INTERVAL_SEC", 3),
			RingSize:             getEnvInt("TELEMETRY_RING_SIZE", 120),
			RTTThresholdMs:       getEnvInt("TELEMETRY_RTT_THRESHOLD_MS", 400),
			LossThresholdPercent: float64(getEnvInt("TELEMETRY_LOSS_THRESHOLD_PERCENT", 10)),
			WarnAfter:            getEnvInt("TELEMETRY_WARN_AFTER", 3),
			CritAfter:            getEnvInt("TELEMETRY_CRIT_AFTER", 6),
			AlertMinIntervalSec:  getEnvInt("TELEMETRY_ALERT_MIN_INTERVAL_SEC", 30),
			StaleAfterFailures:   getEnvInt("TELEMETRY_STALE_AFTER_FAILURES", 2),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelayMs: getEnvInt("RETRY_BASE_DELAY_MS", 250),
			MaxDelayMs:  getEnvInt("RETRY_MAX_DELAY_MS", 5000),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
