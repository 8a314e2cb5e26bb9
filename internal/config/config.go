package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                  string
	DatabaseDSN           string
	JWTSecret             string
	Env                   string
	AccessTokenTTLMinutes int

	// Kafka 为空时事件发布降级为纯日志实现。
	KafkaBrokers            []string
	MessageEventsTopic      string
	UserEventsTopic         string
	NotificationEventsTopic string
	PublishTimeout          time.Duration

	// S3Bucket 为空时附件落本地磁盘。
	PictureDir     string
	VideoDir       string
	S3Bucket       string
	S3Region       string
	StorageTimeout time.Duration

	MaxUploadBytes int64
	EditWindow     time.Duration
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	n, err := strconv.Atoi(getenv(key, ""))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func Load() Config {
	brokersStr := getenv("KAFKA_BROKERS", "")
	var brokers []string
	for _, b := range strings.Split(brokersStr, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return Config{
		Port:                  getenv("APP_PORT", "8080"),
		DatabaseDSN:           getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=whatsapp port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:             getenv("JWT_SECRET", "dev-secret-change-me"),
		Env:                   getenv("APP_ENV", "dev"),
		AccessTokenTTLMinutes: getenvInt("ACCESS_TOKEN_TTL_MINUTES", 60),

		KafkaBrokers:            brokers,
		MessageEventsTopic:      getenv("KAFKA_TOPIC_MESSAGE_EVENTS", "message-events"),
		UserEventsTopic:         getenv("KAFKA_TOPIC_USER_EVENTS", "user-events"),
		NotificationEventsTopic: getenv("KAFKA_TOPIC_NOTIFICATION_EVENTS", "notification-events"),
		PublishTimeout:          time.Duration(getenvInt("PUBLISH_TIMEOUT_SECONDS", 5)) * time.Second,

		PictureDir:     getenv("UPLOAD_PICTURE_DIR", "uploads/pictures"),
		VideoDir:       getenv("UPLOAD_VIDEO_DIR", "uploads/videos"),
		S3Bucket:       getenv("S3_BUCKET", ""),
		S3Region:       getenv("S3_REGION", "us-east-1"),
		StorageTimeout: time.Duration(getenvInt("STORAGE_TIMEOUT_SECONDS", 10)) * time.Second,

		MaxUploadBytes: int64(getenvInt("MAX_UPLOAD_MB", 10)) * 1024 * 1024,
		EditWindow:     time.Duration(getenvInt("EDIT_WINDOW_MINUTES", 15)) * time.Minute,
	}
}

// Validate 拦截明显不可用的配置；非 dev 环境禁止使用默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("database dsn is required")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == "dev-secret-change-me" {
		return errors.New("default jwt secret is not allowed outside dev")
	}
	return nil
}
