package main

import (
	"context"

	"github.com/devanshD77/whatsapp-messenger-backend/internal/config"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/db"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/events"
	clog "github.com/devanshD77/whatsapp-messenger-backend/internal/log"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/server"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/service"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// main 负责加载配置、初始化日志、连接数据库、装配依赖并启动 Gin 服务。
	_ = godotenv.Load()
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	// 未配置 Kafka 时降级为纯日志发布器，调用方无感知。
	var pub events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.MessageEventsTopic, cfg.UserEventsTopic, cfg.NotificationEventsTopic, cfg.PublishTimeout)
		log.Info().Strs("brokers", cfg.KafkaBrokers).Msg("kafka publisher enabled")
	} else {
		pub = events.NewLogPublisher()
		log.Info().Msg("kafka not configured, using log publisher")
	}
	defer func() { _ = pub.Close() }()

	// 配置了 S3 bucket 时附件入对象存储，否则落本地磁盘。
	var store storage.BlobStore
	if cfg.S3Bucket != "" {
		store, err = storage.NewS3Store(context.Background(), cfg.S3Region, cfg.S3Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("s3 store init")
		}
		log.Info().Str("bucket", cfg.S3Bucket).Msg("s3 blob store enabled")
	} else {
		store = storage.NewDiskStore(cfg.PictureDir, cfg.VideoDir)
	}

	userSvc := service.NewUserService(gdb, cfg, store, pub)
	chatroomSvc := service.NewChatroomService(gdb, cfg, store)
	msgSvc := service.NewMessageService(gdb, cfg, store, pub)
	reactionSvc := service.NewReactionService(gdb, pub)

	h := server.NewHandler(userSvc, chatroomSvc, msgSvc, reactionSvc)
	r := server.SetupRouter(cfg, gdb, h)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
