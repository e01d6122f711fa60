// Package main is the entry point of the chat server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"cyberchat-go/internal/config"
	"cyberchat-go/internal/conversation"
	"cyberchat-go/internal/handler"
	"cyberchat-go/internal/middleware"
	"cyberchat-go/internal/model"
	"cyberchat-go/internal/pipeline"
	"cyberchat-go/internal/prompt"
	"cyberchat-go/internal/repository"
	"cyberchat-go/internal/service"
	"cyberchat-go/pkg/database"
	"cyberchat-go/pkg/embedding"
	"cyberchat-go/pkg/es"
	"cyberchat-go/pkg/kafka"
	"cyberchat-go/pkg/llm"
	"cyberchat-go/pkg/log"
	"cyberchat-go/pkg/storage"
	"cyberchat-go/pkg/token"
	"cyberchat-go/pkg/vectorindex"
)

func main() {
	// 1. Configuration and logging
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized")

	// 2. Storage
	var records repository.ChatRecordRepository
	if cfg.Database.MySQL.DSN != "" {
		database.InitMySQL(cfg.Database.MySQL.DSN)
		records = repository.NewChatRecordRepository(database.DB)
	}
	var mirror repository.SessionRepository
	if cfg.Database.Redis.Addr != "" {
		database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		mirror = repository.NewSessionRepository(database.RDB, time.Duration(cfg.Database.Redis.TTLMinutes)*time.Minute)
	}

	// 3. Retrieval, prompt and completion stages
	embeddingClient, err := embedding.NewClient(cfg.Embedding)
	if err != nil {
		log.Fatal("init embedding client failed", err)
	}
	if cfg.VectorIndex.Provider == "elasticsearch" && cfg.Embedding.Dimensions > 0 {
		esClient, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			log.Fatal("init elasticsearch client failed", err)
		}
		if err := es.EnsureArticleIndex(esClient, cfg.Elasticsearch, cfg.VectorIndex.Fields, cfg.Embedding.Dimensions); err != nil {
			log.Fatal("ensure article index failed", err)
		}
	}
	index, err := vectorindex.NewClient(cfg.VectorIndex, cfg.Elasticsearch)
	if err != nil {
		log.Fatal("init vector index client failed", err)
	}
	registry, err := llm.NewRegistry(cfg.LLM)
	if err != nil {
		log.Fatal("init completion providers failed", err)
	}
	assembler, err := prompt.NewAssembler(cfg.Prompt)
	if err != nil {
		log.Fatal("init prompt assembler failed", err)
	}

	// 4. Persistence sinks and the Kafka archiver
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	var producer *kafka.Producer
	var sinks conversation.MultiSink
	for _, name := range cfg.Persistence.Sinks {
		switch name {
		case "mysql":
			if records == nil {
				log.Warnf("mysql sink configured without database.mysql.dsn, skipping")
				continue
			}
			sinks = append(sinks, conversation.SinkFunc(func(ctx context.Context, rec model.ChatRecord) error {
				return records.Create(ctx, &rec)
			}))
		case "kafka":
			producer = kafka.NewProducer(cfg.Kafka)
			sinks = append(sinks, producer)
		default:
			log.Warnf("unknown persistence sink '%s', skipping", name)
		}
	}
	if producer != nil && records != nil && !slices.Contains(cfg.Persistence.Sinks, "mysql") {
		var attempts kafka.AttemptCounter = kafka.NewMemoryAttempts()
		if database.RDB != nil {
			attempts = kafka.NewRedisAttempts(database.RDB)
		}
		go kafka.StartConsumer(consumerCtx, cfg.Kafka, pipeline.NewProcessor(records), attempts)
	}
	var sink conversation.Sink
	if len(sinks) > 0 {
		sink = sinks
	}

	var archiver service.TranscriptArchiver
	if cfg.MinIO.Endpoint != "" {
		initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
		a, err := storage.NewArchiver(initCtx, cfg.MinIO)
		cancelInit()
		if err != nil {
			log.Fatal("init minio archiver failed", err)
		}
		archiver = a
	}

	// 5. Services
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.SessionExpireHours)
	searchService := service.NewSearchService(
		embeddingClient,
		index,
		cfg.VectorIndex.TopK,
		config.Seconds(cfg.Embedding.TimeoutSeconds, 15*time.Second),
		config.Seconds(cfg.VectorIndex.TimeoutSeconds, 15*time.Second),
	)
	chatService := service.NewChatService(
		searchService,
		assembler,
		registry,
		cfg.VectorIndex.TopK,
		config.Seconds(cfg.LLM.TimeoutSeconds, 120*time.Second),
		config.Seconds(cfg.Persistence.TimeoutSeconds, 5*time.Second),
	)
	sessionService := service.NewSessionService(registry, jwtManager, sink, mirror, archiver)

	// 6. Routes
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	registerRoutes(r, sessionService, chatService, searchService, records)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s, providers: %v, active: %s", srv.Addr, registry.Names(), registry.Active())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP server shutdown failed: %v", err)
	}
	stopConsumer()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("close kafka producer failed: %v", err)
		}
	}
	log.Info("server stopped")
}

func registerRoutes(r *gin.Engine, sessionService service.SessionService, chatService service.ChatService, searchService service.SearchService, records repository.ChatRecordRepository) {
	sessionHandler := handler.NewSessionHandler(sessionService, records)
	chatHandler := handler.NewChatHandler(chatService, sessionService)
	searchHandler := handler.NewSearchHandler(searchService)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/chat/:token", chatHandler.Handle)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/sessions", sessionHandler.Create)

		authed := apiV1.Group("")
		authed.Use(middleware.SessionAuth(sessionService))
		{
			authed.GET("/sessions/history", sessionHandler.History)
			authed.GET("/sessions/records", sessionHandler.Records)
			authed.DELETE("/sessions", sessionHandler.Close)
			authed.POST("/chat/stream", chatHandler.Stream)
			authed.GET("/search", searchHandler.Search)
		}
	}
}
