package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CaseForAI/backend/go/internal/auth"
	caseapi "CaseForAI/backend/go/internal/case_service/api"
	caseservice "CaseForAI/backend/go/internal/case_service/service"
	casestore "CaseForAI/backend/go/internal/case_service/store"
	"CaseForAI/backend/go/internal/config"
	"CaseForAI/backend/go/internal/database/kafka"
	"CaseForAI/backend/go/internal/database/milvus"
	"CaseForAI/backend/go/internal/database/minio"
	"CaseForAI/backend/go/internal/database/mongo"
	"CaseForAI/backend/go/internal/database/mysql"
	"CaseForAI/backend/go/internal/database/redis"
	"CaseForAI/backend/go/internal/email"
	"CaseForAI/backend/go/internal/embedding"
	"CaseForAI/backend/go/internal/esign"
	"CaseForAI/backend/go/internal/jobs"
	"CaseForAI/backend/go/internal/llm"
	"CaseForAI/backend/go/internal/metrics"
	"CaseForAI/backend/go/internal/notify"
	ragembeddings "CaseForAI/backend/go/internal/rag/embeddings"
	"CaseForAI/backend/go/internal/rag/loaders"
	"CaseForAI/backend/go/internal/rag/pipeline"
	"CaseForAI/backend/go/internal/rag/splitters"
	"CaseForAI/backend/go/internal/rag/storages/docstore"
	"CaseForAI/backend/go/internal/rag/storages/vectorstore"
	userapi "CaseForAI/backend/go/internal/user_service/api"
	userservice "CaseForAI/backend/go/internal/user_service/service"
	userstore "CaseForAI/backend/go/internal/user_service/store"
	pkghttp "CaseForAI/backend/go/pkg/http"
	"CaseForAI/backend/go/pkg/httpmiddleware"
	"CaseForAI/backend/go/pkg/logger"
	"CaseForAI/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"github.com/unidoc/unioffice/v2/common/license"
)

func configPath() string {
	if p := os.Getenv("CASEFORAI_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// outbound 是访问外部服务的客户端。邮件和电子签名各自一个熔断器，
// 用户提交的网页地址走单独的只访问公网的客户端，不影响前两者。
type outbound struct {
	mail  *pkghttp.Client
	esign *pkghttp.Client
	web   *loaders.WebLoader
}

func newOutbound(cfg *config.AppConfig) (*outbound, error) {
	mail, err := pkghttp.NewClient(cfg.Middleware.CircuitBreaker, 30*time.Second)
	if err != nil {
		return nil, err
	}
	es, err := pkghttp.NewClient(cfg.Middleware.CircuitBreaker, 30*time.Second)
	if err != nil {
		return nil, err
	}
	web, err := loaders.NewPublicWebLoader(20 * time.Second)
	if err != nil {
		return nil, err
	}
	return &outbound{mail: mail, esign: es, web: web}, nil
}

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// 2. 初始化 Logger
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger := logger.New("case_service", "", "")
	appLogger.Info("Logger initialized for Case Service")

	if cfg.Uploads.UnioOfficeKey != "" {
		if err := license.SetMeteredKey(cfg.Uploads.UnioOfficeKey); err != nil {
			appLogger.WithErr(err).Warn("Failed to set unioffice license key, DOCX export may be unavailable")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 数据库：MySQL、Redis、MinIO、MongoDB、Milvus
	db, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	if err := mysql.Migrate(db); err != nil {
		appLogger.Fatal(err.Error())
	}
	appLogger.Info("Database connection established and migrated")

	rdb, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		appLogger.Fatal(err.Error())
	}

	minioClient, err := minio.GetClient(&cfg.Databases.MinIO)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	bucket := minio.NewBucket(minioClient, cfg.Databases.MinIO.Bucket)
	if err := bucket.Ensure(ctx); err != nil {
		appLogger.Fatal(err.Error())
	}

	// MongoDB 只用于 AI 生成审计，连接失败时降级为不记录
	var generations casestore.GenerationStore
	if cfg.Databases.MongoDB.Address != "" {
		mongoClient, err := mongo.GetClient(&cfg.Databases.MongoDB)
		if err != nil {
			appLogger.WithErr(err).Warn("MongoDB unavailable, generation audit disabled")
		} else {
			coll := mongo.Collection(mongoClient, &cfg.Databases.MongoDB)
			if err := mongo.EnsureGenerationIndexes(ctx, coll); err != nil {
				appLogger.WithErr(err).Warn("Failed to create generation indexes")
			}
			generations = casestore.NewMongoGenerationStore(coll)
		}
	}

	milvusCfg := &cfg.Databases.Milvus
	if len(milvusCfg.Schema.Fields) == 0 {
		milvusCfg.Schema = milvus.ChunkSchema(milvusCfg.Schema.CollectionName, milvusCfg.Schema.VectorField, cfg.Embedding.Dimensions)
	}
	milvusClient, err := milvus.GetClient(ctx, milvusCfg)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	if err := milvusClient.EnsureCollection(ctx); err != nil {
		appLogger.Fatal(err.Error())
	}

	// 4. Kafka：document.ingest 发布、case.event 发布与消费
	if _, err := kafka.GetClient(&cfg.Databases.Kafka); err != nil {
		appLogger.Fatal(err.Error())
	}
	ingestPublisher := kafka.NewPublisher(cfg.Databases.Kafka.Brokers, cfg.Databases.Kafka.IngestTopic, appLogger)
	eventPublisher := kafka.NewPublisher(cfg.Databases.Kafka.Brokers, cfg.Databases.Kafka.EventTopic, appLogger)
	// 每个 API 实例使用独立的消费者组，保证每个实例都能收到全部事件
	hostname, _ := os.Hostname()
	eventConsumer := kafka.NewConsumer(cfg.Databases.Kafka.Brokers, cfg.Databases.Kafka.EventTopic,
		cfg.Databases.Kafka.GroupID+"-api-"+hostname, appLogger)

	// 5. 模型：LLM、Embedding、检索流水线
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to create LLM client: %v", err))
	}
	embedClient, err := embedding.New(cfg.Embedding)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to create embedding client: %v", err))
	}
	embedder := ragembeddings.NewBatchAdapter(embedClient, cfg.Chunking.BatchSize)
	vectors, err := vectorstore.NewMilvusStore(milvusClient.Client, milvusCfg.Schema.CollectionName, milvusCfg.Schema.VectorField, appLogger)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	chunks := docstore.NewRedisDocStore(rdb)
	splitter, err := splitters.NewTextSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	indexing := pipeline.NewIndexingPipeline(splitter, embedder, chunks, vectors, appLogger)
	retrieval := pipeline.NewRetrievalPipeline(embedder, vectors, chunks, appLogger)

	// 6. 外部服务
	out, err := newOutbound(cfg)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	mailer := email.NewClient(cfg.Email, out.mail)
	signer := esign.NewRESTProvider(cfg.ESign, out.esign)
	web := out.web

	// 7. 认证与用户服务
	users := userservice.NewService(userstore.NewStore(db), cfg.Auth.BcryptCostHint)
	if err := users.SeedRoles(ctx); err != nil {
		appLogger.Fatal(err.Error())
	}
	var userTokens *auth.Tokens
	if cfg.Auth.Method == "jwt" {
		userTokens = auth.NewTokens(cfg.Auth.JwtSecret, time.Duration(cfg.Auth.TokenTTL)*time.Second)
	}
	sessionTTL := time.Duration(cfg.Auth.SessionTTL) * time.Second
	authenticator := auth.NewAuthenticator(auth.NewRedisSessionStore(rdb, sessionTTL), userTokens, users, auth.CookieOptions{
		Name:   cfg.Auth.CookieName,
		Domain: cfg.Server.CookieDomain,
		Secure: cfg.Server.CookieSecure,
		TTL:    sessionTTL,
	})
	shareTTL := time.Duration(cfg.Auth.ShareTTLHours) * time.Hour

	// 8. 案件服务
	caseSvc, err := caseservice.NewService(caseservice.Deps{
		Store:       casestore.NewStore(db),
		Objects:     bucket,
		Ingest:      ingestPublisher,
		Events:      notify.NewEventPublisher(eventPublisher),
		LLM:         llmClient,
		Retriever:   retrieval,
		Vectors:     indexing,
		Prompts:     casestore.NewPromptCache(rdb, time.Hour),
		Generations: generations,
		Mailer:      mailer,
		ESign:       signer,
		Tokens:      auth.NewTokens(cfg.Auth.ShareSecret, shareTTL),
		Web:         web,
	}, caseservice.Options{
		PublicBaseURL: cfg.Server.PublicBaseURL,
		ShareTTL:      shareTTL,
		PresignTTL:    time.Duration(cfg.Uploads.PresignMinutes) * time.Minute,
		ReminderAge:   time.Duration(cfg.ESign.ReminderDays) * 24 * time.Hour,
		Uploads:       cfg.Uploads,
	}, appLogger)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	if res, err := caseSvc.Seed(ctx); err != nil {
		appLogger.WithErr(err).Warn("Failed to seed default data")
	} else {
		appLogger.WithPayload(map[string]interface{}{"seed": res}).Info("Default data seeded")
	}
	appLogger.Info("Dependencies injected")

	// 9. websocket 推送：消费 case.event 并转发给在线用户
	hub := notify.NewHub()
	dispatcher := notify.NewDispatcher(hub, appLogger)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := eventConsumer.Run(ctx, dispatcher.HandleMessage); err != nil {
			appLogger.WithErr(err).Error("Case event consumer stopped")
		}
	}()

	// 10. 定时任务
	scheduler := jobs.NewScheduler(appLogger)
	if cfg.Jobs.Enabled {
		for _, job := range []jobs.Job{
			{Name: "expireShares", Spec: cfg.Jobs.ExpireSharesSpec, Run: caseSvc.ExpireShares},
			{Name: "remindSignatures", Spec: cfg.Jobs.RemindSignersSpec, Run: caseSvc.RemindStaleSignatures},
		} {
			if err := scheduler.Add(job); err != nil {
				appLogger.Fatal(err.Error())
			}
		}
		scheduler.Start()
		appLogger.Info("Scheduled jobs started")
	}

	// 11. 路由
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), httpmiddleware.RequestLogger(appLogger, metrics.ObserveHTTP))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/ws", authenticator.Required(), notify.NewHandler(hub, cfg.Server.PublicBaseURL, appLogger).ServeWS)

	apiV1 := router.Group("/api/v1")
	userapi.RegisterRoutes(apiV1, userapi.NewHandler(users, authenticator), authenticator)
	aiLimiter := ratelimiter.PerMinute(cfg.Auth.AILimitPerMin, cfg.Auth.AILimitBurst, 0)
	caseapi.RegisterRoutes(apiV1, caseapi.NewHandler(caseSvc, users, cfg.Uploads.MaxBytes), authenticator, aiLimiter)

	srv, err := pkghttp.NewServer(cfg, router)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	go func() {
		appLogger.Info("Starting HTTP server on " + cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithErr(err).Fatal("HTTP server failed to start")
		}
	}()

	// 12. 优雅关闭
	<-ctx.Done()
	appLogger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var result *multierror.Error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http server: %w", err))
	}
	scheduler.Stop(shutdownCtx)
	hub.CloseAll()
	<-consumerDone
	for name, closeFn := range map[string]func() error{
		"event consumer":   eventConsumer.Close,
		"ingest publisher": ingestPublisher.Close,
		"event publisher":  eventPublisher.Close,
		"redis":            redis.Close,
		"mysql":            mysql.Close,
	} {
		if err := closeFn(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
		}
	}
	if generations != nil {
		if err := mongo.Close(shutdownCtx); err != nil {
			result = multierror.Append(result, fmt.Errorf("mongodb: %w", err))
		}
	}
	milvusClient.Close()

	if err := result.ErrorOrNil(); err != nil {
		appLogger.WithErr(err).Error("Server stopped with errors")
		return
	}
	appLogger.Info("Server gracefully stopped")
}
