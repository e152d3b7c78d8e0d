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

	casestore "CaseForAI/backend/go/internal/case_service/store"
	"CaseForAI/backend/go/internal/config"
	"CaseForAI/backend/go/internal/database/kafka"
	"CaseForAI/backend/go/internal/database/milvus"
	"CaseForAI/backend/go/internal/database/minio"
	"CaseForAI/backend/go/internal/database/mysql"
	"CaseForAI/backend/go/internal/database/redis"
	"CaseForAI/backend/go/internal/embedding"
	"CaseForAI/backend/go/internal/ingestion_worker/service"
	"CaseForAI/backend/go/internal/metrics"
	"CaseForAI/backend/go/internal/notify"
	ragembeddings "CaseForAI/backend/go/internal/rag/embeddings"
	"CaseForAI/backend/go/internal/rag/pipeline"
	"CaseForAI/backend/go/internal/rag/splitters"
	"CaseForAI/backend/go/internal/rag/storages/docstore"
	"CaseForAI/backend/go/internal/rag/storages/vectorstore"
	"CaseForAI/backend/go/pkg/logger"

	"github.com/hashicorp/go-multierror"
	"github.com/unidoc/unioffice/v2/common/license"
)

// metricsAddr 是 worker 暴露 /metrics 的地址
const metricsAddr = ":9102"

func configPath() string {
	if p := os.Getenv("CASEFORAI_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// 2. 初始化 Logger
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	workerLogger := logger.New("ingestion_worker", "", "")
	workerLogger.Info("Logger initialized for Ingestion Worker")

	// docx 文本抽取同样依赖 unioffice
	if cfg.Uploads.UnioOfficeKey != "" {
		if err := license.SetMeteredKey(cfg.Uploads.UnioOfficeKey); err != nil {
			workerLogger.WithErr(err).Warn("Failed to set unioffice license key")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 存储：MySQL 文档状态、MinIO 原文件、Redis 分块正文、Milvus 向量
	db, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		workerLogger.Fatal(err.Error())
	}
	rdb, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		workerLogger.Fatal(err.Error())
	}
	minioClient, err := minio.GetClient(&cfg.Databases.MinIO)
	if err != nil {
		workerLogger.Fatal(err.Error())
	}
	bucket := minio.NewBucket(minioClient, cfg.Databases.MinIO.Bucket)

	milvusCfg := &cfg.Databases.Milvus
	if len(milvusCfg.Schema.Fields) == 0 {
		milvusCfg.Schema = milvus.ChunkSchema(milvusCfg.Schema.CollectionName, milvusCfg.Schema.VectorField, cfg.Embedding.Dimensions)
	}
	milvusClient, err := milvus.GetClient(ctx, milvusCfg)
	if err != nil {
		workerLogger.Fatal(err.Error())
	}
	if err := milvusClient.EnsureCollection(ctx); err != nil {
		workerLogger.Fatal(err.Error())
	}
	// 新写入的向量需要 flush 后才能被检索到
	milvusClient.StartAutoFlush(10 * time.Second)

	// 4. 向量化流水线
	embedClient, err := embedding.New(cfg.Embedding)
	if err != nil {
		workerLogger.Fatal(fmt.Sprintf("Failed to create embedding client: %v", err))
	}
	vectors, err := vectorstore.NewMilvusStore(milvusClient.Client, milvusCfg.Schema.CollectionName, milvusCfg.Schema.VectorField, workerLogger)
	if err != nil {
		workerLogger.Fatal(err.Error())
	}
	splitter, err := splitters.NewTextSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		workerLogger.Fatal(err.Error())
	}
	indexing := pipeline.NewIndexingPipeline(
		splitter,
		ragembeddings.NewBatchAdapter(embedClient, cfg.Chunking.BatchSize),
		docstore.NewRedisDocStore(rdb),
		vectors,
		workerLogger,
	)

	// 5. Kafka：消费 document.ingest，发布 case.event
	if _, err := kafka.GetClient(&cfg.Databases.Kafka); err != nil {
		workerLogger.Fatal(err.Error())
	}
	eventPublisher := kafka.NewPublisher(cfg.Databases.Kafka.Brokers, cfg.Databases.Kafka.EventTopic, workerLogger)
	ingestConsumer := kafka.NewConsumer(cfg.Databases.Kafka.Brokers, cfg.Databases.Kafka.IngestTopic,
		cfg.Databases.Kafka.GroupID+"-ingest", workerLogger)

	worker := service.NewWorker(casestore.NewStore(db), bucket, indexing, notify.NewEventPublisher(eventPublisher), 0, workerLogger)

	// 6. 指标
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			workerLogger.WithErr(err).Error("Metrics server failed")
		}
	}()

	// 7. 阻塞消费直到收到退出信号
	workerLogger.Info("Ingestion worker started, consuming " + cfg.Databases.Kafka.IngestTopic)
	if err := ingestConsumer.Run(ctx, worker.HandleMessage); err != nil {
		workerLogger.WithErr(err).Error("Ingest consumer stopped")
	}

	// 8. 优雅关闭
	workerLogger.Info("Shutting down ingestion worker...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result *multierror.Error
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("metrics server: %w", err))
	}
	if err := ingestConsumer.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("ingest consumer: %w", err))
	}
	if err := eventPublisher.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("event publisher: %w", err))
	}
	milvusClient.Close()
	if err := redis.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("redis: %w", err))
	}
	if err := mysql.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("mysql: %w", err))
	}

	if err := result.ErrorOrNil(); err != nil {
		workerLogger.WithErr(err).Error("Ingestion worker stopped with errors")
		return
	}
	workerLogger.Info("Ingestion worker gracefully stopped")
}
