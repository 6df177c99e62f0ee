// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"evidence-rag-go/internal/config"
	"evidence-rag-go/internal/handler"
	"evidence-rag-go/internal/middleware"
	"evidence-rag-go/internal/model"
	"evidence-rag-go/internal/pipeline"
	"evidence-rag-go/internal/repository"
	"evidence-rag-go/internal/service"
	"evidence-rag-go/pkg/database"
	"evidence-rag-go/pkg/embedding"
	"evidence-rag-go/pkg/es"
	"evidence-rag-go/pkg/kafka"
	"evidence-rag-go/pkg/llm"
	"evidence-rag-go/pkg/log"
	"evidence-rag-go/pkg/metrics"
	"evidence-rag-go/pkg/storage"
	"evidence-rag-go/pkg/token"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to config.yaml")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath, log.FileOptions{
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化存储：MySQL、Redis、Elasticsearch、MinIO
	database.InitMySQL(cfg.Database.MySQL.DSN, &model.AnalysisRecord{}, &model.QualityRecord{})
	database.InitRedis(cfg.Database.Redis)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Fatalf("es 初始化失败: %v", err)
	}
	presigner, err := storage.NewPresigner(cfg.MinIO)
	if err != nil {
		log.Warnf("MinIO 不可用, 检索结果将不带文件链接: %v", err)
		presigner = nil
	}

	// 4. 初始化 Repository
	evidenceRepo := repository.NewEvidenceRepository(es.ESClient, cfg.Elasticsearch.EvidenceIndex)
	legalRepo := repository.NewLegalRepository(es.ESClient, cfg.Elasticsearch.LegalIndex)
	analysisRepo := repository.NewAnalysisRepository(database.DB)
	qualityRepo := repository.NewQualityRepository(database.DB)
	expansionCache := repository.NewExpansionCacheRepository(database.RDB)

	// 5. 初始化外部模型客户端与指标
	collector := metrics.NewPrometheus("evidence_rag")
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Fatalf("LLM 客户端初始化失败: %v", err)
	}

	// 6. 质量记录：kafka 模式下由消费者异步落库
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	var sink pipeline.QualitySink = qualityRepo
	var producer *kafka.QualityProducer
	if cfg.Quality.Sink == "kafka" {
		producer = kafka.NewQualityProducer(cfg.Kafka)
		sink = producer
		go kafka.StartConsumer(consumerCtx, cfg.Kafka, qualityRepo, kafka.RedisAttemptCounter{Client: database.RDB})
	}
	recorder, err := pipeline.NewRecorder(sink, collector, cfg.Quality.Workers)
	if err != nil {
		log.Fatalf("质量记录器初始化失败: %v", err)
	}

	// 7. 组装检索流水线与 Service
	expander := pipeline.NewExpander(llmClient, expansionCache, collector, cfg.Expansion)
	retriever := pipeline.NewRetriever(embeddingClient, service.NewCorpusStore(evidenceRepo, analysisRepo), collector, cfg.Retrieval)
	excerpts := pipeline.NewExcerptBuilder(cfg.Excerpt)
	assembler := pipeline.NewAssembler(pipeline.AssemblerDeps{
		AI:        llmClient,
		Embedder:  embeddingClient,
		Legal:     legalRepo,
		Expander:  expander,
		Retriever: retriever,
		Excerpts:  excerpts,
		Metrics:   collector,
		Tokens:    pipeline.NewTokenCounter(cfg.Answer.TokenizerModel),
	}, cfg.Answer)
	searchService := service.NewSearchService(expander, retriever, excerpts, presigner, collector, cfg.Retrieval)
	answerService := service.NewAnswerService(assembler, recorder, collector, cfg.Retrieval)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer)

	// 8. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	r.GET("/healthz", handler.Healthz)
	r.GET("/metrics", gin.WrapH(collector.Handler()))

	searchHandler := handler.NewSearchHandler(searchService)
	answerHandler := handler.NewAnswerHandler(answerService, jwtManager)
	qualityHandler := handler.NewQualityHandler(service.NewQualityService(qualityRepo))
	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/search", middleware.AuthMiddleware(jwtManager), searchHandler.Search)
		apiV1.POST("/answer", middleware.OptionalAuth(jwtManager), answerHandler.Answer)
		apiV1.GET("/answer/stream", answerHandler.Stream)
		apiV1.GET("/quality/recent", middleware.AuthMiddleware(jwtManager), qualityHandler.Recent)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}
	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 先等已提交的质量记录写完，再关闭生产者和消费者
	recorder.Close()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	stopConsumer()
	log.Info("服务已优雅关闭")
}
