// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"datapilot-go/internal/config"
	"datapilot-go/internal/handler"
	"datapilot-go/internal/middleware"
	"datapilot-go/internal/pipeline"
	"datapilot-go/internal/repository"
	"datapilot-go/internal/service"
	"datapilot-go/pkg/database"
	"datapilot-go/pkg/embedding"
	"datapilot-go/pkg/es"
	"datapilot-go/pkg/kafka"
	"datapilot-go/pkg/llm"
	"datapilot-go/pkg/log"
	"datapilot-go/pkg/storage"
	"datapilot-go/pkg/tasks"
	"datapilot-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// kafkaWriteback 把 Kafka 生产者适配为 service.WritebackProducer。
type kafkaWriteback struct{}

func (kafkaWriteback) Produce(task tasks.ExampleIndexTask) error {
	return kafka.ProduceExampleTask(task)
}

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、缓存、对象存储与向量库
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	projectRepo := repository.NewProjectRepository(database.DB)
	recordRepo := repository.NewRecordRepository(database.DB)
	schemaRepo := repository.NewSchemaRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.RDB)
	exampleRepo := repository.NewExampleRepository(es.ESClient, cfg.Elasticsearch.IndexName, cfg.Retrieval.MaxFetch)

	// 5. 初始化嵌入缓存与模型客户端
	embeddingClient := embedding.NewClient(cfg.Embedding)
	embeddingCache := embedding.NewCache(
		embeddingClient,
		cfg.Embedding.Dimensions,
		time.Duration(cfg.Embedding.CacheTTLSecs)*time.Second,
		time.Duration(cfg.Embedding.CacheSweepSecs)*time.Second,
		time.Duration(cfg.Embedding.TimeoutSeconds)*time.Second,
	)
	defer embeddingCache.Stop()
	llmClient := llm.NewClient(cfg.LLM)

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	retrievalService := service.NewRetrievalService(embeddingCache, exampleRepo, cfg.Retrieval)
	promptService := service.NewPromptService(retrievalService, cfg.Prompt)
	schemaService := service.NewSchemaService(schemaRepo)
	chatService := service.NewChatService(promptService, schemaService, llmClient, conversationRepo, kafkaWriteback{})
	feedbackService := service.NewFeedbackService(recordRepo, exampleRepo)
	projectService := service.NewProjectService(projectRepo, recordRepo, schemaRepo, exampleRepo, conversationRepo, jwtManager)

	// 7. 启动后台写回消费者
	indexer := pipeline.NewIndexer(embeddingCache, exampleRepo, recordRepo, cfg.Embedding, cfg.MinIO)
	go kafka.StartConsumer(cfg.Kafka, indexer)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	r.GET("/health", handler.NewHealthHandler(llmClient).Check)
	r.GET("/chat/:token", handler.NewChatHandler(chatService, jwtManager).Handle)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/token", handler.NewProjectHandler(projectService).IssueToken)
		}

		// 需要认证的路由 (携带租户令牌)
		authed := apiV1.Group("/")
		authed.Use(middleware.AuthMiddleware(jwtManager))
		{
			authed.POST("/query", handler.NewQueryHandler(chatService).Query)
			authed.POST("/feedback", handler.NewFeedbackHandler(feedbackService).Submit)
			authed.PUT("/schema", handler.NewSchemaHandler(schemaService).Upsert)
			authed.DELETE("/project", handler.NewProjectHandler(projectService).Purge)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
