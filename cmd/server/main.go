// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"companion-go/internal/companion"
	"companion-go/internal/companion/session"
	"companion-go/internal/config"
	"companion-go/internal/handler"
	"companion-go/internal/middleware"
	"companion-go/internal/pipeline"
	"companion-go/internal/repository"
	"companion-go/internal/service"
	"companion-go/pkg/database"
	"companion-go/pkg/es"
	"companion-go/pkg/kafka"
	"companion-go/pkg/llm"
	"companion-go/pkg/log"
	"companion-go/pkg/storage"
	"companion-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	configPath := "./configs/config.yaml"
	if p := os.Getenv("COMPANION_CONFIG"); p != "" {
		configPath = p
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	database.InitDB(cfg.Database)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	personaRepo := repository.NewPersonaRepository(database.DB)
	messageRepo := repository.NewChatMessageRepository(database.DB)
	tokenRepo := repository.NewTokenRepository(database.RDB)
	exportRepo := repository.NewExportStatusRepository(database.RDB)

	// 5. 会话上下文与回复生成
	sessionCfg := cfg.Companion.Session
	var sessionStore session.Store
	if strings.EqualFold(sessionCfg.Store, "redis") {
		sessionStore = repository.NewSessionRepository(database.RDB, sessionCfg.MaxAge())
	} else {
		sessionStore = session.NewMemoryStore(sessionCfg.MaxSize, sessionCfg.MaxAge())
	}
	sessions := session.NewManager(sessionStore, sessionCfg.MaxTurns)

	rnd := companion.NewLockedRand(time.Now().UnixNano())
	ruleBased := companion.NewRuleBasedGenerator(companion.NewResponder(rnd, cfg.Companion.CheckInProbability))
	generator, ready := newGenerator(cfg, ruleBased)

	// 6. 可选的外部组件：Elasticsearch、Kafka、MinIO
	var index service.TranscriptIndex
	if cfg.Elasticsearch.Enabled {
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			log.Errorf("es 初始化失败，聊天记录检索不可用: %v", err)
		} else {
			index = es.NewTranscriptIndex(es.ESClient, cfg.Elasticsearch.IndexName)
		}
	}

	var objects *storage.ObjectStore
	var signer service.URLSigner
	if cfg.MinIO.Enabled {
		storage.InitMinIO(cfg.MinIO)
		objects = storage.NewObjectStore(storage.MinioClient, cfg.MinIO.BucketName)
		signer = objects
	}

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	var producer service.TaskProducer
	if cfg.Kafka.Enabled && objects != nil {
		p := kafka.NewProducer(cfg.Kafka)
		defer p.Close()
		producer = p

		processor := pipeline.NewProcessor(messageRepo, exportRepo, objects)
		go kafka.StartConsumer(consumerCtx, cfg.Kafka, processor, database.RDB)
	} else if cfg.Kafka.Enabled {
		log.Warnf("Kafka 已启用但 MinIO 未启用，聊天记录导出不可用")
	}

	// 7. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	userService := service.NewUserService(userRepo, tokenRepo, jwtManager)
	personaService := service.NewPersonaService(personaRepo, sessions)
	chatService := service.NewChatService(messageRepo, personaRepo, sessions, generator, ready, service.ChatOptions{
		TimeTagProbability: cfg.Companion.TimeTagProbability,
		MaxReplyChars:      cfg.Companion.MaxReplyChars,
		ReplayLimit:        cfg.Companion.ReplayLimit,
		Rand:               rnd,
		Index:              index,
	})
	exportService := service.NewExportService(producer, signer, exportRepo)
	adminService := service.NewAdminService(userRepo, messageRepo, sessions, index)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := handler.NewUserHandler(userService)
	authHandler := handler.NewAuthHandler(userService)
	personaHandler := handler.NewPersonaHandler(personaService)
	chatHandler := handler.NewChatHandler(chatService, userService, jwtManager)
	exportHandler := handler.NewExportHandler(exportService)
	adminHandler := handler.NewAdminHandler(adminService)
	authRequired := middleware.AuthMiddleware(jwtManager, userService)

	// 9. 注册路由
	r.GET("/health", handler.Health(chatService))
	r.GET("/chat/ws/:token", chatHandler.Handle)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", userHandler.Register)
			auth.POST("/login", userHandler.Login)
			auth.POST("/refreshToken", authHandler.RefreshToken)
			auth.POST("/logout", authRequired, userHandler.Logout)
		}

		apiV1.GET("/users/me", authRequired, userHandler.GetProfile)

		persona := apiV1.Group("/persona")
		persona.Use(authRequired)
		{
			persona.GET("", personaHandler.Get)
			persona.PUT("", personaHandler.Update)
			persona.POST("", personaHandler.Update)
		}

		chat := apiV1.Group("/chat")
		chat.Use(authRequired)
		{
			chat.POST("", chatHandler.Chat)
			chat.GET("/history", chatHandler.History)
			chat.GET("/history/search", chatHandler.Search)
			chat.POST("/history/export", exportHandler.Request)
			chat.GET("/history/export/:taskId", exportHandler.Status)
		}

		admin := apiV1.Group("/admin")
		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin.Use(authRequired, middleware.AdminAuthMiddleware())
		{
			admin.GET("/users", adminHandler.ListUsers)
			admin.GET("/users/:userId/transcript", adminHandler.GetUserTranscript)
			admin.DELETE("/users/:userId", adminHandler.DeleteUser)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s，AI 就绪: %v", srv.Addr, ready)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	stopConsumer()
	log.Info("服务已优雅关闭")
}

// newGenerator 按配置选择回复生成器。远程模式下客户端初始化失败时返回 ready=false，
// 对话接口随后一律返回 503，规则模式始终就绪。
func newGenerator(cfg config.Config, ruleBased *companion.RuleBasedGenerator) (companion.ResponseGenerator, bool) {
	if strings.EqualFold(cfg.Companion.Mode, "rule_based") {
		log.Info("使用规则回复模式")
		return ruleBased, true
	}
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Errorf("远程模型初始化失败: %v", err)
		return ruleBased, false
	}
	log.Infof("使用远程模型 %s，失败时回退到规则回复", cfg.LLM.Model)
	return companion.NewRemoteGenerator(client, llm.ParamsFromConfig(cfg.LLM.Generation), cfg.LLM.Timeout(), ruleBased), true
}
