package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/SlpAus/style-off-backend/api"
	"github.com/SlpAus/style-off-backend/internal/game"
	"github.com/SlpAus/style-off-backend/internal/platform/config"
	"github.com/SlpAus/style-off-backend/internal/platform/database"
	"github.com/SlpAus/style-off-backend/internal/platform/shutdown"
	"github.com/SlpAus/style-off-backend/internal/platform/startup"
	"github.com/SlpAus/style-off-backend/internal/reveal"
	"github.com/SlpAus/style-off-backend/pkg/lifecycle"
	"github.com/SlpAus/style-off-backend/pkg/token"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 加载配置并生成本次运行的密钥
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("配置加载失败，无法启动: %v", err))
	}
	token.GenerateSecretKey()

	// 2. 初始化SQLite与Redis
	database.InitDB(cfg.Database.SqlitePath)
	database.InitRedis(cfg.Database.Redis)

	// 3. 执行应用首次启动初始化流程
	if err := startup.InitializeApplication(cfg); err != nil {
		panic(fmt.Sprintf("应用初始化失败，无法启动: %v", err))
	}

	// 4. 启动后台调度与定时清理
	gracefulMgr := lifecycle.NewManager()
	forcefulMgr := lifecycle.NewManager()
	if err := game.StartScheduler(gracefulMgr); err != nil {
		panic(fmt.Sprintf("回合调度器启动失败: %v", err))
	}
	cronSweeper, err := game.NewCronSweeper()
	if err != nil {
		panic(fmt.Sprintf("定时清理任务注册失败: %v", err))
	}
	cronSweeper.Start()

	// 5. 组装Gin引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.Cors.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "If-None-Match"},
		ExposeHeaders:    []string{"Content-Length", "ETag", "Retry-After", "X-Cache"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	revealHandler := reveal.NewHandler(reveal.DefaultService())
	api.SetupRoutes(r, revealHandler)

	// 6. 启动HTTP服务器并等待停机信号
	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}
	go func() {
		fmt.Printf("服务器已准备就绪，开始监听 %s\n", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic("服务器启动失败: " + err.Error())
		}
	}()

	coordinator := shutdown.NewCoordinator(gracefulMgr, forcefulMgr, cronSweeper)
	coordinator.ListenForSignalsAndShutdown(server)
}
