package cmd

import (
	"context"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/markany/safepc-ueba/config"
	"github.com/markany/safepc-ueba/internal/api/controllers"
	"github.com/markany/safepc-ueba/internal/storage"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "점수 조회 API 서버 시작",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadFromEnv("server")

		log.Println("[API] 서버 시작...")
		log.Printf("  Port: %s", cfg.Server.Port)
		log.Printf("  Database: %s", cfg.Database.URL)

		pg, err := storage.Open(cfg.Database.URL)
		if err != nil {
			log.Fatalf("[API] 저장소 연결 실패: %v", err)
		}
		defer pg.Close()

		if err := pg.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("[API] 스키마 초기화 실패: %v", err)
		}

		statusCtrl := controllers.NewStatusController(pg, cfg.Analyzer.Generator)
		entityCtrl := controllers.NewEntityController(pg)

		e := echo.New()
		e.HideBanner = true
		e.Use(middleware.Logger())
		e.Use(middleware.Recover())

		// 상태 API
		e.GET("/api/health", statusCtrl.Health)
		e.GET("/api/status", statusCtrl.Status)

		// 엔티티 점수 API
		e.GET("/api/entities/scores", entityCtrl.Scores)
		e.GET("/api/entities/:id/history", entityCtrl.History)

		e.Logger.Fatal(e.Start(cfg.Server.Port))
	},
}
