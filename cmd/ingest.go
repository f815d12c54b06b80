package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/markany/safepc-ueba/config"
	"github.com/markany/safepc-ueba/internal/ingest"
	"github.com/markany/safepc-ueba/internal/storage"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Kafka 이벤트 수집기 시작",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadFromEnv("ingest")

		log.Println("[INGEST] 수집기 시작...")
		log.Printf("  Kafka: %s", cfg.Kafka.Bootstrap)
		log.Printf("  Topics: %s", cfg.Kafka.EventTopics)
		log.Printf("  Database: %s", cfg.Database.URL)

		pg, err := storage.Open(cfg.Database.URL)
		if err != nil {
			log.Fatalf("[INGEST] 저장소 연결 실패: %v", err)
		}
		defer pg.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("[INGEST] 스키마 초기화 실패: %v", err)
		}

		consumer := ingest.NewConsumer(pg)
		if err := consumer.Start(ctx, cfg.Kafka.Bootstrap, cfg.Kafka.EventTopics); err != nil {
			log.Fatalf("[INGEST] 소비자 시작 실패: %v", err)
		}
	},
}
