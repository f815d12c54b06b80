package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/markany/safepc-ueba/config"
	"github.com/markany/safepc-ueba/internal/analyzer"
	"github.com/markany/safepc-ueba/internal/storage"
)

var (
	analyzerMode     string
	analyzerSince    string
	analyzerUntil    string
	analyzerInterval int
	analyzerDBURL    string
)

var analyzerCmd = &cobra.Command{
	Use:   "analyzer",
	Short: "분석기 실행 (once/daemon)",
	Run: func(cmd *cobra.Command, args []string) {
		runAnalyzer()
	},
}

func init() {
	analyzerCmd.Flags().StringVar(&analyzerMode, "mode", "once", "실행 모드: once | daemon")
	analyzerCmd.Flags().StringVar(&analyzerSince, "since", "", "시작 시각 (ISO-8601, 기본: 마지막 체크포인트)")
	analyzerCmd.Flags().StringVar(&analyzerUntil, "until", "", "종료 시각 (ISO-8601 exclusive, 기본: 오늘 자정 UTC)")
	analyzerCmd.Flags().IntVar(&analyzerInterval, "interval", 0, "daemon 폴링 주기 (초, 기본: ANALYZER_INTERVAL_SECONDS)")
	analyzerCmd.Flags().StringVar(&analyzerDBURL, "database-url", "", "DATABASE_URL 오버라이드")
}

func runAnalyzer() {
	cfg := config.LoadFromEnv("analyzer")
	if analyzerDBURL != "" {
		cfg.Database.URL = analyzerDBURL
	}
	if analyzerInterval > 0 {
		cfg.Analyzer.Interval = time.Duration(analyzerInterval) * time.Second
	}

	since, err := parseTimeFlag(analyzerSince)
	if err != nil {
		log.Fatalf("[ANALYZER] --since 파싱 실패: %v", err)
	}
	until, err := parseTimeFlag(analyzerUntil)
	if err != nil {
		log.Fatalf("[ANALYZER] --until 파싱 실패: %v", err)
	}

	log.Println("[ANALYZER] 시작...")
	log.Printf("  Mode: %s", analyzerMode)
	log.Printf("  Database: %s", cfg.Database.URL)

	pg, err := storage.Open(cfg.Database.URL)
	if err != nil {
		log.Fatalf("[ANALYZER] 저장소 연결 실패: %v", err)
	}
	defer pg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pg.EnsureSchema(ctx); err != nil {
		log.Fatalf("[ANALYZER] 스키마 초기화 실패: %v", err)
	}

	svc := analyzer.NewService(pg, nil, analyzer.ServiceConfig{
		Generator:          cfg.Analyzer.Generator,
		Epoch:              cfg.Analyzer.Epoch,
		BaselineWindowDays: cfg.Analyzer.BaselineWindowDays,
		SigmaMultiplier:    cfg.Analyzer.SigmaMultiplier,
	})

	switch analyzerMode {
	case "once":
		processed, err := svc.RunOnce(ctx, since, until)
		if err != nil {
			log.Fatalf("[ANALYZER] 실행 실패: %v", err)
		}
		log.Printf("[ANALYZER] 완료: %d건", processed)
	case "daemon":
		if err := svc.RunForever(ctx, cfg.Analyzer.Interval, since, until); err != nil {
			log.Fatalf("[ANALYZER] 데몬 종료: %v", err)
		}
	default:
		log.Fatalf("[ANALYZER] 알 수 없는 모드: %s", analyzerMode)
	}
}

// parseTimeFlag: RFC3339 또는 날짜(2006-01-02) 허용. 빈 값은 zero time
func parseTimeFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
