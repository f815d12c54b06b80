package analyzer

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/markany/safepc-ueba/internal/storage"
)

// Repository: 분석기가 필요로 하는 저장소 연산
type Repository interface {
	// DiscoverCheckpoint: 해당 generator가 마지막으로 처리 완료한 윈도우 종료 시각
	DiscoverCheckpoint(ctx context.Context, generator string) (time.Time, bool, error)
	// ActiveEntities: 윈도우 내 이벤트가 1건 이상인 엔티티 ID (오름차순)
	ActiveEntities(ctx context.Context, w storage.Window) ([]int64, error)
	// WindowEvents: [Start, End) 구간의 이벤트, observed_at 오름차순. soft-delete 제외
	WindowEvents(ctx context.Context, entityID int64, w storage.Window) ([]storage.Event, error)
	// BaselineStats: until 이전 windowDays일 동안의 점수 평균/표준편차
	BaselineStats(ctx context.Context, entityID int64, until time.Time, windowDays int) (storage.BaselineStats, error)
	// PersistWindow: 윈도우의 레코드 영속화 + 체크포인트 전진을 한 트랜잭션으로 수행.
	// records가 비어도 체크포인트는 전진한다 (활동 없는 윈도우 재스캔 방지)
	PersistWindow(ctx context.Context, generator string, w storage.Window, records []storage.RiskHistory) error
}

type ServiceConfig struct {
	Generator          string
	Epoch              time.Time // 체크포인트가 없을 때의 시작점
	BaselineWindowDays int
	SigmaMultiplier    float64
}

// Service: 이벤트를 엔티티/일 단위 위험 점수로 롤업하는 오케스트레이터
type Service struct {
	repo     Repository
	pipeline *Pipeline
	cfg      ServiceConfig
	nowFn    func() time.Time
}

func NewService(repo Repository, pipeline *Pipeline, cfg ServiceConfig) *Service {
	if pipeline == nil {
		pipeline = DefaultPipeline()
	}
	if cfg.Generator == "" {
		cfg.Generator = GeneratorTag
	}
	if cfg.Epoch.IsZero() {
		cfg.Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Service{repo: repo, pipeline: pipeline, cfg: cfg, nowFn: time.Now}
}

// RunOnce: 처리 범위를 결정하고 전체 윈도우를 오름차순으로 처리한다.
// since/until이 zero면 각각 체크포인트/오늘 자정(UTC)으로 대체.
// 반환값은 영속화된 레코드 수
func (s *Service) RunOnce(ctx context.Context, since, until time.Time) (int, error) {
	if !since.IsZero() && !until.IsZero() && since.After(until) {
		return 0, &ConfigError{Msg: "since가 until 이후입니다"}
	}

	resolvedUntil := storage.WindowStart(s.nowFn())
	if !until.IsZero() {
		// 진행 중인 날은 처리하지 않음 — 자정으로 내림
		resolvedUntil = storage.WindowStart(until)
	}

	var resolvedSince time.Time
	if !since.IsZero() {
		resolvedSince = storage.WindowStart(since)
	} else {
		checkpoint, ok, err := s.repo.DiscoverCheckpoint(ctx, s.cfg.Generator)
		if err != nil {
			return 0, &RepoError{Op: "checkpoint 조회", Err: err}
		}
		if ok {
			resolvedSince = storage.WindowStart(checkpoint)
		} else {
			resolvedSince = storage.WindowStart(s.cfg.Epoch)
		}
	}

	if !resolvedSince.Before(resolvedUntil) {
		log.Printf("[RUN] 처리할 윈도우 없음 (since=%s until=%s)",
			resolvedSince.Format("2006-01-02"), resolvedUntil.Format("2006-01-02"))
		return 0, nil
	}

	baseline := newBaselineCalculator(s.repo, s.cfg.BaselineWindowDays, s.cfg.SigmaMultiplier)
	processed := 0
	for _, w := range storage.Windows(resolvedSince, resolvedUntil) {
		n, err := s.processWindow(ctx, w, baseline)
		processed += n
		if err != nil {
			return processed, err
		}
	}

	log.Printf("[RUN] 완료: %d개 레코드 (%s ~ %s)", processed,
		resolvedSince.Format("2006-01-02"), resolvedUntil.Format("2006-01-02"))
	return processed, nil
}

// processWindow: 한 윈도우의 전체 엔티티 처리 후 체크포인트와 함께 영속화.
// 취소 시 윈도우 단위로 깔끔하게 중단 (부분 영속화 없음)
func (s *Service) processWindow(ctx context.Context, w storage.Window, baseline *baselineCalculator) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	entities, err := s.repo.ActiveEntities(ctx, w)
	if err != nil {
		return 0, &RepoError{Op: "엔티티 조회", Err: err}
	}

	var records []storage.RiskHistory
	for _, entityID := range entities {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		events, err := s.repo.WindowEvents(ctx, entityID, w)
		if err != nil {
			return 0, &RepoError{Op: "이벤트 조회", Err: err}
		}
		if len(events) == 0 {
			// 활동 없는 엔티티는 레코드를 만들지 않는다
			continue
		}

		result, err := s.pipeline.Analyze(entityID, w, events)
		if err != nil {
			logEntitySkip(&EntityError{EntityID: entityID, Stage: "pipeline", Err: err})
			continue
		}

		stats, err := baseline.stats(ctx, entityID, w.End)
		if err != nil {
			return 0, &RepoError{Op: "baseline 조회", Err: err}
		}
		result.Baseline = baseline.assess(stats, result.RiskScore)

		reason, err := result.Reason(s.cfg.Generator)
		if err != nil {
			logEntitySkip(&EntityError{EntityID: entityID, Stage: "reason", Err: err})
			continue
		}

		records = append(records, storage.RiskHistory{
			EntityID:   entityID,
			Generator:  s.cfg.Generator,
			RiskScore:  result.RiskScore,
			ObservedAt: w.End,
			Reason:     reason,
		})
	}

	// 레코드가 없어도 체크포인트는 전진해야 한다
	if err := s.repo.PersistWindow(ctx, s.cfg.Generator, w, records); err != nil {
		return 0, &RepoError{Op: "영속화", Err: err}
	}

	log.Printf("[WINDOW] %s: 엔티티 %d명 중 %d건 기록",
		w.Start.Format("2006-01-02"), len(entities), len(records))
	return len(records), nil
}

func logEntitySkip(err *EntityError) {
	log.Printf("[WINDOW] 엔티티 건너뜀: %v", err)
}

// RunForever: 고정 주기 폴링 루프. ConfigError는 즉시 종료,
// RepoError는 다음 회차에서 재시도. 취소 시 진행 중인 윈도우 단위까지 마치고 종료
func (s *Service) RunForever(ctx context.Context, interval time.Duration, since, until time.Time) error {
	log.Printf("[RUN] 데몬 시작 (interval=%s)", interval)
	for {
		if _, err := s.RunOnce(ctx, since, until); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Println("[RUN] 중단 요청 - 종료")
				return nil
			}
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				return err
			}
			log.Printf("[RUN] 실패, 다음 회차에 재시도: %v", err)
		}
		// 이후 회차는 체크포인트 기준으로만 진행
		since, until = time.Time{}, time.Time{}

		select {
		case <-ctx.Done():
			log.Println("[RUN] 중단 요청 - 종료")
			return nil
		case <-time.After(interval):
		}
	}
}
