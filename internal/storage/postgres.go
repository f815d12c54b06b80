package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// Postgres: 분석기/수집기/API가 공유하는 저장소 접근 계층
type Postgres struct {
	db *sql.DB
}

func Open(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// EnsureSchema: 필요한 테이블/인덱스 생성. 마이그레이션 도구 없이 기동 시 보장
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id BIGSERIAL PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_value TEXT NOT NULL,
			display_name TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ,
			UNIQUE (entity_type, entity_value)
		)`,
		`CREATE TABLE IF NOT EXISTS normalized_events (
			id BIGSERIAL PRIMARY KEY,
			entity_id BIGINT REFERENCES entities(id) ON DELETE SET NULL,
			event_type TEXT NOT NULL,
			severity INTEGER NOT NULL DEFAULT 0,
			observed_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS ix_normalized_events_entity_observed
			ON normalized_events (entity_id, observed_at)`,
		`CREATE TABLE IF NOT EXISTS entity_risk_history (
			id BIGSERIAL PRIMARY KEY,
			entity_id BIGINT NOT NULL,
			generator TEXT NOT NULL,
			risk_score DOUBLE PRECISION NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL,
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_risk_history_entity_window
			ON entity_risk_history (entity_id, observed_at, generator)
			WHERE deleted_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS ix_risk_history_entity_observed
			ON entity_risk_history (entity_id, observed_at)`,
		`CREATE TABLE IF NOT EXISTS analyzer_checkpoints (
			generator TEXT PRIMARY KEY,
			window_end TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

// ===== 분석기 =====

// DiscoverCheckpoint: 명시적 체크포인트 레코드 우선, 없으면 risk history 스캔
func (p *Postgres) DiscoverCheckpoint(ctx context.Context, generator string) (time.Time, bool, error) {
	var windowEnd time.Time
	err := p.db.QueryRowContext(ctx,
		`SELECT window_end FROM analyzer_checkpoints WHERE generator = $1`,
		generator).Scan(&windowEnd)
	switch {
	case err == nil:
		return windowEnd.UTC(), true, nil
	case err != sql.ErrNoRows:
		return time.Time{}, false, err
	}

	// 체크포인트 레코드 도입 이전의 데이터도 이어서 처리 가능해야 한다
	var legacy sql.NullTime
	err = p.db.QueryRowContext(ctx,
		`SELECT MAX(observed_at) FROM entity_risk_history
		 WHERE generator = $1 AND deleted_at IS NULL`,
		generator).Scan(&legacy)
	if err != nil {
		return time.Time{}, false, err
	}
	if !legacy.Valid {
		return time.Time{}, false, nil
	}
	return legacy.Time.UTC(), true, nil
}

func (p *Postgres) ActiveEntities(ctx context.Context, w Window) ([]int64, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT DISTINCT entity_id FROM normalized_events
		 WHERE entity_id IS NOT NULL
		   AND deleted_at IS NULL AND status = 'active'
		   AND observed_at >= $1 AND observed_at < $2
		 ORDER BY entity_id`,
		w.Start, w.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) WindowEvents(ctx context.Context, entityID int64, w Window) ([]Event, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, entity_id, event_type, severity, observed_at
		 FROM normalized_events
		 WHERE entity_id = $1
		   AND deleted_at IS NULL AND status = 'active'
		   AND observed_at >= $2 AND observed_at < $3
		 ORDER BY observed_at, id`,
		entityID, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.EntityID, &ev.EventType, &ev.Severity, &ev.ObservedAt); err != nil {
			return nil, err
		}
		ev.ObservedAt = ev.ObservedAt.UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// BaselineStats: 집계를 쿼리 계층에 밀어넣는다 — 이벤트를 메모리로 가져오지 않음
func (p *Postgres) BaselineStats(ctx context.Context, entityID int64, until time.Time, windowDays int) (BaselineStats, error) {
	since := until.AddDate(0, 0, -windowDays)
	var stats BaselineStats
	err := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(risk_score), 0), COALESCE(STDDEV_POP(risk_score), 0), COUNT(*)
		 FROM entity_risk_history
		 WHERE entity_id = $1 AND deleted_at IS NULL
		   AND observed_at >= $2 AND observed_at < $3`,
		entityID, since, until).Scan(&stats.Avg, &stats.Sigma, &stats.Samples)
	if err != nil {
		return BaselineStats{}, err
	}
	return stats, nil
}

// PersistWindow: 레코드 upsert와 체크포인트 전진을 한 트랜잭션으로.
// (entity_id, observed_at, generator) 유니크 제약으로 재처리가 멱등이 된다
func (p *Postgres) PersistWindow(ctx context.Context, generator string, w Window, records []RiskHistory) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range records {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO entity_risk_history (entity_id, generator, risk_score, observed_at, reason)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (entity_id, observed_at, generator) WHERE deleted_at IS NULL
			 DO UPDATE SET risk_score = EXCLUDED.risk_score, reason = EXCLUDED.reason, updated_at = now()`,
			r.EntityID, r.Generator, r.RiskScore, r.ObservedAt, r.Reason)
		if err != nil {
			return err
		}
	}

	// 체크포인트는 단조 증가만 허용
	_, err = tx.ExecContext(ctx,
		`INSERT INTO analyzer_checkpoints (generator, window_end)
		 VALUES ($1, $2)
		 ON CONFLICT (generator)
		 DO UPDATE SET window_end = GREATEST(analyzer_checkpoints.window_end, EXCLUDED.window_end),
		               updated_at = now()`,
		generator, w.End)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ===== 수집기 =====

// UpsertEntity: (type, value)로 엔티티 확보 후 ID 반환
func (p *Postgres) UpsertEntity(ctx context.Context, entityType, entityValue string) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO entities (entity_type, entity_value)
		 VALUES ($1, $2)
		 ON CONFLICT (entity_type, entity_value)
		 DO UPDATE SET updated_at = now()
		 RETURNING id`,
		entityType, entityValue).Scan(&id)
	return id, err
}

func (p *Postgres) InsertEvent(ctx context.Context, ev Event) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO normalized_events (entity_id, event_type, severity, observed_at)
		 VALUES ($1, $2, $3, $4)`,
		ev.EntityID, ev.EventType, ev.Severity, ev.ObservedAt)
	return err
}

// ===== API =====

type EntityScore struct {
	EntityID    int64     `json:"entityId"`
	EntityType  string    `json:"entityType"`
	EntityValue string    `json:"entityValue"`
	RiskScore   float64   `json:"riskScore"`
	ObservedAt  time.Time `json:"observedAt"`
}

// LatestScores: 엔티티별 최신 점수, 점수 내림차순
func (p *Postgres) LatestScores(ctx context.Context, limit int) ([]EntityScore, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT h.entity_id, e.entity_type, e.entity_value, h.risk_score, h.observed_at
		 FROM (
			SELECT DISTINCT ON (entity_id) entity_id, risk_score, observed_at
			FROM entity_risk_history
			WHERE deleted_at IS NULL
			ORDER BY entity_id, observed_at DESC
		 ) h
		 JOIN entities e ON e.id = h.entity_id
		 ORDER BY h.risk_score DESC, h.entity_id
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []EntityScore
	for rows.Next() {
		var s EntityScore
		if err := rows.Scan(&s.EntityID, &s.EntityType, &s.EntityValue, &s.RiskScore, &s.ObservedAt); err != nil {
			return nil, err
		}
		s.ObservedAt = s.ObservedAt.UTC()
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// EntityHistory: 한 엔티티의 점수 이력 (최신순)
func (p *Postgres) EntityHistory(ctx context.Context, entityID int64, limit int) ([]RiskHistory, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, entity_id, generator, risk_score, observed_at, COALESCE(reason, '')
		 FROM entity_risk_history
		 WHERE entity_id = $1 AND deleted_at IS NULL
		 ORDER BY observed_at DESC
		 LIMIT $2`,
		entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var histories []RiskHistory
	for rows.Next() {
		var h RiskHistory
		if err := rows.Scan(&h.ID, &h.EntityID, &h.Generator, &h.RiskScore, &h.ObservedAt, &h.Reason); err != nil {
			return nil, err
		}
		h.ObservedAt = h.ObservedAt.UTC()
		histories = append(histories, h)
	}
	return histories, rows.Err()
}

// Stats: 상태 API용 카운트
func (p *Postgres) Stats(ctx context.Context) (entities, events, histories int, err error) {
	err = p.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM entities WHERE deleted_at IS NULL),
			(SELECT COUNT(*) FROM normalized_events WHERE deleted_at IS NULL),
			(SELECT COUNT(*) FROM entity_risk_history WHERE deleted_at IS NULL)`,
	).Scan(&entities, &events, &histories)
	if err != nil {
		log.Printf("[STORAGE] 통계 조회 실패: %v", err)
	}
	return
}
