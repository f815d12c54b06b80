package storage

import "time"

// Entity: 외부 수집기가 소유하는 엔티티 (user, host 등). 여기서는 읽기 전용
type Entity struct {
	ID          int64     `json:"id"`
	EntityType  string    `json:"entityType"`
	EntityValue string    `json:"entityValue"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Event: 정규화된 이벤트 한 건. 수집 이후 불변
type Event struct {
	ID         int64     `json:"id"`
	EntityID   int64     `json:"entityId"`
	EventType  string    `json:"eventType"`
	Severity   int       `json:"severity"` // 0~10
	ObservedAt time.Time `json:"observedAt"`
}

// RiskHistory: 엔티티/윈도우별 위험 점수 이력 (append-only)
type RiskHistory struct {
	ID         int64     `json:"id"`
	EntityID   int64     `json:"entityId"`
	Generator  string    `json:"generator"`
	RiskScore  float64   `json:"riskScore"` // [0.0, 1.0]
	ObservedAt time.Time `json:"observedAt"` // 윈도우 종료 시각 (exclusive)
	Reason     string    `json:"reason"`     // ReasonPayload JSON
}

// BaselineStats: 엔티티별 과거 점수의 평균/표준편차
type BaselineStats struct {
	Avg     float64 `json:"avg"`
	Sigma   float64 `json:"sigma"`
	Samples int     `json:"samples"`
}

// ReasonPayload: risk history의 reason 컬럼에 저장되는 근거 메타데이터
type ReasonPayload struct {
	Generator       string         `json:"generator"`
	Kind            string         `json:"kind"`
	WindowStart     string         `json:"window_start"`
	WindowEnd       string         `json:"window_end"`
	EventCount      int            `json:"event_count"`
	HighestSeverity int            `json:"highest_severity"`
	LastObservedAt  string         `json:"last_observed_at"`
	Rules           ReasonRules    `json:"rules"`
	Baseline        ReasonBaseline `json:"baseline"`
}

type ReasonRules struct {
	Triggered []string       `json:"triggered"`
	Metadata  map[string]int `json:"metadata"`
}

type ReasonBaseline struct {
	Avg         float64 `json:"avg"`
	Sigma       float64 `json:"sigma"`
	Delta       float64 `json:"delta"`
	IsAnomalous bool    `json:"is_anomalous"`
}
