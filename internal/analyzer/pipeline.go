package analyzer

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/markany/safepc-ueba/internal/storage"
)

const (
	GeneratorTag = "analyzer_service"
	reasonKind   = "daily_rollup"

	maxSeverity = 10
)

// FeatureSummary: 한 엔티티/윈도우의 이벤트 집계. 영속화되지 않는다
type FeatureSummary struct {
	EventCount      int
	HighestSeverity int // 0~10, 이벤트 없으면 0
	EventTypes      []string // 중복 제거, 정렬
	WindowStart     time.Time
	WindowEnd       time.Time
	LastObservedAt  time.Time
}

// RuleEvaluation: 발화한 룰 이름(정의 순서)과 근거 지표값
type RuleEvaluation struct {
	Triggered []string
	Metadata  map[string]int
}

// Result: 파이프라인 최종 산출물
type Result struct {
	EntityID  int64
	Window    storage.Window
	Features  FeatureSummary
	Rules     RuleEvaluation
	RiskScore float64 // [0.0, 1.0]
	Baseline  storage.ReasonBaseline
}

// FeatureExtractor turns the events of one entity/window into a FeatureSummary.
// Extraction must be pure: identical inputs yield identical summaries.
type FeatureExtractor interface {
	Extract(events []storage.Event, w storage.Window) FeatureSummary
}

// RuleEvaluator evaluates threshold rules against a feature summary.
// Must be side-effect free and never fail for a valid summary.
type RuleEvaluator interface {
	Evaluate(f FeatureSummary) RuleEvaluation
}

// ScoringStrategy combines features and triggered rules into a 0~100 score.
type ScoringStrategy interface {
	Score(f FeatureSummary, r RuleEvaluation) float64
}

// ===== 기본 구현 =====

type SimpleFeatureExtractor struct{}

func (SimpleFeatureExtractor) Extract(events []storage.Event, w storage.Window) FeatureSummary {
	f := FeatureSummary{WindowStart: w.Start, WindowEnd: w.End}
	if len(events) == 0 {
		return f
	}

	types := make(map[string]bool)
	for _, ev := range events {
		f.EventCount++
		sev := ev.Severity
		if sev < 0 {
			sev = 0
		} else if sev > maxSeverity {
			sev = maxSeverity
		}
		if sev > f.HighestSeverity {
			f.HighestSeverity = sev
		}
		if ev.ObservedAt.After(f.LastObservedAt) {
			f.LastObservedAt = ev.ObservedAt
		}
		if ev.EventType != "" {
			types[ev.EventType] = true
		}
	}
	for t := range types {
		f.EventTypes = append(f.EventTypes, t)
	}
	sort.Strings(f.EventTypes)
	return f
}

// ThresholdRuleEvaluator: 룰 테이블을 정의 순서대로 평가
type ThresholdRuleEvaluator struct {
	Rules []ThresholdRule
}

func NewThresholdRuleEvaluator(rules []ThresholdRule) *ThresholdRuleEvaluator {
	return &ThresholdRuleEvaluator{Rules: rules}
}

func (e *ThresholdRuleEvaluator) Evaluate(f FeatureSummary) RuleEvaluation {
	eval := RuleEvaluation{Metadata: make(map[string]int)}
	seen := make(map[string]bool)
	for _, rule := range e.Rules {
		v, ok := metricValue(f, rule.Metric)
		if !ok || seen[rule.Name] {
			continue
		}
		if compareThreshold(float64(v), rule.Op, rule.Threshold) {
			seen[rule.Name] = true
			eval.Triggered = append(eval.Triggered, rule.Name)
			eval.Metadata[rule.Metric] = v
		}
	}
	return eval
}

// SimpleScoring: 기준 점수 산식
//   points = min(event_count*2, 40) + severity/10*30 + 30*발화 룰 수
//   score  = min(points, 100)
type SimpleScoring struct{}

func (SimpleScoring) Score(f FeatureSummary, r RuleEvaluation) float64 {
	points := math.Min(float64(f.EventCount)*2, 40)
	points += float64(f.HighestSeverity) / 10.0 * 30
	points += 30 * float64(len(r.Triggered))
	return math.Min(points, 100)
}

// ===== 파이프라인 =====

// Pipeline: 추출 → 룰 평가 → 점수화. 단계별 구현은 생성 시 교체 가능
type Pipeline struct {
	extractor FeatureExtractor
	evaluator RuleEvaluator
	scorer    ScoringStrategy
}

func NewPipeline(extractor FeatureExtractor, evaluator RuleEvaluator, scorer ScoringStrategy) *Pipeline {
	return &Pipeline{extractor: extractor, evaluator: evaluator, scorer: scorer}
}

func DefaultPipeline() *Pipeline {
	return NewPipeline(SimpleFeatureExtractor{}, NewThresholdRuleEvaluator(DefaultRules()), SimpleScoring{})
}

// Analyze: 한 엔티티/윈도우 처리. 내부 0~100 점수는 영속화 전에 100으로 나눈다
func (p *Pipeline) Analyze(entityID int64, w storage.Window, events []storage.Event) (Result, error) {
	features := p.extractor.Extract(events, w)
	evaluation := p.evaluator.Evaluate(features)
	score := p.scorer.Score(features, evaluation)

	if math.IsNaN(score) || score < 0 || score > 100 {
		return Result{}, fmt.Errorf("score out of range: %v", score)
	}

	return Result{
		EntityID:  entityID,
		Window:    w,
		Features:  features,
		Rules:     evaluation,
		RiskScore: score / 100.0,
	}, nil
}

// Reason: 영속 레코드의 reason JSON 생성
func (r Result) Reason(generator string) (string, error) {
	triggered := r.Rules.Triggered
	if triggered == nil {
		triggered = []string{}
	}
	metadata := r.Rules.Metadata
	if metadata == nil {
		metadata = map[string]int{}
	}
	var lastObserved string
	if !r.Features.LastObservedAt.IsZero() {
		lastObserved = r.Features.LastObservedAt.UTC().Format(time.RFC3339)
	}
	payload := storage.ReasonPayload{
		Generator:       generator,
		Kind:            reasonKind,
		WindowStart:     r.Window.Start.UTC().Format(time.RFC3339),
		WindowEnd:       r.Window.End.UTC().Format(time.RFC3339),
		EventCount:      r.Features.EventCount,
		HighestSeverity: r.Features.HighestSeverity,
		LastObservedAt:  lastObserved,
		Rules:           storage.ReasonRules{Triggered: triggered, Metadata: metadata},
		Baseline:        r.Baseline,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
