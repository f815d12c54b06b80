package analyzer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/markany/safepc-ueba/internal/storage"
)

func testWindow() storage.Window {
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	return storage.Window{Start: start, End: start.AddDate(0, 0, 1)}
}

func makeEvents(w storage.Window, count, highestSeverity int) []storage.Event {
	events := make([]storage.Event, 0, count)
	for i := 0; i < count; i++ {
		sev := 1
		if i == count-1 {
			sev = highestSeverity
		}
		events = append(events, storage.Event{
			ID:         int64(i + 1),
			EntityID:   1,
			EventType:  "login",
			Severity:   sev,
			ObservedAt: w.Start.Add(time.Duration(i) * time.Minute),
		})
	}
	return events
}

func TestScenarioHighVolumeHighSeverity(t *testing.T) {
	// 12건, 최고 심각도 9 → 두 룰 발화 → min(24,40)+27+60 = 111 → 100 → 1.0
	w := testWindow()
	result, err := DefaultPipeline().Analyze(1, w, makeEvents(w, 12, 9))
	require.NoError(t, err)

	require.Equal(t, []string{"high_event_volume", "high_severity_detected"}, result.Rules.Triggered)
	require.Equal(t, map[string]int{"event_count": 12, "highest_severity": 9}, result.Rules.Metadata)
	require.Equal(t, 1.0, result.RiskScore)
}

func TestScenarioLowActivity(t *testing.T) {
	// 3건, 심각도 2, 룰 없음 → 6+6+0 = 12 → 0.12
	w := testWindow()
	result, err := DefaultPipeline().Analyze(1, w, makeEvents(w, 3, 2))
	require.NoError(t, err)

	require.Empty(t, result.Rules.Triggered)
	require.InDelta(t, 0.12, result.RiskScore, 1e-9)
}

func TestPipelineDeterministic(t *testing.T) {
	w := testWindow()
	events := makeEvents(w, 7, 5)

	first, err := DefaultPipeline().Analyze(1, w, events)
	require.NoError(t, err)
	second, err := DefaultPipeline().Analyze(1, w, events)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestScoreBounds(t *testing.T) {
	w := testWindow()
	p := DefaultPipeline()
	for _, count := range []int{0, 1, 5, 11, 100, 10000} {
		for _, sev := range []int{0, 3, 8, 10} {
			events := makeEvents(w, count, sev)
			result, err := p.Analyze(1, w, events)
			require.NoError(t, err)
			require.GreaterOrEqual(t, result.RiskScore, 0.0, "count=%d sev=%d", count, sev)
			require.LessOrEqual(t, result.RiskScore, 1.0, "count=%d sev=%d", count, sev)
		}
	}
}

func TestExtractEmptyEventSet(t *testing.T) {
	w := testWindow()
	f := SimpleFeatureExtractor{}.Extract(nil, w)

	require.Equal(t, 0, f.EventCount)
	require.Equal(t, 0, f.HighestSeverity)
	require.Empty(t, f.EventTypes)
	require.Equal(t, w.Start, f.WindowStart)
	require.Equal(t, w.End, f.WindowEnd)
}

func TestExtractDistinctSortedEventTypes(t *testing.T) {
	w := testWindow()
	events := []storage.Event{
		{EventType: "usb_insert", Severity: 3, ObservedAt: w.Start.Add(time.Hour)},
		{EventType: "login", Severity: 1, ObservedAt: w.Start.Add(2 * time.Hour)},
		{EventType: "usb_insert", Severity: 2, ObservedAt: w.Start.Add(3 * time.Hour)},
	}
	f := SimpleFeatureExtractor{}.Extract(events, w)

	require.Equal(t, []string{"login", "usb_insert"}, f.EventTypes)
	require.Equal(t, w.Start.Add(3*time.Hour), f.LastObservedAt)
}

func TestExtractClampsSeverity(t *testing.T) {
	w := testWindow()
	events := []storage.Event{
		{EventType: "x", Severity: 99, ObservedAt: w.Start},
		{EventType: "x", Severity: -5, ObservedAt: w.Start},
	}
	f := SimpleFeatureExtractor{}.Extract(events, w)
	require.Equal(t, 10, f.HighestSeverity)
}

func TestRuleOrderAndDedup(t *testing.T) {
	// 이름이 중복된 룰은 첫 발화만 기록, 순서는 정의 순서 그대로
	rules := []ThresholdRule{
		{Name: "b_rule", Metric: "event_count", Op: "gte", Threshold: 1},
		{Name: "a_rule", Metric: "highest_severity", Op: "gte", Threshold: 0},
		{Name: "b_rule", Metric: "event_count", Op: "gte", Threshold: 2},
	}
	eval := NewThresholdRuleEvaluator(rules).Evaluate(FeatureSummary{EventCount: 5, HighestSeverity: 3})

	require.Equal(t, []string{"b_rule", "a_rule"}, eval.Triggered)
}

func TestThreeRulesSaturateScore(t *testing.T) {
	rules := []ThresholdRule{
		{Name: "r1", Metric: "event_count", Op: "gte", Threshold: 0},
		{Name: "r2", Metric: "highest_severity", Op: "gte", Threshold: 0},
		{Name: "r3", Metric: "event_type_count", Op: "gte", Threshold: 0},
	}
	p := NewPipeline(SimpleFeatureExtractor{}, NewThresholdRuleEvaluator(rules), SimpleScoring{})

	w := testWindow()
	result, err := p.Analyze(1, w, makeEvents(w, 1, 0))
	require.NoError(t, err)
	require.Equal(t, 1.0, result.RiskScore)
}

type badScorer struct{}

func (badScorer) Score(FeatureSummary, RuleEvaluation) float64 { return 250 }

func TestOutOfRangeScoreRejected(t *testing.T) {
	p := NewPipeline(SimpleFeatureExtractor{}, NewThresholdRuleEvaluator(nil), badScorer{})
	w := testWindow()
	_, err := p.Analyze(1, w, makeEvents(w, 1, 1))
	require.Error(t, err)
}

func TestReasonPayload(t *testing.T) {
	w := testWindow()
	result, err := DefaultPipeline().Analyze(7, w, makeEvents(w, 12, 9))
	require.NoError(t, err)

	reason, err := result.Reason("analyzer_service")
	require.NoError(t, err)

	var payload storage.ReasonPayload
	require.NoError(t, json.Unmarshal([]byte(reason), &payload))
	require.Equal(t, "analyzer_service", payload.Generator)
	require.Equal(t, "daily_rollup", payload.Kind)
	require.Equal(t, w.Start.Format(time.RFC3339), payload.WindowStart)
	require.Equal(t, w.End.Format(time.RFC3339), payload.WindowEnd)
	require.Equal(t, 12, payload.EventCount)
	require.Equal(t, 9, payload.HighestSeverity)
	require.Equal(t, []string{"high_event_volume", "high_severity_detected"}, payload.Rules.Triggered)
}
