package analyzer

// 임계치 룰은 데이터로 정의한다. 평가 순서 = 정의 순서
// Metric: "event_count" | "highest_severity" | "event_type_count"
// Op: "gt" | "gte" | "lt" | "lte" | "eq"
type ThresholdRule struct {
	Name      string  `json:"name"`
	Metric    string  `json:"metric"`
	Op        string  `json:"op"`
	Threshold float64 `json:"threshold"`
}

// DefaultRules: 기본 룰셋
func DefaultRules() []ThresholdRule {
	return []ThresholdRule{
		{Name: "high_event_volume", Metric: "event_count", Op: "gt", Threshold: 10},
		{Name: "high_severity_detected", Metric: "highest_severity", Op: "gte", Threshold: 8},
	}
}

// metricValue: FeatureSummary에서 룰 대상 지표값 추출
func metricValue(f FeatureSummary, metric string) (int, bool) {
	switch metric {
	case "event_count":
		return f.EventCount, true
	case "highest_severity":
		return f.HighestSeverity, true
	case "event_type_count":
		return len(f.EventTypes), true
	}
	return 0, false
}

func compareThreshold(v float64, op string, threshold float64) bool {
	switch op {
	case "gt":
		return v > threshold
	case "gte":
		return v >= threshold
	case "lt":
		return v < threshold
	case "lte":
		return v <= threshold
	case "eq":
		return v == threshold
	}
	return false
}
