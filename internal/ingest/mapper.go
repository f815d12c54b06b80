package ingest

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Mapped: 원본 알림 한 건을 정규화한 결과
type Mapped struct {
	EntityType  string
	EntityValue string
	EventType   string
	Severity    int // 0~10으로 클램프
	ObservedAt  time.Time
}

var errNoEntity = errors.New("엔티티 식별자 없음")
var errNoEventType = errors.New("이벤트 타입 없음")

// MapAlert parses a raw alert JSON document into a normalized event.
// Entity: userId/suid → user, 없으면 hostname/shost → host.
// 식별자나 이벤트 타입이 없으면 skip 대상으로 에러 반환
func MapAlert(data []byte, now time.Time) (*Mapped, error) {
	var alert map[string]interface{}
	if err := json.Unmarshal(data, &alert); err != nil {
		return nil, err
	}

	if ext, ok := alert["cefExtensions"].(map[string]interface{}); ok {
		expandCEFLabels(ext)
	}

	m := &Mapped{}

	if uid := stringField(alert, "userId", "suid"); uid != "" {
		m.EntityType, m.EntityValue = "user", uid
	} else if host := stringField(alert, "hostname", "shost"); host != "" {
		m.EntityType, m.EntityValue = "host", host
	} else {
		return nil, errNoEntity
	}

	m.EventType = stringField(alert, "eventType", "msgId")
	if m.EventType == "" {
		return nil, errNoEventType
	}

	m.Severity = clampSeverity(fieldValue(alert, "severity"))

	m.ObservedAt = now.UTC()
	if ts, ok := fieldValue(alert, "@timestamp").(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			m.ObservedAt = t.UTC()
		}
	}

	return m, nil
}

// expandCEFLabels: *Label 접미사 키를 찾아 label 이름으로 값을 매핑
// 예: cs1Label="Config Type", cs1="ipchange" → ConfigType="ipchange"
func expandCEFLabels(ext map[string]interface{}) {
	for k, v := range ext {
		if !strings.HasSuffix(k, "Label") {
			continue
		}
		label, _ := v.(string)
		if label == "" {
			continue
		}
		valueKey := strings.TrimSuffix(k, "Label")
		val, _ := ext[valueKey].(string)
		if val != "" {
			ext[strings.ReplaceAll(label, " ", "")] = val
		}
	}
}

// fieldValue: 최상위 → cefExtensions 순으로 필드 탐색
func fieldValue(alert map[string]interface{}, field string) interface{} {
	if v, ok := alert[field]; ok {
		return v
	}
	if ext, ok := alert["cefExtensions"].(map[string]interface{}); ok {
		if v, ok := ext[field]; ok {
			return v
		}
	}
	return nil
}

func stringField(alert map[string]interface{}, fields ...string) string {
	for _, f := range fields {
		if s, ok := fieldValue(alert, f).(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func clampSeverity(v interface{}) int {
	var sev int
	switch val := v.(type) {
	case float64:
		sev = int(val)
	case int:
		sev = val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			sev = n
		}
	}
	if sev < 0 {
		return 0
	}
	if sev > 10 {
		return 10
	}
	return sev
}
