package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var mapperNow = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

func TestMapAlertUserEntity(t *testing.T) {
	m, err := MapAlert([]byte(`{"userId":"kim","eventType":"login_failed","severity":7,"@timestamp":"2025-03-31T23:10:00Z"}`), mapperNow)
	require.NoError(t, err)
	require.Equal(t, "user", m.EntityType)
	require.Equal(t, "kim", m.EntityValue)
	require.Equal(t, "login_failed", m.EventType)
	require.Equal(t, 7, m.Severity)
	require.Equal(t, time.Date(2025, 3, 31, 23, 10, 0, 0, time.UTC), m.ObservedAt)
}

func TestMapAlertHostFallback(t *testing.T) {
	m, err := MapAlert([]byte(`{"hostname":"pc-042","msgId":"process_start"}`), mapperNow)
	require.NoError(t, err)
	require.Equal(t, "host", m.EntityType)
	require.Equal(t, "pc-042", m.EntityValue)
	require.Equal(t, "process_start", m.EventType)
}

func TestMapAlertEntityFromCEFExtensions(t *testing.T) {
	m, err := MapAlert([]byte(`{"cefExtensions":{"suid":"park","msgId":"file_copy","severity":"9"}}`), mapperNow)
	require.NoError(t, err)
	require.Equal(t, "user", m.EntityType)
	require.Equal(t, "park", m.EntityValue)
	require.Equal(t, 9, m.Severity)
}

func TestMapAlertMissingEntity(t *testing.T) {
	_, err := MapAlert([]byte(`{"eventType":"login"}`), mapperNow)
	require.ErrorIs(t, err, errNoEntity)
}

func TestMapAlertMissingEventType(t *testing.T) {
	_, err := MapAlert([]byte(`{"userId":"kim"}`), mapperNow)
	require.ErrorIs(t, err, errNoEventType)
}

func TestMapAlertInvalidJSON(t *testing.T) {
	_, err := MapAlert([]byte(`{not json`), mapperNow)
	require.Error(t, err)
}

func TestMapAlertSeverityClamp(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`{"userId":"u","eventType":"e","severity":15}`, 10},
		{`{"userId":"u","eventType":"e","severity":-3}`, 0},
		{`{"userId":"u","eventType":"e","severity":"8"}`, 8},
		{`{"userId":"u","eventType":"e","severity":"abc"}`, 0},
		{`{"userId":"u","eventType":"e"}`, 0},
	}
	for _, tc := range cases {
		m, err := MapAlert([]byte(tc.raw), mapperNow)
		require.NoError(t, err)
		require.Equal(t, tc.want, m.Severity, tc.raw)
	}
}

func TestMapAlertTimestampFallback(t *testing.T) {
	// 파싱 불가능한 타임스탬프는 수신 시각으로 대체
	m, err := MapAlert([]byte(`{"userId":"kim","eventType":"login","@timestamp":"2025/03/31"}`), mapperNow)
	require.NoError(t, err)
	require.Equal(t, mapperNow, m.ObservedAt)
}

func TestExpandCEFLabels(t *testing.T) {
	ext := map[string]interface{}{
		"cs1Label": "Config Type",
		"cs1":      "ipchange",
		"cs2Label": "",       // 라벨 없음 - 무시
		"cs3Label": "Policy", // 값 없음 - 무시
	}
	expandCEFLabels(ext)
	require.Equal(t, "ipchange", ext["ConfigType"])
	require.NotContains(t, ext, "Policy")
}
