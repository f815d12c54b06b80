package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/markany/safepc-ueba/internal/storage"
)

func TestAssessAnomalous(t *testing.T) {
	calc := newBaselineCalculator(newFakeRepo(), 30, 3.0)
	stats := storage.BaselineStats{Avg: 0.1, Sigma: 0.02, Samples: 10}

	b := calc.assess(stats, 0.9)
	require.True(t, b.IsAnomalous) // 0.9 > 0.1 + 3*0.02
	require.Equal(t, 0.1, b.Avg)
	require.Equal(t, 0.8, b.Delta)

	b = calc.assess(stats, 0.12)
	require.False(t, b.IsAnomalous)
}

func TestAssessNoHistory(t *testing.T) {
	calc := newBaselineCalculator(newFakeRepo(), 30, 3.0)

	// 이력 없는 엔티티는 점수가 높아도 이상으로 보지 않는다
	b := calc.assess(storage.BaselineStats{}, 1.0)
	require.False(t, b.IsAnomalous)
	require.Equal(t, 1.0, b.Delta)
}

func TestAssessDeltaRounded(t *testing.T) {
	calc := newBaselineCalculator(newFakeRepo(), 30, 3.0)
	b := calc.assess(storage.BaselineStats{Avg: 0.123456, Sigma: 0.000004, Samples: 3}, 0.5)
	require.Equal(t, 0.1235, b.Avg)
	require.Equal(t, 0.0, b.Sigma)
	require.Equal(t, 0.3765, b.Delta)
}

func TestBaselineStatsCachedPerRun(t *testing.T) {
	repo := &countingRepo{fakeRepo: newFakeRepo()}
	calc := newBaselineCalculator(repo, 30, 3.0)

	until := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	_, err := calc.stats(context.Background(), 1, until)
	require.NoError(t, err)
	_, err = calc.stats(context.Background(), 1, until)
	require.NoError(t, err)
	require.Equal(t, 1, repo.baselineCalls, "같은 엔티티/윈도우는 한 번만 조회")

	_, err = calc.stats(context.Background(), 2, until)
	require.NoError(t, err)
	require.Equal(t, 2, repo.baselineCalls)
}

type countingRepo struct {
	*fakeRepo
	baselineCalls int
}

func (c *countingRepo) BaselineStats(ctx context.Context, entityID int64, until time.Time, windowDays int) (storage.BaselineStats, error) {
	c.baselineCalls++
	return c.fakeRepo.BaselineStats(ctx, entityID, until, windowDays)
}
