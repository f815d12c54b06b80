package analyzer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/markany/safepc-ueba/internal/storage"
)

const (
	DefaultBaselineWindowDays = 30
	DefaultSigmaMultiplier    = 3.0
)

// baselineCalculator: 엔티티별 과거 점수의 평균/표준편차로 이상 여부 판단.
// 런 단위 캐시 — 같은 엔티티/윈도우는 한 번만 조회
type baselineCalculator struct {
	repo            Repository
	windowDays      int
	sigmaMultiplier float64
	cache           map[string]storage.BaselineStats
}

func newBaselineCalculator(repo Repository, windowDays int, sigmaMultiplier float64) *baselineCalculator {
	if windowDays <= 0 {
		windowDays = DefaultBaselineWindowDays
	}
	if sigmaMultiplier <= 0 {
		sigmaMultiplier = DefaultSigmaMultiplier
	}
	return &baselineCalculator{
		repo:            repo,
		windowDays:      windowDays,
		sigmaMultiplier: sigmaMultiplier,
		cache:           make(map[string]storage.BaselineStats),
	}
}

func (b *baselineCalculator) stats(ctx context.Context, entityID int64, until time.Time) (storage.BaselineStats, error) {
	key := fmt.Sprintf("%d|%s", entityID, until.UTC().Format(time.RFC3339))
	if cached, ok := b.cache[key]; ok {
		return cached, nil
	}
	stats, err := b.repo.BaselineStats(ctx, entityID, until, b.windowDays)
	if err != nil {
		return storage.BaselineStats{}, err
	}
	b.cache[key] = stats
	return stats, nil
}

// assess: risk가 avg + multiplier*sigma를 넘으면 이상으로 표시
func (b *baselineCalculator) assess(stats storage.BaselineStats, risk float64) storage.ReasonBaseline {
	threshold := stats.Avg + b.sigmaMultiplier*stats.Sigma
	delta := risk - stats.Avg
	return storage.ReasonBaseline{
		Avg:         round4(stats.Avg),
		Sigma:       round4(stats.Sigma),
		Delta:       round4(delta),
		IsAnomalous: stats.Samples > 0 && risk > threshold,
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
