package controllers

import (
	"context"
	"math"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
)

type StatsSource interface {
	Stats(ctx context.Context) (entities, events, histories int, err error)
}

type StatusController struct {
	store     StatsSource
	generator string
	startTime time.Time
}

func NewStatusController(store StatsSource, generator string) *StatusController {
	return &StatusController{store: store, generator: generator, startTime: time.Now()}
}

func (c *StatusController) Health(ctx echo.Context) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	entities, events, histories, err := c.store.Stats(ctx.Request().Context())

	level := "healthy"
	var warnings []string
	if err != nil {
		level = "critical"
		warnings = append(warnings, "저장소 연결 실패")
	}

	return ctx.JSON(200, map[string]interface{}{
		"status":   level,
		"warnings": warnings,
		"uptime":   time.Since(c.startTime).String(),
		"memory": map[string]interface{}{
			"alloc_mb":   math.Round(float64(m.Alloc)/1024/1024*100) / 100,
			"goroutines": runtime.NumGoroutine(),
		},
		"data": map[string]interface{}{
			"entities":  entities,
			"events":    events,
			"histories": histories,
		},
	})
}

func (c *StatusController) Status(ctx echo.Context) error {
	entities, events, histories, _ := c.store.Stats(ctx.Request().Context())
	return ctx.JSON(200, map[string]interface{}{
		"service":   "ueba-analyzer",
		"generator": c.generator,
		"entities":  entities,
		"events":    events,
		"histories": histories,
	})
}
