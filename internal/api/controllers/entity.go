package controllers

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/markany/safepc-ueba/internal/storage"
)

type ScoreSource interface {
	LatestScores(ctx context.Context, limit int) ([]storage.EntityScore, error)
	EntityHistory(ctx context.Context, entityID int64, limit int) ([]storage.RiskHistory, error)
}

type EntityController struct {
	store ScoreSource
}

func NewEntityController(store ScoreSource) *EntityController {
	return &EntityController{store: store}
}

// Scores: 엔티티별 최신 위험 점수 (내림차순)
func (c *EntityController) Scores(ctx echo.Context) error {
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	scores, err := c.store.LatestScores(ctx.Request().Context(), limit)
	if err != nil {
		return ctx.JSON(500, map[string]string{"error": err.Error()})
	}
	if scores == nil {
		scores = []storage.EntityScore{}
	}
	return ctx.JSON(200, map[string]interface{}{"scores": scores})
}

// History: 한 엔티티의 점수 이력. reason JSON은 구조화하여 반환
func (c *EntityController) History(ctx echo.Context) error {
	entityID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return ctx.JSON(400, map[string]string{"error": "잘못된 엔티티 ID"})
	}
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))

	histories, err := c.store.EntityHistory(ctx.Request().Context(), entityID, limit)
	if err != nil {
		return ctx.JSON(500, map[string]string{"error": err.Error()})
	}

	items := make([]map[string]interface{}, 0, len(histories))
	for _, h := range histories {
		var reason map[string]interface{}
		if h.Reason != "" {
			json.Unmarshal([]byte(h.Reason), &reason)
		}
		items = append(items, map[string]interface{}{
			"riskScore":  h.RiskScore,
			"observedAt": h.ObservedAt,
			"generator":  h.Generator,
			"reason":     reason,
		})
	}
	return ctx.JSON(200, map[string]interface{}{"entityId": entityID, "history": items})
}
