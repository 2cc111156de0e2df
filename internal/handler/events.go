package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/league-client/internal/model"
)

// EventPublisher fans a league event out to subscribed clients.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.NotificationEvent) error
}

// EventsHandler lets admins push league events by hand.
type EventsHandler struct {
	Pub EventPublisher
}

func NewEventsHandler(p EventPublisher) *EventsHandler { return &EventsHandler{Pub: p} }

type publishReq struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Publish: POST /v1/topics/:topic/events.  Responds 202 with the event as
// sent; the broker gives no delivery guarantee beyond that.
func (h *EventsHandler) Publish(c echo.Context) error {
	topic := strings.TrimSpace(c.Param("topic"))
	if topic == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "topic required"})
	}
	var req publishReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Type = strings.TrimSpace(req.Type)
	if req.Type == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "type required"})
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ev := model.NotificationEvent{
		ID:        req.ID,
		Type:      model.EventType(req.Type),
		Topic:     topic,
		Payload:   req.Payload,
		Timestamp: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Pub.Publish(ctx, ev); err != nil {
		c.Logger().Errorf("publish %s to %s: %v", ev.Type, topic, err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "publish failed"})
	}
	return c.JSON(http.StatusAccepted, ev)
}
