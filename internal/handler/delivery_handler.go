package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/basilakis/kai-delivery/internal/domain"
)

type DeliveryService interface {
	IngestEvent(ctx context.Context, event *domain.Event) ([]domain.Delivery, error)
	CreateNotification(ctx context.Context, target *domain.NotificationTarget) ([]domain.Delivery, error)
	GetDelivery(ctx context.Context, id string) (*domain.Delivery, error)
}

type DeliveryHandler struct {
	service DeliveryService
}

func NewDeliveryHandler(service DeliveryService) (*DeliveryHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("delivery service is required")
	}
	return &DeliveryHandler{service: service}, nil
}

func RegisterDeliveryRoutes(router fiber.Router, service DeliveryService) error {
	h, err := NewDeliveryHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/events", h.IngestEvent)
	v1.Post("/notifications", h.CreateNotification)
	v1.Get("/deliveries/:id", h.GetDelivery)

	return nil
}

type ingestEventRequest struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt *time.Time      `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

type createNotificationRequest struct {
	Channel   string   `json:"channel"`
	Addresses []string `json:"addresses"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
}

type deliveryResponse struct {
	ID              string     `json:"id"`
	CorrelationID   string     `json:"correlationId"`
	ConfigurationID *string    `json:"configurationId,omitempty"`
	Channel         string     `json:"channel"`
	EventType       string     `json:"eventType,omitempty"`
	Recipient       string     `json:"recipient"`
	Status          string     `json:"status"`
	AttemptCount    int        `json:"attemptCount"`
	MaxAttempts     int        `json:"maxAttempts"`
	NextRetryAt     *time.Time `json:"nextRetryAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt,omitempty"`
}

type ingestEventResponse struct {
	EventID    string             `json:"eventId"`
	Deliveries []deliveryResponse `json:"deliveries"`
}

type createNotificationResponse struct {
	CorrelationID string             `json:"correlationId"`
	Deliveries    []deliveryResponse `json:"deliveries"`
}

func (h *DeliveryHandler) IngestEvent(c *fiber.Ctx) error {
	var req ingestEventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	eventType, err := domain.ParseEventTypeFromString(req.Type)
	if err != nil {
		return toHTTPError(err)
	}

	event := &domain.Event{
		ID:   strings.TrimSpace(req.ID),
		Type: eventType,
		Data: req.Data,
	}
	if req.OccurredAt != nil {
		event.OccurredAt = *req.OccurredAt
	}

	deliveries, err := h.service.IngestEvent(c.Context(), event)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(ingestEventResponse{
		EventID:    event.ID,
		Deliveries: toDeliveryResponses(deliveries),
	})
}

func (h *DeliveryHandler) CreateNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return toHTTPError(err)
	}

	deliveries, err := h.service.CreateNotification(c.Context(), &domain.NotificationTarget{
		Channel:   channel,
		Addresses: req.Addresses,
		Subject:   strings.TrimSpace(req.Subject),
		Body:      req.Body,
	})
	if err != nil {
		return toHTTPError(err)
	}

	resp := createNotificationResponse{
		Deliveries: toDeliveryResponses(deliveries),
	}
	if len(deliveries) > 0 {
		resp.CorrelationID = deliveries[0].CorrelationID
	}

	return c.Status(fiber.StatusAccepted).JSON(resp)
}

func (h *DeliveryHandler) GetDelivery(c *fiber.Ctx) error {
	delivery, err := h.service.GetDelivery(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toDeliveryResponse(delivery))
}

func toDeliveryResponses(deliveries []domain.Delivery) []deliveryResponse {
	responses := make([]deliveryResponse, 0, len(deliveries))
	for _, delivery := range deliveries {
		d := delivery
		responses = append(responses, toDeliveryResponse(&d))
	}
	return responses
}

func toDeliveryResponse(d *domain.Delivery) deliveryResponse {
	if d == nil {
		return deliveryResponse{}
	}

	return deliveryResponse{
		ID:              d.ID,
		CorrelationID:   d.CorrelationID,
		ConfigurationID: d.ConfigurationID,
		Channel:         d.Channel.String(),
		EventType:       string(d.EventType),
		Recipient:       d.Recipient,
		Status:          d.Status.String(),
		AttemptCount:    d.AttemptCount,
		MaxAttempts:     d.MaxAttempts,
		NextRetryAt:     d.NextRetryAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}
