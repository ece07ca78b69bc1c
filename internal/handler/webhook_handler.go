package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/basilakis/kai-delivery/internal/domain"
	"github.com/basilakis/kai-delivery/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100

	ownerHeader = "X-Owner-ID"
)

type WebhookService interface {
	Create(ctx context.Context, cfg *domain.WebhookConfiguration) (*domain.WebhookConfiguration, error)
	Get(ctx context.Context, id, ownerID string) (*domain.WebhookConfiguration, error)
	List(ctx context.Context, ownerID string) ([]domain.WebhookConfiguration, error)
	Update(ctx context.Context, cfg *domain.WebhookConfiguration) (*domain.WebhookConfiguration, error)
	Delete(ctx context.Context, id, ownerID string) error
	RotateSecret(ctx context.Context, id, ownerID string) (string, error)
	TestDispatch(ctx context.Context, id, ownerID string) (*domain.Delivery, *service.DispatchResult, error)
	Logs(ctx context.Context, id, ownerID string, status *domain.AttemptStatus, limit, offset int) ([]domain.DeliveryAttempt, int64, error)
}

type WebhookHandler struct {
	service WebhookService
}

func NewWebhookHandler(service WebhookService) (*WebhookHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("webhook service is required")
	}
	return &WebhookHandler{service: service}, nil
}

func RegisterWebhookRoutes(router fiber.Router, service WebhookService) error {
	h, err := NewWebhookHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/webhooks/configurations", h.CreateConfiguration)
	v1.Get("/webhooks/configurations", h.ListConfigurations)
	v1.Get("/webhooks/configurations/:id", h.GetConfiguration)
	v1.Put("/webhooks/configurations/:id", h.UpdateConfiguration)
	v1.Delete("/webhooks/configurations/:id", h.DeleteConfiguration)
	v1.Post("/webhooks/configurations/:id/test", h.TestConfiguration)
	v1.Post("/webhooks/configurations/:id/regenerate-secret", h.RegenerateSecret)
	v1.Get("/webhooks/configurations/:id/logs", h.ListConfigurationLogs)

	return nil
}

type upsertConfigurationRequest struct {
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	IsActive *bool    `json:"isActive"`
}

type configurationResponse struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"ownerId"`
	URL             string     `json:"url"`
	Events          []string   `json:"events"`
	IsActive        bool       `json:"isActive"`
	SecretRotatedAt *time.Time `json:"secretRotatedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt,omitempty"`
}

// createConfigurationResponse is the only place besides rotation where the
// plaintext secret crosses the wire.
type createConfigurationResponse struct {
	configurationResponse
	SigningSecret string `json:"signingSecret"`
}

type rotateSecretResponse struct {
	SigningSecret string `json:"signingSecret"`
}

type listConfigurationsResponse struct {
	Data []configurationResponse `json:"data"`
}

type attemptResponse struct {
	ID                string     `json:"id"`
	DeliveryID        string     `json:"deliveryId"`
	ConfigurationID   *string    `json:"configurationId,omitempty"`
	Channel           string     `json:"channel"`
	AttemptNumber     int        `json:"attemptNumber"`
	Status            string     `json:"status"`
	HTTPStatus        *int       `json:"httpStatus,omitempty"`
	ProviderMessageID *string    `json:"providerMessageId,omitempty"`
	ErrorClass        *string    `json:"errorClass,omitempty"`
	Error             *string    `json:"error,omitempty"`
	StartedAt         time.Time  `json:"startedAt"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

type listAttemptsResponse struct {
	Data []attemptResponse `json:"data"`
	Meta listMeta          `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type receiptItem struct {
	MessageID  string `json:"messageId,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
}

type testDispatchResponse struct {
	DeliveryID    string        `json:"deliveryId"`
	Status        string        `json:"status"`
	AttemptNumber int           `json:"attemptNumber"`
	Receipts      []receiptItem `json:"receipts,omitempty"`
	Error         string        `json:"error,omitempty"`
}

func (h *WebhookHandler) CreateConfiguration(c *fiber.Ctx) error {
	ownerID, err := requestOwnerID(c)
	if err != nil {
		return err
	}

	var req upsertConfigurationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := requestToConfiguration(req, ownerID)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.Create(c.Context(), cfg)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(createConfigurationResponse{
		configurationResponse: toConfigurationResponse(created),
		SigningSecret:         created.SigningSecret,
	})
}

func (h *WebhookHandler) ListConfigurations(c *fiber.Ctx) error {
	ownerID, err := requestOwnerID(c)
	if err != nil {
		return err
	}

	configurations, err := h.service.List(c.Context(), ownerID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listConfigurationsResponse{
		Data: toConfigurationResponses(configurations),
	})
}

func (h *WebhookHandler) GetConfiguration(c *fiber.Ctx) error {
	ownerID, err := requestOwnerID(c)
	if err != nil {
		return err
	}

	cfg, err := h.service.Get(c.Context(), c.Params("id"), ownerID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toConfigurationResponse(cfg))
}

func (h *WebhookHandler) UpdateConfiguration(c *fiber.Ctx) error {
	ownerID, err := requestOwnerID(c)
	if err != nil {
		return err
	}

	var req upsertConfigurationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := requestToConfiguration(req, ownerID)
	if err != nil {
		return toHTTPError(err)
	}
	cfg.ID = c.Params("id")

	updated, err := h.service.Update(c.Context(), cfg)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toConfigurationResponse(updated))
}

func (h *WebhookHandler) DeleteConfiguration(c *fiber.Ctx) error {
	ownerID, err := requestOwnerID(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.Context(), c.Params("id"), ownerID); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *WebhookHandler) RegenerateSecret(c *fiber.Ctx) error {
	ownerID, err := requestOwnerID(c)
	if err != nil {
		return err
	}

	secret, err := h.service.RotateSecret(c.Context(), c.Params("id"), ownerID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(rotateSecretResponse{SigningSecret: secret})
}

func (h *WebhookHandler) TestConfiguration(c *fiber.Ctx) error {
	ownerID, err := requestOwnerID(c)
	if err != nil {
		return err
	}

	delivery, result, err := h.service.TestDispatch(c.Context(), c.Params("id"), ownerID)
	if err != nil && delivery == nil {
		return toHTTPError(err)
	}

	resp := testDispatchResponse{
		DeliveryID: delivery.ID,
		Status:     delivery.Status.String(),
	}
	if result != nil {
		resp.AttemptNumber = result.AttemptNumber
		for _, receipt := range result.Receipts {
			resp.Receipts = append(resp.Receipts, receiptItem{
				MessageID:  receipt.MessageID,
				StatusCode: receipt.StatusCode,
			})
		}
	}
	if err != nil {
		resp.Error = err.Error()
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *WebhookHandler) ListConfigurationLogs(c *fiber.Ctx) error {
	ownerID, err := requestOwnerID(c)
	if err != nil {
		return err
	}

	page, pageSize, err := parsePageParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	status, err := parseAttemptStatusQuery(c.Query("status"))
	if err != nil {
		return toHTTPError(err)
	}

	attempts, total, err := h.service.Logs(c.Context(), c.Params("id"), ownerID, status, pageSize, (page-1)*pageSize)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listAttemptsResponse{
		Data: toAttemptResponses(attempts),
		Meta: listMeta{Page: page, PageSize: pageSize, Total: total},
	})
}

func requestOwnerID(c *fiber.Ctx) (string, error) {
	ownerID := strings.TrimSpace(c.Get(ownerHeader))
	if ownerID == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "X-Owner-ID header is required")
	}
	return ownerID, nil
}

func parsePageParams(c *fiber.Ctx) (int, int, error) {
	page := c.QueryInt("page", defaultPage)
	pageSize := c.QueryInt("pageSize", defaultPageSize)

	if page < 1 {
		return 0, 0, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return 0, 0, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	return page, pageSize, nil
}

func parseAttemptStatusQuery(value string) (*domain.AttemptStatus, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	status, err := domain.ParseAttemptStatusFromString(trimmed)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func requestToConfiguration(req upsertConfigurationRequest, ownerID string) (*domain.WebhookConfiguration, error) {
	events := make([]domain.EventType, 0, len(req.Events))
	for _, raw := range req.Events {
		event, err := domain.ParseEventTypeFromString(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	cfg := &domain.WebhookConfiguration{
		OwnerID:  ownerID,
		URL:      strings.TrimSpace(req.URL),
		Events:   events,
		IsActive: true,
	}
	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}

	return cfg, nil
}

func toConfigurationResponses(configurations []domain.WebhookConfiguration) []configurationResponse {
	responses := make([]configurationResponse, 0, len(configurations))
	for _, configuration := range configurations {
		cfg := configuration
		responses = append(responses, toConfigurationResponse(&cfg))
	}
	return responses
}

func toConfigurationResponse(cfg *domain.WebhookConfiguration) configurationResponse {
	if cfg == nil {
		return configurationResponse{}
	}

	events := make([]string, 0, len(cfg.Events))
	for _, event := range cfg.Events {
		events = append(events, string(event))
	}

	return configurationResponse{
		ID:              cfg.ID,
		OwnerID:         cfg.OwnerID,
		URL:             cfg.URL,
		Events:          events,
		IsActive:        cfg.IsActive,
		SecretRotatedAt: cfg.SecretRotatedAt,
		CreatedAt:       cfg.CreatedAt,
		UpdatedAt:       cfg.UpdatedAt,
	}
}

func toAttemptResponses(attempts []domain.DeliveryAttempt) []attemptResponse {
	responses := make([]attemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		responses = append(responses, toAttemptResponse(attempt))
	}
	return responses
}

func toAttemptResponse(a domain.DeliveryAttempt) attemptResponse {
	resp := attemptResponse{
		ID:                a.ID,
		DeliveryID:        a.DeliveryID,
		ConfigurationID:   a.ConfigurationID,
		Channel:           a.Channel.String(),
		AttemptNumber:     a.AttemptNumber,
		Status:            a.Status.String(),
		HTTPStatus:        a.HTTPStatus,
		ProviderMessageID: a.ProviderMessageID,
		Error:             a.Error,
		StartedAt:         a.StartedAt,
		CompletedAt:       a.CompletedAt,
	}
	if a.ErrorClass != nil {
		class := string(*a.ErrorClass)
		resp.ErrorClass = &class
	}
	return resp
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	default:
		return err
	}
}
