package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/basilakis/kai-delivery/internal/domain"
	"github.com/basilakis/kai-delivery/internal/provider"
	"github.com/basilakis/kai-delivery/internal/repository"
)

type AdminService interface {
	ListAll(ctx context.Context) ([]domain.WebhookConfiguration, error)
	QueryLogs(ctx context.Context, q repository.AttemptQuery) ([]domain.DeliveryAttempt, int64, error)
	Stats(ctx context.Context, from, to time.Time) ([]repository.AttemptStat, error)
}

// ProviderStates exposes the adapter health slots for the admin surface.
type ProviderStates interface {
	States() []provider.State
}

type AdminHandler struct {
	service   AdminService
	providers ProviderStates
}

func NewAdminHandler(service AdminService, providers ProviderStates) (*AdminHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("admin service is required")
	}
	if providers == nil {
		return nil, fmt.Errorf("provider states are required")
	}
	return &AdminHandler{service: service, providers: providers}, nil
}

func RegisterAdminRoutes(router fiber.Router, service AdminService, providers ProviderStates) error {
	h, err := NewAdminHandler(service, providers)
	if err != nil {
		return err
	}

	admin := router.Group("/admin")
	admin.Get("/webhooks/configurations", h.ListConfigurations)
	admin.Get("/webhooks/logs", h.QueryLogs)
	admin.Get("/webhooks/stats", h.Stats)

	return nil
}

type statItem struct {
	Channel string `json:"channel"`
	Status  string `json:"status"`
	Count   int    `json:"count"`
}

type statsResponse struct {
	From      time.Time        `json:"from"`
	To        time.Time        `json:"to"`
	Buckets   []statItem       `json:"buckets"`
	Providers []provider.State `json:"providers"`
}

func (h *AdminHandler) ListConfigurations(c *fiber.Ctx) error {
	configurations, err := h.service.ListAll(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listConfigurationsResponse{
		Data: toConfigurationResponses(configurations),
	})
}

func (h *AdminHandler) QueryLogs(c *fiber.Ctx) error {
	page, pageSize, err := parsePageParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	query := repository.AttemptQuery{
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	if value := strings.TrimSpace(c.Query("configurationId")); value != "" {
		query.ConfigurationID = &value
	}
	if value := strings.TrimSpace(c.Query("ownerId")); value != "" {
		query.OwnerID = &value
	}
	status, err := parseAttemptStatusQuery(c.Query("status"))
	if err != nil {
		return toHTTPError(err)
	}
	query.Status = status

	attempts, total, err := h.service.QueryLogs(c.Context(), query)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listAttemptsResponse{
		Data: toAttemptResponses(attempts),
		Meta: listMeta{Page: page, PageSize: pageSize, Total: total},
	})
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return toHTTPError(err)
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return toHTTPError(err)
	}

	var fromValue, toValue time.Time
	if from != nil {
		fromValue = *from
	}
	if to != nil {
		toValue = *to
	}
	if toValue.IsZero() {
		toValue = time.Now().UTC()
	}
	if fromValue.IsZero() {
		fromValue = toValue.Add(-24 * time.Hour)
	}

	stats, err := h.service.Stats(c.Context(), fromValue, toValue)
	if err != nil {
		return toHTTPError(err)
	}

	buckets := make([]statItem, 0, len(stats))
	for _, stat := range stats {
		buckets = append(buckets, statItem{
			Channel: stat.Channel.String(),
			Status:  stat.Status.String(),
			Count:   stat.Count,
		})
	}

	return c.Status(fiber.StatusOK).JSON(statsResponse{
		From:      fromValue,
		To:        toValue,
		Buckets:   buckets,
		Providers: h.providers.States(),
	})
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}
