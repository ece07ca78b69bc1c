package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/basilakis/kai-delivery/internal/domain"
	"github.com/basilakis/kai-delivery/internal/transport"
)

type stubDeliveryService struct {
	ingestEventFn        func(ctx context.Context, event *domain.Event) ([]domain.Delivery, error)
	createNotificationFn func(ctx context.Context, target *domain.NotificationTarget) ([]domain.Delivery, error)
	getDeliveryFn        func(ctx context.Context, id string) (*domain.Delivery, error)
}

func (s *stubDeliveryService) IngestEvent(ctx context.Context, event *domain.Event) ([]domain.Delivery, error) {
	if s.ingestEventFn != nil {
		return s.ingestEventFn(ctx, event)
	}
	return nil, errors.New("not implemented")
}

func (s *stubDeliveryService) CreateNotification(ctx context.Context, target *domain.NotificationTarget) ([]domain.Delivery, error) {
	if s.createNotificationFn != nil {
		return s.createNotificationFn(ctx, target)
	}
	return nil, errors.New("not implemented")
}

func (s *stubDeliveryService) GetDelivery(ctx context.Context, id string) (*domain.Delivery, error) {
	if s.getDeliveryFn != nil {
		return s.getDeliveryFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func newDeliveryTestApp(t *testing.T, svc DeliveryService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterDeliveryRoutes(app, svc); err != nil {
		t.Fatalf("RegisterDeliveryRoutes() error = %v", err)
	}

	return app
}

func TestDeliveryHandler_IngestEvent(t *testing.T) {
	t.Parallel()

	svc := &stubDeliveryService{
		ingestEventFn: func(ctx context.Context, event *domain.Event) ([]domain.Delivery, error) {
			if event.Type != "order.created" {
				t.Fatalf("event type = %s", event.Type)
			}
			event.ID = "evt-1"
			return []domain.Delivery{
				{ID: "d1", CorrelationID: "evt-1", Channel: domain.ChannelWebhook, Status: domain.DeliveryStatusPending},
				{ID: "d2", CorrelationID: "evt-1", Channel: domain.ChannelWebhook, Status: domain.DeliveryStatusPending},
			}, nil
		},
	}
	app := newDeliveryTestApp(t, svc)

	body := `{"type":"order.created","data":{"orderId":42}}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/events", body, nil)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(respBody))
	}

	var accepted ingestEventResponse
	if err := json.Unmarshal(respBody, &accepted); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if accepted.EventID != "evt-1" {
		t.Fatalf("eventId = %q", accepted.EventID)
	}
	if len(accepted.Deliveries) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(accepted.Deliveries))
	}
}

func TestDeliveryHandler_IngestEventInvalidType(t *testing.T) {
	t.Parallel()

	app := newDeliveryTestApp(t, &stubDeliveryService{})

	body := `{"type":"NOT-A-TYPE","data":{}}`
	resp, _ := performRequest(t, app, http.MethodPost, "/v1/events", body, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDeliveryHandler_CreateNotification(t *testing.T) {
	t.Parallel()

	svc := &stubDeliveryService{
		createNotificationFn: func(ctx context.Context, target *domain.NotificationTarget) ([]domain.Delivery, error) {
			if err := target.Validate(); err != nil {
				return nil, err
			}
			deliveries := make([]domain.Delivery, 0, len(target.Addresses))
			for i, address := range target.Addresses {
				deliveries = append(deliveries, domain.Delivery{
					ID:            "d" + string(rune('1'+i)),
					CorrelationID: "corr-1",
					Channel:       target.Channel,
					Recipient:     address,
					Status:        domain.DeliveryStatusPending,
				})
			}
			return deliveries, nil
		},
	}
	app := newDeliveryTestApp(t, svc)

	body := `{"channel":"email","addresses":["a@example.com","b@example.com"],"subject":"hi","body":"hello"}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/notifications", body, nil)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(respBody))
	}

	var accepted createNotificationResponse
	if err := json.Unmarshal(respBody, &accepted); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if accepted.CorrelationID != "corr-1" {
		t.Fatalf("correlationId = %q", accepted.CorrelationID)
	}
	if len(accepted.Deliveries) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(accepted.Deliveries))
	}
}

func TestDeliveryHandler_CreateNotificationInvalidChannel(t *testing.T) {
	t.Parallel()

	app := newDeliveryTestApp(t, &stubDeliveryService{})

	body := `{"channel":"carrier-pigeon","addresses":["a@example.com"],"body":"x"}`
	resp, _ := performRequest(t, app, http.MethodPost, "/v1/notifications", body, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDeliveryHandler_GetDelivery(t *testing.T) {
	t.Parallel()

	svc := &stubDeliveryService{
		getDeliveryFn: func(ctx context.Context, id string) (*domain.Delivery, error) {
			return &domain.Delivery{ID: id, Channel: domain.ChannelWebhook, Status: domain.DeliveryStatusSucceeded}, nil
		},
	}
	app := newDeliveryTestApp(t, svc)

	resp, respBody := performRequest(t, app, http.MethodGet, "/v1/deliveries/d1", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var delivery deliveryResponse
	if err := json.Unmarshal(respBody, &delivery); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if delivery.ID != "d1" || delivery.Status != domain.DeliveryStatusSucceeded.String() {
		t.Fatalf("unexpected delivery: %+v", delivery)
	}
}

func TestDeliveryHandler_GetDeliveryNotFound(t *testing.T) {
	t.Parallel()

	app := newDeliveryTestApp(t, &stubDeliveryService{})

	resp, _ := performRequest(t, app, http.MethodGet, "/v1/deliveries/missing", "", nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
