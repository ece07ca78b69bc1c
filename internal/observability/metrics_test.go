package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsWorkerCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncDeliverySent("WEBHOOK")
	metrics.IncDeliveryFailed("webhook", "permanent_error")
	metrics.ObserveDeliverySendDuration("webhook", 120*time.Millisecond)
	metrics.IncWorkerInFlight("webhook")
	metrics.DecWorkerInFlight("webhook")
	metrics.IncRetryScheduled("webhook")
	metrics.IncRateLimited("webhook")

	if got := testutil.ToFloat64(metrics.deliveriesSentTotal.WithLabelValues("webhook")); got != 1 {
		t.Fatalf("deliveries_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deliveriesFailedTotal.WithLabelValues("webhook", "permanent_error")); got != 1 {
		t.Fatalf("deliveries_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retryScheduledTotal.WithLabelValues("webhook")); got != 1 {
		t.Fatalf("retry_scheduled_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.rateLimitedTotal.WithLabelValues("webhook")); got != 1 {
		t.Fatalf("rate_limited_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.workerInflight.WithLabelValues("webhook")); got != 0 {
		t.Fatalf("worker_inflight = %v, want 0", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
