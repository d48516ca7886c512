package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fanflowhq/fanflow/internal/pkg/ledger"
	"github.com/fanflowhq/fanflow/internal/pkg/webhook"
)

// SignatureHeader carries the provider's HMAC digest of the raw body.
const SignatureHeader = "x-fanvue-signature"

// WebhookController exposes the webhook ingestion and observability routes.
type WebhookController struct {
	dispatcher *webhook.Dispatcher
	ledger     *ledger.Ledger
}

// NewWebhookController wires the controller to the dispatcher and ledger.
func NewWebhookController(dispatcher *webhook.Dispatcher, l *ledger.Ledger) *WebhookController {
	return &WebhookController{dispatcher: dispatcher, ledger: l}
}

// HandleFanvueWebhook receives provider events: verify, ack, process async.
func (wc *WebhookController) HandleFanvueWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get(SignatureHeader))

	ack, err := wc.dispatcher.Accept(rawBody, signature)
	if err != nil {
		return webhookErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(ack)
}

// HandleFanvueWebhookStatus is a readiness probe for webhook configuration.
func (wc *WebhookController) HandleFanvueWebhookStatus(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "ok",
		"message":   "Fanvue webhook endpoint is ready",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// HandlePPVWebhook receives PPV payment confirmations.
func (wc *WebhookController) HandlePPVWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get(SignatureHeader))

	ack, err := wc.dispatcher.AcceptPayment(rawBody, signature)
	if err != nil {
		return webhookErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "event": ack.Event})
}

// HandleWebhookStats returns event statistics, recent entries, and revenue
// aggregates for the dashboard.
func (wc *WebhookController) HandleWebhookStats(c *fiber.Ctx) error {
	period := ledger.ParsePeriod(c.Query("period", string(ledger.PeriodAll)))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"stats":        wc.ledger.Stats(),
		"recentEvents": wc.ledger.Recent(10),
		"revenueStats": wc.ledger.RevenueStats(period),
	})
}

func webhookErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, webhook.ErrSecretNotConfigured):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_not_configured"})
	case errors.Is(err, webhook.ErrMissingSignature):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing_signature"})
	case errors.Is(err, webhook.ErrInvalidSignature):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
}
