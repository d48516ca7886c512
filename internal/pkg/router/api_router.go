package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fanflowhq/fanflow/app/controllers"
	"github.com/fanflowhq/fanflow/internal/pkg/middleware"
)

// ApiRouter registers the webhook ingestion routes (open, signature
// protected) and the API-key protected dashboard routes.
type ApiRouter struct {
	webhooks *controllers.WebhookController
	scripts  *controllers.ScriptController
	apiKey   string
}

func NewApiRouter(webhooks *controllers.WebhookController, scripts *controllers.ScriptController, apiKey string) ApiRouter {
	return ApiRouter{webhooks: webhooks, scripts: scripts, apiKey: apiKey}
}

func (r ApiRouter) InstallRouter(app *fiber.App) {
	// Signature-verified webhook ingestion
	app.Post("/webhooks/fanvue", r.webhooks.HandleFanvueWebhook)
	app.Get("/webhooks/fanvue", r.webhooks.HandleFanvueWebhookStatus)
	app.Post("/webhooks/ppv", r.webhooks.HandlePPVWebhook)

	// Dashboard API
	api := app.Group("/api", middleware.APIKeyAuthMiddleware(r.apiKey))
	api.Get("/webhooks/stats", r.webhooks.HandleWebhookStats)
	api.Post("/scripts/validate", r.scripts.HandleValidateCommand)
	api.Post("/scripts/preview", r.scripts.HandlePreviewScript)
}
