package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/velora-app/velora/app/controllers"
)

// HttpRouter holds the unauthenticated surface: provider webhooks, the OAuth
// return leg, and the health probe. Webhook authentication is the payload
// signature, not a session, so these stay outside the API group.
type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	// Voice providers deliver call events here. The rate limiter lives in
	// the handler so signature checks stay per-agent.
	app.Post("/webhooks/voice/:provider/:orgId", controllers.HandleVoiceWebhook)

	// Google redirects back here after consent; the state param carries the
	// org binding so no session is involved.
	app.Get("/calendar/google/callback", controllers.HandleCalendarOAuthCallback)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
