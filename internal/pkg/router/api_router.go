package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/velora-app/velora/app/controllers"
	"github.com/velora-app/velora/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	v1 := api.Group("/v1")
	orgs := v1.Group("/orgs/:orgId", middleware.OrgAPIKeyMiddleware())

	calendar := orgs.Group("/calendar")
	calendar.Get("/status", controllers.HandleCalendarStatus)
	calendar.Get("/connect", controllers.HandleCalendarConnect)
	calendar.Get("/calendars", controllers.HandleCalendarList)
	calendar.Put("/", controllers.HandleCalendarSelect)
	calendar.Post("/sync", controllers.HandleCalendarSync)
	calendar.Delete("/", controllers.HandleCalendarDisconnect)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
