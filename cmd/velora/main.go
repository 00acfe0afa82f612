package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/velora-app/velora/internal/pkg/cache"
	"github.com/velora-app/velora/internal/pkg/database"
	"github.com/velora-app/velora/internal/pkg/env"
	"github.com/velora-app/velora/internal/pkg/router"
	"github.com/velora-app/velora/internal/pkg/voicehook"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Surface the enforcement state once at startup so a misconfigured
	// production deploy is visible in the boot log.
	if !voicehook.SignatureEnforced() {
		log.Println("[Velora] WARNING: webhook signature enforcement is DISABLED")
	}

	app := fiber.New(fiber.Config{
		AppName:   "Velora",
		BodyLimit: 1 << 20,
	})

	app.Use(recover.New(), logger.New())

	router.InstallRouter(app)

	return app
}
