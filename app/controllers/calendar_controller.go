package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/velora-app/velora/app/models"
	"github.com/velora-app/velora/internal/pkg/calendarsync"
	"github.com/velora-app/velora/internal/pkg/database"
	"github.com/velora-app/velora/internal/pkg/syncstate"
	"github.com/velora-app/velora/internal/pkg/vault"
)

const calendarRequestTimeout = 20 * time.Second

func calendarService() (*calendarsync.Service, *vault.Service, *syncstate.Tracker) {
	db := database.GetDB()
	v := vault.NewServiceFromDB(db)
	tracker := syncstate.NewTrackerFromDB(db)
	svc := calendarsync.NewService(calendarsync.NewRepository(db), tracker, v)
	return svc, v, tracker
}

// HandleCalendarStatus reports the org's calendar connection state.
//
// GET /api/v1/orgs/:orgId/calendar/status
func HandleCalendarStatus(c *fiber.Ctx) error {
	orgID, err := orgIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_organization"})
	}

	svc, _, _ := calendarService()
	ctx, cancel := context.WithTimeout(c.UserContext(), calendarRequestTimeout)
	defer cancel()

	status, err := svc.Status(ctx, orgID)
	if err != nil {
		log.Errorf("[Calendar] status failed for org %d: %v", orgID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "status_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(status)
}

// HandleCalendarConnect starts the Google OAuth consent flow for an org.
//
// GET /api/v1/orgs/:orgId/calendar/connect
func HandleCalendarConnect(c *fiber.Ctx) error {
	orgID, err := orgIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_organization"})
	}

	_, v, _ := calendarService()
	url, err := v.StartAuthURL(orgID)
	if err != nil {
		log.Errorf("[Calendar] failed to start oauth for org %d: %v", orgID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "oauth_start_failed"})
	}
	return c.Redirect(url, fiber.StatusSeeOther)
}

// HandleCalendarOAuthCallback finishes the consent flow. Google redirects
// here; the state parameter carries the org binding.
//
// GET /calendar/google/callback
func HandleCalendarOAuthCallback(c *fiber.Ctx) error {
	if oauthErr := strings.TrimSpace(c.Query("error")); oauthErr != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "oauth_denied", "detail": oauthErr})
	}
	state := strings.TrimSpace(c.Query("state"))
	code := strings.TrimSpace(c.Query("code"))
	if state == "" || code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_oauth_params"})
	}

	_, v, tracker := calendarService()
	ctx, cancel := context.WithTimeout(c.UserContext(), calendarRequestTimeout)
	defer cancel()

	orgID, cred, err := v.HandleCallback(ctx, state, code)
	if err != nil {
		log.Errorf("[Calendar] oauth callback failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "oauth_exchange_failed"})
	}
	if err := tracker.MarkConnected(orgID); err != nil {
		log.Errorf("[Calendar] failed to mark org %d connected: %v", orgID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settings_update_failed"})
	}

	log.Infof("[Calendar] org %d connected Google Calendar as %s", orgID, cred.AccountEmail)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":            true,
		"account_email": cred.AccountEmail,
	})
}

// HandleCalendarList returns the connected account's writable calendars.
//
// GET /api/v1/orgs/:orgId/calendar/calendars
func HandleCalendarList(c *fiber.Ctx) error {
	orgID, err := orgIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_organization"})
	}

	svc, _, _ := calendarService()
	ctx, cancel := context.WithTimeout(c.UserContext(), calendarRequestTimeout)
	defer cancel()

	calendars, err := svc.ListCalendars(ctx, orgID)
	if err != nil {
		if errors.Is(err, vault.ErrNotConnected) || errors.Is(err, vault.ErrAuthExpired) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_connected"})
		}
		log.Errorf("[Calendar] list calendars failed for org %d: %v", orgID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"calendars": calendars})
}

type calendarSelectRequest struct {
	CalendarID string `json:"calendar_id" validate:"required"`
}

// HandleCalendarSelect picks the calendar to sync against and enables sync.
//
// PUT /api/v1/orgs/:orgId/calendar
func HandleCalendarSelect(c *fiber.Ctx) error {
	orgID, err := orgIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_organization"})
	}

	var req calendarSelectRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.CalendarID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "calendar_id_required"})
	}

	_, _, tracker := calendarService()
	if err := tracker.SetCalendar(orgID, strings.TrimSpace(req.CalendarID)); err != nil {
		log.Errorf("[Calendar] failed to set calendar for org %d: %v", orgID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settings_update_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleCalendarSync triggers an on-demand pull over the standard window.
//
// POST /api/v1/orgs/:orgId/calendar/sync
func HandleCalendarSync(c *fiber.Ctx) error {
	orgID, err := orgIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_organization"})
	}

	svc, _, _ := calendarService()
	ctx, cancel := context.WithTimeout(c.UserContext(), calendarRequestTimeout)
	defer cancel()

	now := time.Now()
	res := svc.PullRange(ctx, orgID, now.Add(-24*time.Hour), now.Add(60*24*time.Hour))
	if res.Skipped {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "sync_not_enabled"})
	}
	if res.Failed() {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "sync_failed", "detail": res.Err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":        true,
		"created":   res.Created,
		"updated":   res.Updated,
		"unchanged": res.Unchanged,
	})
}

// HandleCalendarDisconnect drops the stored credential and disables sync.
// Imported busy blocks are kept; they expire naturally as time passes.
//
// DELETE /api/v1/orgs/:orgId/calendar
func HandleCalendarDisconnect(c *fiber.Ctx) error {
	orgID, err := orgIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_organization"})
	}

	_, v, tracker := calendarService()
	ctx, cancel := context.WithTimeout(c.UserContext(), calendarRequestTimeout)
	defer cancel()

	if err := v.Disconnect(ctx, orgID, models.CalendarProviderGoogle); err != nil {
		log.Errorf("[Calendar] disconnect failed for org %d: %v", orgID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "disconnect_failed"})
	}
	if err := tracker.MarkDisconnected(orgID); err != nil {
		log.Errorf("[Calendar] failed to mark org %d disconnected: %v", orgID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settings_update_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
