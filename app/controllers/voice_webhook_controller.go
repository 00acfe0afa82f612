package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/velora-app/velora/app/models"
	"github.com/velora-app/velora/internal/pkg/database"
	"github.com/velora-app/velora/internal/pkg/syncstate"
	"github.com/velora-app/velora/internal/pkg/voicehook"
)

const voiceWebhookTimeout = 15 * time.Second

var voiceRateLimiter = voicehook.NewRateLimiter()

// HandleVoiceWebhook ingests a call event from a voice provider.
//
// POST /webhooks/voice/:provider/:orgId
//
// Order matters: the rate limiter and payload normalization run before any
// database access, agent resolution supplies the signing secret, and only a
// verified delivery reaches the reconciliation transaction. Providers retry
// on 5xx, so persistence failures return 500 while permanently bad input
// returns 4xx.
func HandleVoiceWebhook(c *fiber.Ctx) error {
	if !voiceRateLimiter.Allow(clientIP(c)) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
	}

	provider := strings.ToLower(strings.TrimSpace(c.Params("provider")))
	if provider != models.VoiceProviderRetell && provider != models.VoiceProviderVapi {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_provider"})
	}

	orgID, err := orgIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_organization"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	headers := map[string]string{
		"agent-id": firstHeaderValue(c,
			fmt.Sprintf("X-%s-Agent-Id", provider),
			"X-Agent-Id",
		),
	}

	event, err := voicehook.Normalize(provider, rawBody, headers)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	svc := voicehook.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(c.UserContext(), voiceWebhookTimeout)
	defer cancel()

	agent, err := svc.ResolveAgent(ctx, orgID, provider, event.AgentID)
	if err != nil {
		if errors.Is(err, voicehook.ErrUnknownAgent) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unknown_agent"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "agent_lookup_failed"})
	}

	signature := firstHeaderValue(c,
		fmt.Sprintf("X-%s-Signature", provider),
		"X-Signature",
	)
	timestamp := firstHeaderValue(c,
		fmt.Sprintf("X-%s-Timestamp", provider),
		"X-Timestamp",
	)
	signatureValid := voicehook.VerifyAgentSignature(rawBody, signature, timestamp, agent)

	fresh, stored, err := svc.RecordDelivery(ctx, orgID, event, signatureValid)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !fresh {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if !signatureValid {
		if voicehook.SignatureEnforced() {
			_ = svc.MarkProcessed(ctx, stored.ID, voicehook.ErrInvalidSignature)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}
		log.Warnf("[VoiceWebhook] signature mismatch for org %d provider %s, enforcement disabled, continuing", orgID, provider)
	}

	if err := svc.Reconcile(ctx, orgID, event); err != nil {
		_ = svc.MarkProcessed(ctx, stored.ID, err)
		recordWebhookFailure(orgID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconcile_failed"})
	}

	if err := svc.MarkProcessed(ctx, stored.ID, nil); err != nil {
		log.Warnf("[VoiceWebhook] failed to mark event %d processed: %v", stored.ID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func recordWebhookFailure(orgID uint, cause error) {
	log.Errorf("[VoiceWebhook] reconcile failed for org %d: %v", orgID, cause)
	tracker := syncstate.NewTrackerFromDB(database.GetDB())
	if err := tracker.RecordWebhookError(orgID, cause.Error()); err != nil {
		log.Warnf("[VoiceWebhook] failed to record webhook error for org %d: %v", orgID, err)
	}
}
