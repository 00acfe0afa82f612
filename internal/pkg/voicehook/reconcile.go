package voicehook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/velora-app/velora/app/models"
)

// Service merges normalized call events into local state exactly once.
type Service struct {
	repo Repository
}

// NewService creates a webhook service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a webhook service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// ResolveAgent returns the active trust record for the org/agent pair. It
// runs before signature verification because it supplies the shared secret.
// Absence or inactivity is a hard rejection.
func (s *Service) ResolveAgent(ctx context.Context, orgID uint, provider, agentID string) (*models.VoiceAgent, error) {
	_ = ctx
	agent, err := s.repo.GetActiveAgent(orgID, provider, strings.TrimSpace(agentID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownAgent
		}
		return nil, err
	}
	return agent, nil
}

// RecordDelivery persists the raw payload for audit and deduplicates
// redeliveries. Events without a provider-assigned id are keyed by a payload
// hash, so replaying a byte-identical delivery is recognized as a duplicate
// while an updated payload for the same call is processed again.
// Returns (fresh, event): fresh is false when this exact delivery already
// completed successfully.
func (s *Service) RecordDelivery(ctx context.Context, orgID uint, ev *NormalizedCallEvent, signatureValid bool) (bool, *models.VoiceWebhookEvent, error) {
	_ = ctx
	eventID := strings.TrimSpace(ev.EventID)
	if eventID == "" {
		sum := sha256.Sum256(ev.RawPayload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	created, stored, err := s.repo.CreateWebhookEventIfNotExists(&models.VoiceWebhookEvent{
		OrganizationID:  orgID,
		Provider:        ev.Provider,
		ProviderEventID: eventID,
		PayloadJSON:     string(ev.RawPayload),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		return false, nil, err
	}
	if created {
		return true, stored, nil
	}
	// A previously failed delivery is retried; a completed one is a no-op.
	if stored.ProcessedAt != nil && stored.ProcessingError == "" {
		return false, stored, nil
	}
	return true, stored, nil
}

// MarkProcessed stamps the audit row with the processing result.
func (s *Service) MarkProcessed(ctx context.Context, eventID uint, processingErr error) error {
	_ = ctx
	if eventID == 0 {
		return errors.New("voicehook: webhook event id is required")
	}
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(eventID, msg)
}

// Reconcile merges the event into local entities inside one transaction:
// customer match/patch, appointment linkage, idempotent call-log upsert.
// Any step failing aborts the whole transaction; the caller records the
// per-org webhook error note and returns 5xx so the provider retries.
func (s *Service) Reconcile(ctx context.Context, orgID uint, ev *NormalizedCallEvent) error {
	if ev == nil || ev.CallID == "" || ev.AgentID == "" {
		return ErrMalformedPayload
	}

	return s.repo.InTransaction(ctx, func(tx TxRepository) error {
		customer, err := s.reconcileCustomer(tx, orgID, ev)
		if err != nil {
			return fmt.Errorf("customer reconciliation: %w", err)
		}

		appointmentID, err := s.reconcileAppointment(tx, orgID, ev, customer)
		if err != nil {
			return fmt.Errorf("appointment linkage: %w", err)
		}

		cl := &models.CallLog{
			OrganizationID: orgID,
			Provider:       ev.Provider,
			ProviderCallID: ev.CallID,
			AgentID:        ev.AgentID,
			FromNumber:     ev.FromNumber,
			ToNumber:       ev.ToNumber,
			CallerName:     ev.CallerName,
			StartedAt:      ev.StartedAt,
			EndedAt:        ev.EndedAt,
			Outcome:        ev.Outcome,
			Transcript:     ev.Transcript,
			RecordingURL:   ev.RecordingURL,
			Summary:        ev.Summary,
			RawPayloadJSON: string(ev.RawPayload),
		}
		if customer != nil {
			cl.CustomerID = &customer.ID
		}
		if appointmentID != 0 {
			cl.AppointmentID = &appointmentID
		}
		if ev.EndedAt != nil && ev.EndedAt.After(ev.StartedAt) {
			cl.DurationSeconds = int(ev.EndedAt.Sub(ev.StartedAt).Seconds())
		}
		if err := tx.UpsertCallLog(cl); err != nil {
			return fmt.Errorf("call log upsert: %w", err)
		}

		// The client may have gone away; do not commit side effects for an
		// aborted request.
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	})
}

// reconcileCustomer matches by normalized phone. Known data is never
// downgraded to empty: name/email are patched only with non-empty incoming
// values. A new customer is created only when the event carries a name.
func (s *Service) reconcileCustomer(tx TxRepository, orgID uint, ev *NormalizedCallEvent) (*models.Customer, error) {
	if ev.FromNumber == "" {
		return nil, nil
	}

	customer, err := tx.FindCustomerByPhone(orgID, ev.FromNumber)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if strings.TrimSpace(ev.CallerName) == "" {
			return nil, nil
		}
		customer = &models.Customer{
			OrganizationID: orgID,
			Phone:          ev.FromNumber,
			Name:           strings.TrimSpace(ev.CallerName),
			Email:          strings.TrimSpace(ev.CallerEmail),
		}
		if err := tx.CreateCustomer(customer); err != nil {
			return nil, err
		}
		return customer, nil
	}

	changed := false
	if name := strings.TrimSpace(ev.CallerName); name != "" && name != customer.Name {
		customer.Name = name
		changed = true
	}
	if email := strings.TrimSpace(ev.CallerEmail); email != "" && email != customer.Email {
		customer.Email = email
		changed = true
	}
	if changed {
		if err := tx.SaveCustomer(customer); err != nil {
			return nil, err
		}
	}
	return customer, nil
}

// reconcileAppointment verifies an event-referenced appointment belongs to
// the org and, when the resolved customer differs, updates the appointment's
// customer and contact fields last-write-wins.
func (s *Service) reconcileAppointment(tx TxRepository, orgID uint, ev *NormalizedCallEvent, customer *models.Customer) (uint, error) {
	if ev.AppointmentID == 0 {
		return 0, nil
	}

	appt, err := tx.GetAppointment(orgID, ev.AppointmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Reference to a foreign or deleted appointment: ignore the link.
			return 0, nil
		}
		return 0, err
	}

	if customer != nil && (appt.CustomerID == nil || *appt.CustomerID != customer.ID) {
		appt.CustomerID = &customer.ID
		appt.CustomerName = customer.Name
		appt.CustomerPhone = customer.Phone
		appt.CustomerEmail = customer.Email
		if err := tx.SaveAppointment(appt); err != nil {
			return 0, err
		}
	}
	return appt.ID, nil
}
