package calendarsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/velora-app/velora/app/models"
)

// PushAppointment mirrors one local appointment onto the organization's
// connected calendar. Booking flows call this after every write; a calendar
// outage must never fail the booking, so errors are captured in the result
// and mirrored onto the settings row instead of being returned.
func (s *Service) PushAppointment(ctx context.Context, orgID, appointmentID uint) SyncResult {
	res := SyncResult{Operation: "push", OrganizationID: orgID}

	settings, err := s.tracker.Settings(orgID)
	if err != nil {
		res.Err = err
		return res
	}
	if !settings.Connected || !settings.SyncEnabled || settings.CalendarID == "" {
		res.Skipped = true
		return res
	}
	res.CalendarID = settings.CalendarID

	appt, err := s.repo.GetAppointment(orgID, appointmentID)
	if err != nil {
		res.Err = err
		s.recordFailure(res)
		return res
	}

	// Imported busy blocks already live on the remote calendar; pushing them
	// back would duplicate the foreign event.
	if appt.IsBusyBlock() {
		res.Skipped = true
		return res
	}

	client, err := s.clients(ctx, orgID)
	if err != nil {
		res.Err = err
		s.recordFailure(res)
		return res
	}

	if appt.Status == models.AppointmentStatusCancelled {
		if appt.ExternalEventID == "" {
			res.Skipped = true
			return res
		}
		if err := client.DeleteEvent(ctx, settings.CalendarID, appt.ExternalEventID); err != nil {
			res.Err = err
			s.recordFailure(res)
			return res
		}
		appt.ExternalProvider = ""
		appt.ExternalCalendarID = ""
		appt.ExternalEventID = ""
		now := s.now().UTC()
		appt.SyncedAt = &now
		if err := s.repo.SaveAppointment(appt); err != nil {
			res.Err = err
			s.recordFailure(res)
			return res
		}
		res.Updated = 1
		s.recordSuccess(orgID)
		return res
	}

	org, err := s.repo.GetOrganization(orgID)
	if err != nil {
		res.Err = err
		s.recordFailure(res)
		return res
	}
	input := buildEventInput(appt, org)

	if appt.ExternalEventID != "" {
		if err := client.PatchEvent(ctx, settings.CalendarID, appt.ExternalEventID, input); err != nil {
			res.Err = err
			s.recordFailure(res)
			return res
		}
		res.Updated = 1
	} else {
		eventID, err := client.CreateEvent(ctx, settings.CalendarID, input)
		if err != nil {
			res.Err = err
			s.recordFailure(res)
			return res
		}
		appt.ExternalProvider = models.CalendarProviderGoogle
		appt.ExternalCalendarID = settings.CalendarID
		appt.ExternalEventID = eventID
		res.Created = 1
	}

	now := s.now().UTC()
	appt.SyncedAt = &now
	if err := s.repo.SaveAppointment(appt); err != nil {
		res.Err = err
		s.recordFailure(res)
		return res
	}

	s.recordSuccess(orgID)
	return res
}

// buildEventInput projects the appointment into its remote representation.
// The projection is deterministic so repeated pushes of an unchanged
// appointment produce identical events.
func buildEventInput(appt *models.Appointment, org *models.Organization) EventInput {
	summary := appt.ServiceName
	if appt.CustomerName != "" {
		if summary != "" {
			summary = fmt.Sprintf("%s - %s", summary, appt.CustomerName)
		} else {
			summary = appt.CustomerName
		}
	}
	if summary == "" {
		summary = "Appointment"
	}

	var desc strings.Builder
	if appt.CustomerPhone != "" {
		fmt.Fprintf(&desc, "Phone: %s\n", appt.CustomerPhone)
	}
	if appt.Notes != "" {
		desc.WriteString(appt.Notes)
	}

	loc := org.Location()
	return EventInput{
		Summary:        summary,
		Description:    desc.String(),
		Start:          appt.StartsAt.In(loc),
		End:            appt.EndsAt.In(loc),
		TimeZone:       org.Timezone,
		AttendeeEmail:  appt.CustomerEmail,
		AppointmentRef: appt.ID,
	}
}

func (s *Service) recordSuccess(orgID uint) {
	if err := s.tracker.RecordSyncSuccess(orgID, s.now()); err != nil {
		log.Warnf("[CalendarSync] failed to record sync success for org %d: %v", orgID, err)
	}
}

func (s *Service) recordFailure(res SyncResult) {
	log.Warnf("[CalendarSync] %s failed for org %d: %v", res.Operation, res.OrganizationID, res.Err)
	if err := s.tracker.RecordSyncError(res.OrganizationID, res.Err.Error()); err != nil {
		log.Warnf("[CalendarSync] failed to record sync error for org %d: %v", res.OrganizationID, err)
	}
}
