package calendarsync

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/velora-app/velora/app/models"
)

// Busy-block hours substituted for all-day events, in the org's timezone.
const (
	allDayStartHour = 9
	allDayEndHour   = 17
)

// PullRange imports remote events in [from, to) into local appointments.
// Events carrying the platform back-reference update their own appointment;
// everything else becomes or refreshes a busy block keyed by the remote
// event id. Like push, failures land in the result rather than propagating.
func (s *Service) PullRange(ctx context.Context, orgID uint, from, to time.Time) SyncResult {
	res := SyncResult{Operation: "pull", OrganizationID: orgID}

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

	org, err := s.repo.GetOrganization(orgID)
	if err != nil {
		res.Err = err
		s.recordFailure(res)
		return res
	}

	client, err := s.clients(ctx, orgID)
	if err != nil {
		res.Err = err
		s.recordFailure(res)
		return res
	}

	events, err := client.ListEvents(ctx, settings.CalendarID, from, to)
	if err != nil {
		res.Err = err
		s.recordFailure(res)
		return res
	}

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			res.Err = err
			s.recordFailure(res)
			return res
		}
		if ev.Status == "cancelled" {
			continue
		}
		if ev.AppointmentRef != 0 {
			s.pullOwnEvent(orgID, settings.CalendarID, ev, &res)
		} else {
			s.pullBusyBlock(orgID, settings.CalendarID, ev, org, &res)
		}
	}

	if res.Err != nil {
		s.recordFailure(res)
		return res
	}
	s.recordSuccess(orgID)
	return res
}

// pullOwnEvent applies remote edits to a platform-originated appointment.
// The remote calendar wins on times; an event whose appointment no longer
// exists locally is left alone rather than resurrected.
func (s *Service) pullOwnEvent(orgID uint, calendarID string, ev RemoteEvent, res *SyncResult) {
	appt, err := s.repo.GetAppointment(orgID, ev.AppointmentRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			res.Unchanged++
			return
		}
		res.Err = err
		return
	}
	if appt.Status == models.AppointmentStatusCancelled {
		res.Unchanged++
		return
	}

	start, end := ev.Start, ev.End
	if ev.AllDay {
		// All-day on an own event is a remote reshape; keep local times.
		res.Unchanged++
		return
	}
	if appt.StartsAt.Equal(start) && appt.EndsAt.Equal(end) {
		res.Unchanged++
		return
	}

	appt.StartsAt = start
	appt.EndsAt = end
	appt.ExternalProvider = models.CalendarProviderGoogle
	appt.ExternalCalendarID = calendarID
	appt.ExternalEventID = ev.ID
	now := s.now().UTC()
	appt.SyncedAt = &now
	if err := s.repo.SaveAppointment(appt); err != nil {
		res.Err = err
		return
	}
	res.Updated++
}

// pullBusyBlock upserts a placeholder appointment for a foreign event so the
// booking engine treats the slot as taken.
func (s *Service) pullBusyBlock(orgID uint, calendarID string, ev RemoteEvent, org *models.Organization, res *SyncResult) {
	start, end := busySpan(ev, org)

	existing, err := s.repo.FindAppointmentByRemoteEvent(orgID, models.CalendarProviderGoogle, ev.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		res.Err = err
		return
	}

	now := s.now().UTC()
	if existing != nil {
		if existing.StartsAt.Equal(start) && existing.EndsAt.Equal(end) && existing.ServiceName == busyTitle(ev) {
			res.Unchanged++
			return
		}
		existing.StartsAt = start
		existing.EndsAt = end
		existing.ServiceName = busyTitle(ev)
		existing.SyncedAt = &now
		if err := s.repo.SaveAppointment(existing); err != nil {
			res.Err = err
			return
		}
		res.Updated++
		return
	}

	appt := &models.Appointment{
		OrganizationID:     orgID,
		ServiceName:        busyTitle(ev),
		StartsAt:           start,
		EndsAt:             end,
		Status:             models.AppointmentStatusScheduled,
		Source:             models.AppointmentSourceCalendarImport,
		ExternalProvider:   models.CalendarProviderGoogle,
		ExternalCalendarID: calendarID,
		ExternalEventID:    ev.ID,
		SyncedAt:           &now,
	}
	if err := s.repo.CreateAppointment(appt); err != nil {
		res.Err = err
		return
	}
	res.Created++
}

// busySpan normalizes the event span. All-day events block working hours in
// the organization's timezone instead of the full day.
func busySpan(ev RemoteEvent, org *models.Organization) (time.Time, time.Time) {
	if !ev.AllDay {
		return ev.Start, ev.End
	}
	loc := org.Location()
	day := ev.Start
	start := time.Date(day.Year(), day.Month(), day.Day(), allDayStartHour, 0, 0, 0, loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), allDayEndHour, 0, 0, 0, loc)
	return start, end
}

func busyTitle(ev RemoteEvent) string {
	if ev.Summary != "" {
		return ev.Summary
	}
	return "Busy"
}
