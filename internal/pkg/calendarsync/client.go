package calendarsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrUpstreamUnavailable wraps provider API failures so callers can treat
// them uniformly: logged to the state tracker, swallowed on push/pull paths.
var ErrUpstreamUnavailable = errors.New("calendarsync: calendar provider unavailable")

// appointmentRefProperty is the private extended property marking an event as
// platform-originated. It carries the local appointment id and is the sole
// input to pull-sync classification, which is what prevents sync loops.
const appointmentRefProperty = "veloraAppointmentId"

// RemoteEvent is the provider-agnostic view of a remote calendar event.
type RemoteEvent struct {
	ID          string
	Summary     string
	Description string
	Status      string
	Start       time.Time
	End         time.Time
	AllDay      bool

	// AppointmentRef is the back-reference carried by platform-originated
	// events; zero for foreign events.
	AppointmentRef uint
}

// EventInput is the deterministic projection of a local appointment pushed to
// the remote calendar.
type EventInput struct {
	Summary        string
	Description    string
	Start          time.Time
	End            time.Time
	TimeZone       string
	AttendeeEmail  string
	AppointmentRef uint
}

// CalendarInfo describes a remote calendar for the settings picker.
type CalendarInfo struct {
	ID       string
	Summary  string
	TimeZone string
	Primary  bool
}

// Client is the remote calendar API surface used by push and pull sync.
type Client interface {
	ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]RemoteEvent, error)
	CreateEvent(ctx context.Context, calendarID string, in EventInput) (string, error)
	PatchEvent(ctx context.Context, calendarID, eventID string, in EventInput) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	ListCalendars(ctx context.Context) ([]CalendarInfo, error)
}

// googleClient implements Client against the Google Calendar API.
type googleClient struct {
	svc *calendar.Service
}

// NewGoogleClient builds a Client from an authenticated HTTP client issued by
// the vault.
func NewGoogleClient(ctx context.Context, httpClient *http.Client) (Client, error) {
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("calendarsync: failed to create calendar service: %w", err)
	}
	return &googleClient{svc: svc}, nil
}

func (c *googleClient) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]RemoteEvent, error) {
	call := c.svc.Events.List(calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)

	events, err := call.Do()
	if err != nil {
		return nil, upstreamErr("list events", err)
	}

	out := make([]RemoteEvent, 0, len(events.Items))
	for _, ev := range events.Items {
		out = append(out, toRemoteEvent(ev))
	}
	return out, nil
}

func (c *googleClient) CreateEvent(ctx context.Context, calendarID string, in EventInput) (string, error) {
	created, err := c.svc.Events.Insert(calendarID, toGoogleEvent(in)).Context(ctx).Do()
	if err != nil {
		return "", upstreamErr("create event", err)
	}
	return created.Id, nil
}

func (c *googleClient) PatchEvent(ctx context.Context, calendarID, eventID string, in EventInput) error {
	_, err := c.svc.Events.Patch(calendarID, eventID, toGoogleEvent(in)).Context(ctx).Do()
	if err != nil {
		return upstreamErr("patch event", err)
	}
	return nil
}

func (c *googleClient) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		// Already gone remotely is success for a delete.
		if isGoneErr(err) {
			return nil
		}
		return upstreamErr("delete event", err)
	}
	return nil
}

func (c *googleClient) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	list, err := c.svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, upstreamErr("list calendars", err)
	}

	out := make([]CalendarInfo, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, CalendarInfo{
			ID:       item.Id,
			Summary:  item.Summary,
			TimeZone: item.TimeZone,
			Primary:  item.Primary,
		})
	}
	return out, nil
}

func toGoogleEvent(in EventInput) *calendar.Event {
	tz := in.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	ev := &calendar.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Start: &calendar.EventDateTime{
			DateTime: in.Start.Format(time.RFC3339),
			TimeZone: tz,
		},
		End: &calendar.EventDateTime{
			DateTime: in.End.Format(time.RFC3339),
			TimeZone: tz,
		},
	}
	if in.AttendeeEmail != "" {
		ev.Attendees = []*calendar.EventAttendee{{Email: in.AttendeeEmail}}
	}
	if in.AppointmentRef != 0 {
		ev.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{
				appointmentRefProperty: strconv.FormatUint(uint64(in.AppointmentRef), 10),
			},
		}
	}
	return ev
}

func toRemoteEvent(ev *calendar.Event) RemoteEvent {
	out := RemoteEvent{
		ID:          ev.Id,
		Summary:     ev.Summary,
		Description: ev.Description,
		Status:      ev.Status,
	}

	if ev.Start != nil {
		if ev.Start.DateTime != "" {
			out.Start, _ = time.Parse(time.RFC3339, ev.Start.DateTime)
		} else if ev.Start.Date != "" {
			out.AllDay = true
			out.Start, _ = time.Parse("2006-01-02", ev.Start.Date)
		}
	}
	if ev.End != nil {
		if ev.End.DateTime != "" {
			out.End, _ = time.Parse(time.RFC3339, ev.End.DateTime)
		} else if ev.End.Date != "" {
			out.End, _ = time.Parse("2006-01-02", ev.End.Date)
		}
	}

	if ev.ExtendedProperties != nil && ev.ExtendedProperties.Private != nil {
		if raw, ok := ev.ExtendedProperties.Private[appointmentRefProperty]; ok {
			if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
				out.AppointmentRef = uint(id)
			}
		}
	}
	return out
}

func upstreamErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, op, err)
}

func isGoneErr(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}
