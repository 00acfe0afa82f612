package voicehook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/velora-app/velora/app/models"
)

// memRepo implements Repository and TxRepository in memory. The transaction
// runner applies changes directly; abort semantics are covered by asserting
// that failed reconciles leave no call log behind.
type memRepo struct {
	agents       []models.VoiceAgent
	customers    []models.Customer
	appointments []models.Appointment
	callLogs     []models.CallLog
	events       []models.VoiceWebhookEvent
	nextID       uint
}

func newMemRepo() *memRepo {
	return &memRepo{nextID: 1}
}

func (r *memRepo) id() uint {
	id := r.nextID
	r.nextID++
	return id
}

func (r *memRepo) GetActiveAgent(orgID uint, provider, agentID string) (*models.VoiceAgent, error) {
	for i := range r.agents {
		a := &r.agents[i]
		if a.OrganizationID == orgID && a.Provider == provider && a.AgentID == agentID && a.IsActive {
			return a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) CreateWebhookEventIfNotExists(event *models.VoiceWebhookEvent) (bool, *models.VoiceWebhookEvent, error) {
	for i := range r.events {
		e := &r.events[i]
		if e.Provider == event.Provider && e.ProviderEventID == event.ProviderEventID {
			return false, e, nil
		}
	}
	event.ID = r.id()
	r.events = append(r.events, *event)
	return true, &r.events[len(r.events)-1], nil
}

func (r *memRepo) MarkWebhookProcessed(id uint, processingError string) error {
	for i := range r.events {
		if r.events[i].ID == id {
			now := time.Now()
			r.events[i].ProcessedAt = &now
			r.events[i].ProcessingError = processingError
		}
	}
	return nil
}

func (r *memRepo) InTransaction(ctx context.Context, fn func(tx TxRepository) error) error {
	_ = ctx
	return fn(r)
}

func (r *memRepo) FindCustomerByPhone(orgID uint, normalizedPhone string) (*models.Customer, error) {
	for i := range r.customers {
		c := &r.customers[i]
		if c.OrganizationID == orgID && c.Phone == normalizedPhone {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) CreateCustomer(c *models.Customer) error {
	c.ID = r.id()
	r.customers = append(r.customers, *c)
	return nil
}

func (r *memRepo) SaveCustomer(c *models.Customer) error {
	for i := range r.customers {
		if r.customers[i].ID == c.ID {
			r.customers[i] = *c
		}
	}
	return nil
}

func (r *memRepo) GetAppointment(orgID, appointmentID uint) (*models.Appointment, error) {
	for i := range r.appointments {
		a := &r.appointments[i]
		if a.ID == appointmentID && a.OrganizationID == orgID {
			return a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) SaveAppointment(a *models.Appointment) error {
	for i := range r.appointments {
		if r.appointments[i].ID == a.ID {
			r.appointments[i] = *a
		}
	}
	return nil
}

func (r *memRepo) UpsertCallLog(cl *models.CallLog) error {
	for i := range r.callLogs {
		existing := &r.callLogs[i]
		if existing.OrganizationID == cl.OrganizationID && existing.Provider == cl.Provider && existing.ProviderCallID == cl.ProviderCallID {
			cl.ID = existing.ID
			r.callLogs[i] = *cl
			return nil
		}
	}
	cl.ID = r.id()
	r.callLogs = append(r.callLogs, *cl)
	return nil
}

func normalizedEvent(callID, outcome string) *NormalizedCallEvent {
	return &NormalizedCallEvent{
		Provider:   models.VoiceProviderRetell,
		AgentID:    "A1",
		CallID:     callID,
		StartedAt:  time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		FromNumber: "+15550100199",
		CallerName: "Ada Lovelace",
		Outcome:    outcome,
		RawPayload: []byte(`{"call_id":"` + callID + `"}`),
	}
}

func TestReconcile_IdempotentUpsertByCallID(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	ev := normalizedEvent("C1", models.CallOutcomeNoAnswer)
	assert.NoError(t, svc.Reconcile(ctx, 1, ev))
	assert.NoError(t, svc.Reconcile(ctx, 1, ev))
	assert.NoError(t, svc.Reconcile(ctx, 1, ev))

	assert.Len(t, repo.callLogs, 1, "replayed delivery must not duplicate the call log")
	assert.Equal(t, models.CallOutcomeNoAnswer, repo.callLogs[0].Outcome)

	// A later delivery for the same call updates in place.
	ev2 := normalizedEvent("C1", models.CallOutcomeCompleted)
	ended := ev2.StartedAt.Add(3 * time.Minute)
	ev2.EndedAt = &ended
	assert.NoError(t, svc.Reconcile(ctx, 1, ev2))
	assert.Len(t, repo.callLogs, 1)
	assert.Equal(t, models.CallOutcomeCompleted, repo.callLogs[0].Outcome)
	assert.Equal(t, 180, repo.callLogs[0].DurationSeconds)
}

func TestReconcile_CreatesCustomerWhenNamePresent(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	assert.NoError(t, svc.Reconcile(context.Background(), 1, normalizedEvent("C1", models.CallOutcomeCompleted)))

	assert.Len(t, repo.customers, 1)
	assert.Equal(t, "Ada Lovelace", repo.customers[0].Name)
	assert.Equal(t, "+15550100199", repo.customers[0].Phone)
	if assert.NotNil(t, repo.callLogs[0].CustomerID) {
		assert.Equal(t, repo.customers[0].ID, *repo.callLogs[0].CustomerID)
	}
}

func TestReconcile_NoCustomerWithoutName(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	ev := normalizedEvent("C1", models.CallOutcomeCompleted)
	ev.CallerName = ""
	assert.NoError(t, svc.Reconcile(context.Background(), 1, ev))

	assert.Empty(t, repo.customers)
	assert.Len(t, repo.callLogs, 1)
	assert.Nil(t, repo.callLogs[0].CustomerID)
}

func TestReconcile_NeverDowngradesKnownCustomerData(t *testing.T) {
	repo := newMemRepo()
	repo.customers = append(repo.customers, models.Customer{
		ID: 10, OrganizationID: 1, Phone: "+15550100199",
		Name: "Ada Lovelace", Email: "ada@example.com",
	})
	svc := NewService(repo)

	ev := normalizedEvent("C1", models.CallOutcomeCompleted)
	ev.CallerName = ""
	ev.CallerEmail = ""
	assert.NoError(t, svc.Reconcile(context.Background(), 1, ev))

	assert.Equal(t, "Ada Lovelace", repo.customers[0].Name)
	assert.Equal(t, "ada@example.com", repo.customers[0].Email)
}

func TestReconcile_AppointmentLinkage(t *testing.T) {
	repo := newMemRepo()
	otherCustomer := uint(99)
	repo.appointments = append(repo.appointments, models.Appointment{
		ID: 5, OrganizationID: 1, CustomerID: &otherCustomer,
	})
	svc := NewService(repo)

	ev := normalizedEvent("C1", models.CallOutcomeCompleted)
	ev.AppointmentID = 5
	assert.NoError(t, svc.Reconcile(context.Background(), 1, ev))

	// Resolved customer wins, last-write.
	if assert.NotNil(t, repo.appointments[0].CustomerID) {
		assert.Equal(t, repo.customers[0].ID, *repo.appointments[0].CustomerID)
	}
	assert.Equal(t, "Ada Lovelace", repo.appointments[0].CustomerName)
	if assert.NotNil(t, repo.callLogs[0].AppointmentID) {
		assert.Equal(t, uint(5), *repo.callLogs[0].AppointmentID)
	}
}

func TestReconcile_IgnoresForeignOrgAppointment(t *testing.T) {
	repo := newMemRepo()
	repo.appointments = append(repo.appointments, models.Appointment{ID: 5, OrganizationID: 2})
	svc := NewService(repo)

	ev := normalizedEvent("C1", models.CallOutcomeCompleted)
	ev.AppointmentID = 5
	assert.NoError(t, svc.Reconcile(context.Background(), 1, ev))

	assert.Nil(t, repo.callLogs[0].AppointmentID)
	assert.Nil(t, repo.appointments[0].CustomerID)
}

func TestReconcile_CancelledContextAbortsBeforeCommit(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Reconcile(ctx, 1, normalizedEvent("C1", models.CallOutcomeCompleted))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveAgent(t *testing.T) {
	repo := newMemRepo()
	repo.agents = append(repo.agents,
		models.VoiceAgent{OrganizationID: 1, Provider: models.VoiceProviderRetell, AgentID: "A1", IsActive: true, Secret: "s"},
		models.VoiceAgent{OrganizationID: 1, Provider: models.VoiceProviderRetell, AgentID: "A2", IsActive: false, Secret: "s"},
	)
	svc := NewService(repo)
	ctx := context.Background()

	agent, err := svc.ResolveAgent(ctx, 1, models.VoiceProviderRetell, "A1")
	assert.NoError(t, err)
	assert.Equal(t, "A1", agent.AgentID)

	_, err = svc.ResolveAgent(ctx, 1, models.VoiceProviderRetell, "A2")
	assert.ErrorIs(t, err, ErrUnknownAgent, "inactive agent must be rejected")

	_, err = svc.ResolveAgent(ctx, 1, models.VoiceProviderRetell, "nope")
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestRecordDelivery_DeduplicatesCompletedDeliveries(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	ev := normalizedEvent("C1", models.CallOutcomeCompleted)
	fresh, stored, err := svc.RecordDelivery(ctx, 1, ev, true)
	assert.NoError(t, err)
	assert.True(t, fresh)

	// Unprocessed (crashed mid-flight): retry is allowed.
	fresh, _, err = svc.RecordDelivery(ctx, 1, ev, true)
	assert.NoError(t, err)
	assert.True(t, fresh, "unfinished delivery must be retryable")

	// Completed successfully: replay short-circuits.
	assert.NoError(t, svc.MarkProcessed(ctx, stored.ID, nil))
	fresh, _, err = svc.RecordDelivery(ctx, 1, ev, true)
	assert.NoError(t, err)
	assert.False(t, fresh)

	// Failed processing: replay is retried.
	assert.NoError(t, svc.MarkProcessed(ctx, stored.ID, assert.AnError))
	fresh, _, err = svc.RecordDelivery(ctx, 1, ev, true)
	assert.NoError(t, err)
	assert.True(t, fresh)

	assert.Len(t, repo.events, 1, "redeliveries must not duplicate audit rows")
}
