package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sendconsult/internal/domain"
	"sendconsult/internal/events"
)

type fakeSender struct {
	failures int
	calls    int
	lastTo   string
	lastSubj string
	lastBody string
}

func (f *fakeSender) SendEmail(_ context.Context, to, subject, body string) error {
	f.calls++
	f.lastTo, f.lastSubj, f.lastBody = to, subject, body
	if f.calls <= f.failures {
		return errors.New("smtp: connection reset")
	}
	return nil
}

type fakeLogStore struct {
	logs []domain.EmailLog
}

func (f *fakeLogStore) SaveEmailLog(_ context.Context, l domain.EmailLog) error {
	f.logs = append(f.logs, l)
	return nil
}

func TestProcessPurchase_SendsConfirmation(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeLogStore{}
	svc := NewService(sender, store, "admin@example.com")

	err := svc.ProcessPurchase(context.Background(), events.PurchaseRecorded{
		PurchaseID:        "pur-1",
		BookingOptionID:   "advocacy-package",
		Email:             "parent@example.com",
		Name:              "Jordan",
		AmountPaid:        20000,
		Currency:          "gbp",
		SessionsRemaining: 4,
	})
	require.NoError(t, err)

	assert.Equal(t, "parent@example.com", sender.lastTo)
	assert.Contains(t, sender.lastBody, "advocacy-package")
	assert.Contains(t, sender.lastBody, "200.00 GBP")
	assert.Contains(t, sender.lastBody, "Sessions included: 4")

	require.Len(t, store.logs, 1)
	assert.Equal(t, "pur-1", store.logs[0].ReferenceID)
	assert.Equal(t, domain.EmailSent, store.logs[0].Status)
}

func TestProcessPurchase_InvalidEmail(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeLogStore{}
	svc := NewService(sender, store, "admin@example.com")

	err := svc.ProcessPurchase(context.Background(), events.PurchaseRecorded{
		PurchaseID: "pur-1",
		Email:      "not-an-email",
	})
	require.Error(t, err)
	assert.Zero(t, sender.calls)
	assert.Empty(t, store.logs)
}

func TestProcessBooking_NotifiesAdmin(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeLogStore{}
	svc := NewService(sender, store, "admin@example.com")

	start := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	err := svc.ProcessBooking(context.Background(), events.BookingRecorded{
		BookingID:    "bkg-1",
		Email:        "parent@example.com",
		Name:         "Jordan",
		StartsAt:     start,
		EndsAt:       start.Add(45 * time.Minute),
		Status:       "scheduled",
		PurchaseID:   "pur-1",
		SessionsLeft: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, "admin@example.com", sender.lastTo)
	assert.Contains(t, sender.lastSubj, "scheduled")
	assert.Contains(t, sender.lastBody, "Linked purchase: pur-1")
	assert.Contains(t, sender.lastBody, "Sessions remaining: 3")
}

func TestProcessBooking_StandaloneBooking(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeLogStore{}
	svc := NewService(sender, store, "admin@example.com")

	err := svc.ProcessBooking(context.Background(), events.BookingRecorded{
		BookingID: "bkg-2",
		Email:     "parent@example.com",
		Name:      "Jordan",
		Status:    "scheduled",
	})
	require.NoError(t, err)
	assert.Contains(t, sender.lastBody, "Not linked to a package purchase.")
}

func TestDeliver_RetriesThenLogsFailure(t *testing.T) {
	sender := &fakeSender{failures: 3}
	store := &fakeLogStore{}
	svc := NewService(sender, store, "admin@example.com")

	err := svc.ProcessBooking(context.Background(), events.BookingRecorded{
		BookingID: "bkg-3",
		Email:     "parent@example.com",
		Name:      "Jordan",
		Status:    "canceled",
	})
	require.NoError(t, err, "delivery failure is recorded, not returned")

	assert.Equal(t, 3, sender.calls)
	require.Len(t, store.logs, 1)
	assert.Equal(t, domain.EmailFailed, store.logs[0].Status)
	assert.True(t, store.logs[0].ErrorMessage.Valid)
}

func TestDeliver_RecoversAfterRetry(t *testing.T) {
	sender := &fakeSender{failures: 1}
	store := &fakeLogStore{}
	svc := NewService(sender, store, "admin@example.com")

	err := svc.ProcessBooking(context.Background(), events.BookingRecorded{
		BookingID: "bkg-4",
		Email:     "parent@example.com",
		Name:      "Jordan",
		Status:    "scheduled",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, sender.calls)
	require.Len(t, store.logs, 1)
	assert.Equal(t, domain.EmailSent, store.logs[0].Status)
}
