package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sendconsult/internal/domain"
)

type fakeStore struct {
	purchases []domain.Purchase
	sessions  map[string][]domain.PackageSession
}

func (f *fakeStore) ListPaidPurchasesByEmail(_ context.Context, email string) ([]domain.Purchase, error) {
	var out []domain.Purchase
	for _, p := range f.purchases {
		if p.Email == email {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPackageSessions(_ context.Context, purchaseID string) ([]domain.PackageSession, error) {
	return f.sessions[purchaseID], nil
}

func TestSummaries(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 3, d, 10, 0, 0, 0, time.UTC) }
	store := &fakeStore{
		purchases: []domain.Purchase{
			{
				ID:                "pur-2",
				Email:             "parent@example.com",
				Status:            domain.PurchasePaid,
				SessionsRemaining: 2,
				Metadata:          domain.PurchaseMetadata{EventTypeURI: "https://api.calendly.com/event_types/abc"},
				CreatedAt:         day(2),
			},
			{
				ID:                "pur-1",
				Email:             "parent@example.com",
				Status:            domain.PurchasePaid,
				SessionsRemaining: 0,
				CreatedAt:         day(1),
			},
		},
		sessions: map[string][]domain.PackageSession{
			"pur-2": {
				{ID: "ses-1", Status: domain.SessionScheduled, SessionDate: day(10)},
				{ID: "ses-2", Status: domain.SessionCancelled, SessionDate: day(12)},
			},
			"pur-1": {
				{ID: "ses-3", Status: domain.SessionCompleted, SessionDate: day(3)},
			},
		},
	}

	resolver := New(store)
	summaries, err := resolver.Summaries(context.Background(), "parent@example.com")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "pur-2", summaries[0].Purchase.ID)
	assert.Equal(t, 1, summaries[0].SessionsBooked, "cancelled sessions do not count as booked")
	assert.Equal(t, 2, summaries[0].SessionsRemaining)
	assert.Equal(t, "https://api.calendly.com/event_types/abc", summaries[0].EventTypeURI)
	assert.True(t, summaries[0].BookingAllowed())

	// A drained purchase must never be offered another booking link.
	assert.Equal(t, "pur-1", summaries[1].Purchase.ID)
	assert.False(t, summaries[1].BookingAllowed())
}

func TestSummaries_NoPurchases(t *testing.T) {
	resolver := New(&fakeStore{})
	summaries, err := resolver.Summaries(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}
