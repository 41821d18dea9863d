// Package entitlement computes how many sessions a customer's paid
// purchases still permit them to book.
package entitlement

import (
	"context"

	"sendconsult/internal/domain"
)

type Store interface {
	ListPaidPurchasesByEmail(ctx context.Context, email string) ([]domain.Purchase, error)
	ListPackageSessions(ctx context.Context, purchaseID string) ([]domain.PackageSession, error)
}

// Summary is one purchase with its booking history and remaining
// entitlement. A purchase with SessionsRemaining zero must never be
// offered a further booking link.
type Summary struct {
	Purchase          domain.Purchase
	Sessions          []domain.PackageSession
	SessionsBooked    int
	SessionsRemaining int
	EventTypeURI      string
}

// BookingAllowed reports whether another session may be booked.
func (s Summary) BookingAllowed() bool {
	return s.SessionsRemaining > 0
}

type Resolver struct {
	store Store
}

func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// Summaries returns all of the customer's paid purchases, newest first,
// each with its sessions and remaining entitlement.
func (r *Resolver) Summaries(ctx context.Context, email string) ([]Summary, error) {
	purchases, err := r.store.ListPaidPurchasesByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(purchases))
	for _, p := range purchases {
		sessions, err := r.store.ListPackageSessions(ctx, p.ID)
		if err != nil {
			return nil, err
		}

		booked := 0
		for _, s := range sessions {
			if s.Status != domain.SessionCancelled {
				booked++
			}
		}

		summaries = append(summaries, Summary{
			Purchase:          p,
			Sessions:          sessions,
			SessionsBooked:    booked,
			SessionsRemaining: p.SessionsRemaining,
			EventTypeURI:      p.Metadata.EventTypeURI,
		})
	}
	return summaries, nil
}
