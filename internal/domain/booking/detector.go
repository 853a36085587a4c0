package booking

import (
	"context"
	"time"

	"github.com/abcretailers/retailcore/internal/domain/entity"
)

// Detector answers whether a venue/date pair is already taken. It is a pure
// read over the store; the write-time slot reservation (see SlotKey) is what
// closes the check-then-act race between two concurrent requests.
type Detector struct {
	store entity.Store
}

// NewDetector creates a conflict detector over the given store.
func NewDetector(store entity.Store) *Detector {
	return &Detector{store: store}
}

// WouldConflict reports whether a non-deleted booking already occupies the
// venue on the given calendar date. excludeBookingID ignores the caller's own
// record during an edit-in-place; pass "" when creating.
func (d *Detector) WouldConflict(ctx context.Context, venueID string, eventDate time.Time, excludeBookingID string) (bool, error) {
	date := DateOnly(eventDate)

	for rec, err := range d.store.List(ctx, Partition) {
		if err != nil {
			return false, err
		}
		b := FromRecord(rec)
		if b.Deleted {
			continue
		}
		// A booking without an event is orphaned and unreachable.
		if b.EventID == "" {
			continue
		}
		if b.BookingID == excludeBookingID {
			continue
		}
		if b.VenueID == venueID && b.EventDate.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}
