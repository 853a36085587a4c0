package booking

import (
	"time"

	"github.com/abcretailers/retailcore/internal/domain/entity"
	domainErrors "github.com/abcretailers/retailcore/internal/domain/errors"
	"github.com/google/uuid"
)

// Partition keys used by the booking domain.
const (
	Partition     = "Booking"
	SlotPartition = "BookingSlot"
)

// Attribute names on booking records.
const (
	attrVenueID   = "venue_id"
	attrEventID   = "event_id"
	attrEventDate = "event_date"
	attrDeleted   = "deleted"
)

// Booking ties an event to a venue on a calendar date.
type Booking struct {
	BookingID string
	VenueID   string
	EventID   string
	EventDate time.Time
	Deleted   bool
}

// New creates a booking. The event date is truncated to its calendar date;
// time of day never participates in conflict decisions.
func New(venueID, eventID string, eventDate time.Time) (*Booking, error) {
	if venueID == "" {
		return nil, domainErrors.NewValidationError("venue_id", "cannot be empty")
	}
	if eventID == "" {
		return nil, domainErrors.NewValidationError("event_id", "cannot be empty")
	}
	if eventDate.IsZero() {
		return nil, domainErrors.NewValidationError("event_date", "cannot be empty")
	}
	return &Booking{
		BookingID: uuid.New().String(),
		VenueID:   venueID,
		EventID:   eventID,
		EventDate: DateOnly(eventDate),
	}, nil
}

// DateOnly truncates t to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SlotKey is the row key of the uniqueness record reserved for a venue/date
// pair. Creating the slot record is what makes booking writes race-safe: the
// second writer observes ErrAlreadyExists instead of silently double-booking.
func SlotKey(venueID string, eventDate time.Time) string {
	return venueID + "|" + DateOnly(eventDate).Format(time.DateOnly)
}

// ToRecord converts the booking to its stored form.
func (b *Booking) ToRecord() *entity.Record {
	rec := entity.New(Partition, b.BookingID, nil)
	rec.SetString(attrVenueID, b.VenueID)
	rec.SetString(attrEventID, b.EventID)
	rec.SetTime(attrEventDate, b.EventDate)
	rec.SetBool(attrDeleted, b.Deleted)
	return rec
}

// FromRecord converts a stored record back to a booking.
func FromRecord(rec *entity.Record) *Booking {
	return &Booking{
		BookingID: rec.RowKey,
		VenueID:   rec.String(attrVenueID),
		EventID:   rec.String(attrEventID),
		EventDate: DateOnly(rec.Time(attrEventDate)),
		Deleted:   rec.Bool(attrDeleted),
	}
}

// ApplyTo writes the booking's fields onto an existing record, preserving
// store-owned metadata. Used inside conditional updates.
func (b *Booking) ApplyTo(rec *entity.Record) {
	rec.SetString(attrVenueID, b.VenueID)
	rec.SetString(attrEventID, b.EventID)
	rec.SetTime(attrEventDate, b.EventDate)
	rec.SetBool(attrDeleted, b.Deleted)
}
