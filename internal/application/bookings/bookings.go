package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abcretailers/retailcore/internal/domain/booking"
	"github.com/abcretailers/retailcore/internal/domain/entity"
	domainErrors "github.com/abcretailers/retailcore/internal/domain/errors"
	"github.com/abcretailers/retailcore/internal/infrastructure/observability"
	"github.com/abcretailers/retailcore/pkg/saga"
)

const attrSlotBookingID = "booking_id"

// Service owns the booking lifecycle. Every write that claims a venue/date
// goes through a slot reservation first, so two racing requests cannot both
// succeed: the second Create on the slot key fails with ErrAlreadyExists and
// is reported as a booking conflict.
type Service struct {
	store    entity.Store
	detector *booking.Detector
	metrics  *observability.Metrics
}

func NewService(store entity.Store, detector *booking.Detector, metrics *observability.Metrics) *Service {
	return &Service{store: store, detector: detector, metrics: metrics}
}

// Create books a venue for an event on a calendar date.
func (s *Service) Create(ctx context.Context, venueID, eventID string, eventDate time.Time) (*booking.Booking, error) {
	b, err := booking.New(venueID, eventID, eventDate)
	if err != nil {
		return nil, err
	}

	// Advisory pre-check for a friendlier error; the slot reservation below
	// is what actually closes the race.
	conflict, err := s.detector.WouldConflict(ctx, b.VenueID, b.EventDate, "")
	if err != nil {
		return nil, err
	}
	if conflict {
		s.countConflict()
		return nil, domainErrors.ErrBookingConflict
	}

	sg := saga.New("create_booking").
		AddStep(saga.Step{
			Name:       "reserve_slot",
			Execute:    func(ctx context.Context) error { return s.reserveSlot(ctx, b) },
			Compensate: func(ctx context.Context) error { return s.releaseSlot(ctx, b.VenueID, b.EventDate) },
		}).
		AddStep(saga.Step{
			Name: "create_booking",
			Execute: func(ctx context.Context) error {
				_, err := s.store.Create(ctx, b.ToRecord())
				return err
			},
			Compensate: func(ctx context.Context) error {
				return s.store.Delete(ctx, booking.Partition, b.BookingID)
			},
		})

	if _, err := sg.Execute(ctx); err != nil {
		if errors.Is(err, domainErrors.ErrBookingConflict) {
			return nil, domainErrors.ErrBookingConflict
		}
		return nil, err
	}
	return b, nil
}

// Reschedule moves a booking to a new venue and/or date. The booking's own
// prior slot never counts as a conflict.
func (s *Service) Reschedule(ctx context.Context, bookingID, newVenueID string, newDate time.Time) (*booking.Booking, error) {
	current, err := s.get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if newVenueID == "" {
		newVenueID = current.VenueID
	}
	newDate = booking.DateOnly(newDate)

	if newVenueID == current.VenueID && newDate.Equal(current.EventDate) {
		return current, nil
	}

	conflict, err := s.detector.WouldConflict(ctx, newVenueID, newDate, bookingID)
	if err != nil {
		return nil, err
	}
	if conflict {
		s.countConflict()
		return nil, domainErrors.ErrBookingConflict
	}

	moved := *current
	moved.VenueID = newVenueID
	moved.EventDate = newDate

	oldVenueID, oldDate := current.VenueID, current.EventDate

	sg := saga.New("reschedule_booking").
		AddStep(saga.Step{
			Name:       "reserve_new_slot",
			Execute:    func(ctx context.Context) error { return s.reserveSlot(ctx, &moved) },
			Compensate: func(ctx context.Context) error { return s.releaseSlot(ctx, moved.VenueID, moved.EventDate) },
		}).
		AddStep(saga.Step{
			Name: "move_booking",
			Execute: func(ctx context.Context) error {
				_, err := entity.Mutate(ctx, s.store, booking.Partition, bookingID, func(rec *entity.Record) error {
					moved.ApplyTo(rec)
					return nil
				})
				return err
			},
			Compensate: func(ctx context.Context) error {
				_, err := entity.Mutate(ctx, s.store, booking.Partition, bookingID, func(rec *entity.Record) error {
					current.ApplyTo(rec)
					return nil
				})
				return err
			},
		}).
		AddStep(saga.Step{
			Name:    "release_old_slot",
			Execute: func(ctx context.Context) error { return s.releaseSlot(ctx, oldVenueID, oldDate) },
		})

	if _, err := sg.Execute(ctx); err != nil {
		if errors.Is(err, domainErrors.ErrBookingConflict) {
			return nil, domainErrors.ErrBookingConflict
		}
		return nil, err
	}
	return &moved, nil
}

// Cancel soft-deletes a booking and frees its slot.
func (s *Service) Cancel(ctx context.Context, bookingID string) error {
	current, err := s.get(ctx, bookingID)
	if err != nil {
		return err
	}

	sg := saga.New("cancel_booking").
		AddStep(saga.Step{
			Name: "mark_deleted",
			Execute: func(ctx context.Context) error {
				_, err := entity.Mutate(ctx, s.store, booking.Partition, bookingID, func(rec *entity.Record) error {
					rec.SetBool("deleted", true)
					return nil
				})
				return err
			},
			Compensate: func(ctx context.Context) error {
				_, err := entity.Mutate(ctx, s.store, booking.Partition, bookingID, func(rec *entity.Record) error {
					rec.SetBool("deleted", false)
					return nil
				})
				return err
			},
		}).
		AddStep(saga.Step{
			Name:    "release_slot",
			Execute: func(ctx context.Context) error { return s.releaseSlot(ctx, current.VenueID, current.EventDate) },
		})

	_, err = sg.Execute(ctx)
	return err
}

// Get returns a live booking, or ErrBookingNotFound.
func (s *Service) Get(ctx context.Context, bookingID string) (*booking.Booking, error) {
	return s.get(ctx, bookingID)
}

func (s *Service) get(ctx context.Context, bookingID string) (*booking.Booking, error) {
	rec, err := s.store.Get(ctx, booking.Partition, bookingID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			return nil, domainErrors.ErrBookingNotFound
		}
		return nil, err
	}
	b := booking.FromRecord(rec)
	if b.Deleted {
		return nil, domainErrors.ErrBookingNotFound
	}
	return b, nil
}

func (s *Service) reserveSlot(ctx context.Context, b *booking.Booking) error {
	slot := entity.New(booking.SlotPartition, booking.SlotKey(b.VenueID, b.EventDate), nil)
	slot.SetString(attrSlotBookingID, b.BookingID)
	if _, err := s.store.Create(ctx, slot); err != nil {
		if errors.Is(err, domainErrors.ErrAlreadyExists) {
			s.countConflict()
			return fmt.Errorf("%w: venue %s is booked on %s",
				domainErrors.ErrBookingConflict, b.VenueID, b.EventDate.Format("2006-01-02"))
		}
		return err
	}
	return nil
}

func (s *Service) releaseSlot(ctx context.Context, venueID string, date time.Time) error {
	err := s.store.Delete(ctx, booking.SlotPartition, booking.SlotKey(venueID, date))
	if errors.Is(err, domainErrors.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) countConflict() {
	if s.metrics != nil {
		s.metrics.BookingConflicts.Inc()
	}
}
