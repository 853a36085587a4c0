package controller

import (
	"net/http"
	"time"

	"github.com/abcretailers/retailcore/internal/application/bookings"
	domainErrors "github.com/abcretailers/retailcore/internal/domain/errors"
	"github.com/go-chi/chi/v5"
)

type BookingController struct {
	service *bookings.Service
}

func NewBookingController(service *bookings.Service) *BookingController {
	return &BookingController{service: service}
}

// Create handles POST /api/v1/bookings.
func (c *BookingController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	date, err := parseDate(req.EventDate)
	if err != nil {
		writeError(w, err)
		return
	}

	b, err := c.service.Create(r.Context(), req.VenueID, req.EventID, date)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

// Get handles GET /api/v1/bookings/{id}.
func (c *BookingController) Get(w http.ResponseWriter, r *http.Request) {
	b, err := c.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// Reschedule handles PUT /api/v1/bookings/{id}.
func (c *BookingController) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req RescheduleBookingRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	date, err := parseDate(req.EventDate)
	if err != nil {
		writeError(w, err)
		return
	}

	b, err := c.service.Reschedule(r.Context(), chi.URLParam(r, "id"), req.VenueID, date)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// Cancel handles DELETE /api/v1/bookings/{id}.
func (c *BookingController) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := c.service.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, domainErrors.NewValidationError("event_date", "must be YYYY-MM-DD or RFC 3339")
}
