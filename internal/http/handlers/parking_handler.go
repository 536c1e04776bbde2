package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/diagnosis/parkspot/internal/domain"
	mw "github.com/diagnosis/parkspot/internal/http/middleware"
	"github.com/diagnosis/parkspot/internal/http/response"
	"github.com/diagnosis/parkspot/internal/service"
	"github.com/go-chi/chi/v5"
)

type ParkingHandler struct {
	Listings service.ListingService
}

func NewParkingHandler(listings service.ListingService) *ParkingHandler {
	return &ParkingHandler{Listings: listings}
}

func (h *ParkingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/create", h.create)
	r.Get("/nearby", h.nearby)
	r.Get("/all", h.all)
	r.Put("/surge", h.updateSurge)
	r.Get("/{id}", h.getByID)
	return r
}

func (h *ParkingHandler) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := mw.RequireCaller(w, r)
	if !ok {
		return
	}
	if err := parseMultipart(w, r); err != nil {
		response.FromError(w, r, err)
		return
	}

	in := domain.CreateListingRequest{
		Address:     r.FormValue("address"),
		Description: r.FormValue("description"),
		Heading:     r.FormValue("heading"),
		Headline:    r.FormValue("headline"),
		VehicleType: r.FormValue("vehicleType"),
		Lat:         r.FormValue("lat"),
		Lng:         r.FormValue("lng"),
	}
	if raw := strings.TrimSpace(r.FormValue("pricePerHour")); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			response.BadRequest(w, "Price per hour must be a number")
			return
		}
		in.PricePerHour = price
	}

	images, closeAll, err := openUploads(r, "images")
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	defer closeAll()

	listing, err := h.Listings.CreateListing(r.Context(), caller, &in, images)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, listing)
}

func (h *ParkingHandler) nearby(w http.ResponseWriter, r *http.Request) {
	caller, ok := mw.RequireCaller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	listings, err := h.Listings.FindNearby(r.Context(), caller, service.NearbyInput{
		Lat:         q.Get("lat"),
		Lng:         q.Get("lng"),
		VehicleType: q.Get("vehicleType"),
		MaxDistance: q.Get("maxDistance"),
		TimeOfDay:   q.Get("timeOfDay"),
	})
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, listings)
}

func (h *ParkingHandler) all(w http.ResponseWriter, r *http.Request) {
	listings, err := h.Listings.ListAll(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, listings)
}

func (h *ParkingHandler) updateSurge(w http.ResponseWriter, r *http.Request) {
	caller, ok := mw.RequireCaller(w, r)
	if !ok {
		return
	}
	var in domain.UpdateSurgeRequest
	if err := decodeJSON(w, r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	listing, err := h.Listings.UpdateSurge(r.Context(), caller, &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, listing)
}

func (h *ParkingHandler) getByID(w http.ResponseWriter, r *http.Request) {
	listing, err := h.Listings.GetListing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, listing)
}
