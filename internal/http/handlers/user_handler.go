package handlers

import (
	"net/http"

	"github.com/diagnosis/parkspot/internal/domain"
	mw "github.com/diagnosis/parkspot/internal/http/middleware"
	"github.com/diagnosis/parkspot/internal/http/response"
	"github.com/diagnosis/parkspot/internal/service"
	"github.com/diagnosis/parkspot/internal/storage"
	"github.com/go-chi/chi/v5"
)

type UserHandler struct {
	Users service.UserService
}

func NewUserHandler(users service.UserService) *UserHandler {
	return &UserHandler{Users: users}
}

func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/profile", h.getProfile)
	r.Put("/profile", h.updateProfile)
	return r
}

func (h *UserHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := mw.RequireCaller(w, r)
	if !ok {
		return
	}
	profile, err := h.Users.GetProfile(r.Context(), caller)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, profile)
}

// updateProfile takes JSON, or a multipart form when a profileImage is sent.
func (h *UserHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := mw.RequireCaller(w, r)
	if !ok {
		return
	}

	var in domain.UpdateProfileRequest
	var image *storage.Upload
	if isMultipart(r) {
		if err := parseMultipart(w, r); err != nil {
			response.FromError(w, r, err)
			return
		}
		in = domain.UpdateProfileRequest{
			Username:      r.FormValue("username"),
			Email:         r.FormValue("email"),
			VehicleNumber: r.FormValue("vehicleNumber"),
			Password:      r.FormValue("password"),
		}
		uploads, closeAll, err := openUploads(r, "profileImage")
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		defer closeAll()
		if len(uploads) > 1 {
			response.BadRequest(w, "Only one profile image is allowed")
			return
		}
		if len(uploads) == 1 {
			image = &uploads[0]
		}
	} else if err := decodeJSON(w, r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}

	user, err := h.Users.UpdateProfile(r.Context(), caller, &in, image)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, user)
}
