// Package handlers adapts HTTP requests onto the services. Handlers decode,
// call one service method and hand any failure to response.FromError.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/diagnosis/parkspot/internal/domain"
	"github.com/diagnosis/parkspot/internal/storage"
)

const (
	maxJSONBody      = 1 << 20
	maxMultipartBody = (domain.MaxListingImages+1)*storage.MaxImageBytes + 1<<20
	multipartMemory  = 8 << 20
)

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.ValidationError("Request body is too large")
		}
		return domain.ValidationError("Invalid request body")
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.ValidationError("Upload is too large")
		}
		return domain.ValidationError("Invalid multipart form")
	}
	return nil
}

// openUploads opens every file sent under field. The returned closer must be
// called once the uploads have been consumed.
func openUploads(r *http.Request, field string) ([]storage.Upload, func(), error) {
	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File[field]
	}

	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	uploads := make([]storage.Upload, 0, len(headers))
	for _, h := range headers {
		if h.Size > storage.MaxImageBytes {
			closeAll()
			return nil, nil, domain.ValidationError(fmt.Sprintf("%s exceeds the %d MB image limit", h.Filename, storage.MaxImageBytes>>20))
		}
		f, err := h.Open()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open upload %s: %w", h.Filename, err)
		}
		files = append(files, f)
		uploads = append(uploads, storage.Upload{Filename: h.Filename, Body: io.LimitReader(f, storage.MaxImageBytes)})
	}
	return uploads, closeAll, nil
}
