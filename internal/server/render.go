package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"exproctor/pkg/types"

	"github.com/alexedwards/flow"
)

// frames are base64 images; leave room for a large screenshot
const maxBodyBytes = 16 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrEvidenceNotFound), errors.Is(err, types.ErrQuizSettingsNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, types.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, types.ErrStorage):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	entry := s.logger.WithError(err).WithField("path", r.URL.Path).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}

	s.writeJSON(w, status, errorResponse{Error: msg})
}

func pathInt64(r *http.Request, name string) (int64, error) {
	raw := flow.Param(r.Context(), name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, types.NewError(types.ErrValidation, "invalid %s %q", name, raw)
	}
	return v, nil
}

// decodeBody reads a JSON body, or a form-encoded one as posted by LMS web
// service clients.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return types.NewError(types.ErrValidation, "invalid json body: %s", err)
		}
		return nil
	}

	if err := r.ParseForm(); err != nil {
		return types.NewError(types.ErrValidation, "invalid form body: %s", err)
	}

	if err := decoder.Decode(dst, r.PostForm); err != nil {
		return types.NewError(types.ErrValidation, "invalid form body: %s", err)
	}

	return nil
}
