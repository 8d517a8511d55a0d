package proctor

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"exproctor/internal/utils"
	"exproctor/pkg/types"
)

const defaultContentType = "image/png"

var imageExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// DecodePayload accepts a data URI ("data:image/png;base64,...") or bare
// base64 and returns the image bytes and content type.
func DecodePayload(payload string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	contentType := defaultContentType

	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, "", types.NewError(types.ErrDecode, "data uri has no payload")
		}

		meta := payload[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", types.NewError(types.ErrDecode, "data uri is not base64 encoded")
		}
		if mt := strings.TrimSuffix(meta, ";base64"); mt != "" {
			contentType = strings.ToLower(mt)
		}
		payload = payload[comma+1:]
	}

	if _, ok := imageExtensions[contentType]; !ok {
		return nil, "", types.NewError(types.ErrDecode, "unsupported image type %q", contentType)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
	}
	if err != nil {
		return nil, "", types.NewError(types.ErrDecode, "invalid base64 payload: %s", err)
	}
	if len(data) == 0 {
		return nil, "", types.NewError(types.ErrDecode, "empty image")
	}

	return data, contentType, nil
}

// ObjectKey names a stored frame <type>-<attempt>-<user>-<course>-<unix>-<suffix>.<ext>.
func ObjectKey(evidenceType types.EvidenceType, attempt types.AttemptKey, at time.Time, contentType string) string {
	ext, ok := imageExtensions[contentType]
	if !ok {
		ext = imageExtensions[defaultContentType]
	}

	return fmt.Sprintf("%s-%d-%d-%d-%d-%s.%s",
		evidenceType,
		attempt.AttemptID,
		attempt.UserID,
		attempt.CourseID,
		at.Unix(),
		utils.LowerNanoID(8),
		ext,
	)
}
