// Package media defines shared types for the offgrid application.
package media

import (
	"encoding/json"
	"strings"
)

// MediaType is the kind of a resolved asset.
type MediaType string

const (
	Video MediaType = "video"
	Image MediaType = "image"
)

func (m MediaType) String() string {
	return string(m)
}

// ParseMediaType maps a backend-supplied kind tag onto a MediaType.
// Unknown tags return ok=false.
func ParseMediaType(s string) (MediaType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video", "reel", "mp4", "m4v", "mov", "webm":
		return Video, true
	case "image", "photo", "picture", "jpg", "jpeg", "png", "webp", "gif", "heic":
		return Image, true
	default:
		return "", false
	}
}

// Candidate is one entry in a backend's list of possible media objects.
type Candidate struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	Extension string `json:"extension,omitempty"`
	Quality   string `json:"quality,omitempty"`
}

// Payload holds the media-bearing fields of a backend response. It appears
// either nested under "data" or inline at the top level.
type Payload struct {
	Medias      []Candidate `json:"medias,omitempty"`
	URL         string      `json:"url,omitempty"`
	Type        string      `json:"type,omitempty"`
	Thumbnail   string      `json:"thumbnail,omitempty"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Empty reports whether the payload carries nothing usable.
func (p *Payload) Empty() bool {
	return p == nil || (len(p.Medias) == 0 && p.URL == "" && p.Thumbnail == "" &&
		p.Title == "" && p.Description == "")
}

// BackendResponse is the raw, untrusted reply of the extraction engine.
// Every field is optional.
type BackendResponse struct {
	Success *bool           `json:"success,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
	Data    *Payload        `json:"data,omitempty"`
	Payload

	// StatusCode is the HTTP status the engine answered with. It is not part
	// of the wire body.
	StatusCode int `json:"-"`
}

// ErrorText returns the backend's human-readable error, whether it was sent
// as a string, as {"message": "..."}, or in the "message" field.
func (r *BackendResponse) ErrorText() string {
	if len(r.Error) > 0 {
		var s string
		if err := json.Unmarshal(r.Error, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		var obj struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		if err := json.Unmarshal(r.Error, &obj); err == nil && strings.TrimSpace(obj.Message) != "" {
			return strings.TrimSpace(obj.Message)
		}
	}
	return strings.TrimSpace(r.Message)
}

// ErrorCode returns the backend's machine-readable error code, if any.
func (r *BackendResponse) ErrorCode() string {
	if r.Code != "" {
		return r.Code
	}
	if len(r.Error) > 0 {
		var obj struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(r.Error, &obj); err == nil {
			return obj.Code
		}
	}
	return ""
}

// Content returns the payload the response carries: "data" when present,
// otherwise the inline top-level fields. It returns nil when neither holds
// anything.
func (r *BackendResponse) Content() *Payload {
	if !r.Data.Empty() {
		return r.Data
	}
	if !r.Payload.Empty() {
		return &r.Payload
	}
	return nil
}

// Result is the canonical extraction result handed to every client.
// When Success is true, Type and URL are set; otherwise Error and Code are.
type Result struct {
	Success     bool      `json:"success"`
	Type        MediaType `json:"type,omitempty"`
	URL         string    `json:"url,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	Code        ErrorKind `json:"code,omitempty"`
}

// Failure builds a failed result from an error taxonomy entry.
func Failure(e *Error) Result {
	return Result{
		Success: false,
		Error:   e.Message,
		Code:    e.Kind,
	}
}
