package extract

import (
	"net/http"
	"strings"

	"github.com/EdvinCodes/offgrid/internal/httputil"
	"github.com/EdvinCodes/offgrid/internal/media"
)

// DefaultPlaceholder is the description used when the engine supplies no caption.
const DefaultPlaceholder = "No metadata provided."

// DefaultMaxDescription is the caption length cap, in runes.
const DefaultMaxDescription = 120

// Policy drives normalization of engine replies.
//
// Prefer is the candidate type precedence. Video before image is a policy
// inferred from how mixed posts surface their primary content, not an engine
// guarantee, so it lives here rather than in the normalization steps.
type Policy struct {
	Prefer         []media.MediaType
	QuotaStatuses  []int
	QuotaCodes     []string
	Placeholder    string
	MaxDescription int
}

// DefaultPolicy returns video-first precedence and 429 as the quota status.
func DefaultPolicy() Policy {
	return Policy{
		Prefer:         []media.MediaType{media.Video, media.Image},
		QuotaStatuses:  []int{http.StatusTooManyRequests},
		QuotaCodes:     []string{"QUOTA_EXCEEDED", "RATE_LIMIT_EXCEEDED"},
		Placeholder:    DefaultPlaceholder,
		MaxDescription: DefaultMaxDescription,
	}
}

var quotaPhrases = []string{
	"quota",
	"rate limit",
	"rate-limit",
	"too many requests",
	"monthly limit",
}

// Normalize maps an engine reply onto the canonical result. It never fails:
// every problem becomes a failed Result carrying an error kind.
func (p Policy) Normalize(resp *media.BackendResponse) media.Result {
	if resp == nil {
		return media.Failure(media.NewError(media.ContentUnavailable, media.MsgContentUnavailable, nil))
	}

	if p.isQuota(resp) {
		return media.Failure(media.NewError(media.QuotaExceeded, media.MsgQuotaExceeded, nil))
	}

	content := resp.Content()
	if (resp.Success != nil && !*resp.Success) || content == nil {
		return media.Failure(media.NewError(media.ContentUnavailable, unavailableMessage(resp.ErrorText()), nil))
	}

	sources := []*media.Payload{content}
	if content != &resp.Payload && !resp.Payload.Empty() {
		sources = append(sources, &resp.Payload)
	}

	kind, mediaURL := p.pick(sources)
	if mediaURL == "" {
		return media.Failure(media.NewError(media.ContentUnavailable, media.MsgNoMediaFound, nil))
	}

	var thumbnail string
	for _, src := range sources {
		if httputil.ValidateURL(src.Thumbnail) == nil {
			thumbnail = src.Thumbnail
			break
		}
	}

	return media.Result{
		Success:     true,
		Type:        kind,
		URL:         mediaURL,
		Thumbnail:   thumbnail,
		Description: p.describe(sources),
	}
}

// pick walks the precedence list over every candidate list, then falls back
// to the first usable single URL. sources are ordered "data" first.
func (p Policy) pick(sources []*media.Payload) (media.MediaType, string) {
	for _, want := range p.Prefer {
		for _, src := range sources {
			for _, c := range src.Medias {
				kind, ok := media.ParseMediaType(c.Type)
				if !ok || kind != want {
					continue
				}
				if httputil.ValidateURL(c.URL) == nil {
					return kind, c.URL
				}
			}
		}
	}

	for _, src := range sources {
		if src.URL != "" && httputil.ValidateURL(src.URL) == nil {
			// Without an explicit type signal the fallback is treated as an image.
			kind, ok := media.ParseMediaType(src.Type)
			if !ok {
				kind = media.Image
			}
			return kind, src.URL
		}
	}

	return "", ""
}

func (p Policy) describe(sources []*media.Payload) string {
	max := p.MaxDescription
	if max <= 0 {
		max = DefaultMaxDescription
	}
	for _, src := range sources {
		for _, raw := range []string{src.Description, src.Title} {
			if s := CleanCaption(raw, max); s != "" {
				return s
			}
		}
	}
	if p.Placeholder != "" {
		return p.Placeholder
	}
	return DefaultPlaceholder
}

func (p Policy) isQuota(resp *media.BackendResponse) bool {
	for _, s := range p.QuotaStatuses {
		if resp.StatusCode == s {
			return true
		}
	}
	if resp.Success != nil && *resp.Success {
		return false
	}
	if code := resp.ErrorCode(); code != "" {
		for _, q := range p.QuotaCodes {
			if strings.EqualFold(code, q) {
				return true
			}
		}
	}
	text := strings.ToLower(resp.ErrorText())
	for _, phrase := range quotaPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// unavailableMessage turns the engine's error text into user text.
func unavailableMessage(backend string) string {
	lower := strings.ToLower(backend)
	switch {
	case backend == "":
		return media.MsgContentUnavailable
	case strings.Contains(lower, "login required"):
		return "Login required: this content is only visible to signed-in users."
	case strings.Contains(lower, "not available"):
		return "This content is unavailable or expired."
	case strings.Contains(lower, "unsupported url"):
		return "This link type is not supported by the extraction engine."
	default:
		return backend
	}
}
