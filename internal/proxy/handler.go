package proxy

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/EdvinCodes/offgrid/internal/httputil"
	"github.com/EdvinCodes/offgrid/internal/media"
)

// ServeHTTP relays the media at ?url=. With download=1 the response carries
// an attachment disposition named after ?filename= (default "offgrid-media").
//
// Upstream failures answer 502 with a JSON failure result and no media
// bytes. A failure after streaming started aborts the connection so the
// client never sees a truncated body as a complete one.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	log := zerolog.Ctx(req.Context())
	if log.GetLevel() == zerolog.Disabled {
		log = r.opts.Logger
	}

	q := req.URL.Query()
	target := strings.TrimSpace(q.Get("url"))

	up, err := r.Open(req.Context(), target, req.Header.Get("Range"))
	if err != nil {
		var me *media.Error
		if !errors.As(err, &me) {
			me = media.NewError(media.ProxyUnreachable, media.MsgProxyUnreachable, err)
		}
		status := http.StatusBadGateway
		if me.Kind == media.InvalidInput {
			status = http.StatusBadRequest
		}
		log.Warn().Err(err).Str("target", target).Msg("proxy fetch failed")
		r.observe(string(me.Kind), 0)
		writeFailure(w, status, me)
		return
	}

	h := w.Header()
	h.Set("Content-Type", up.ContentType)
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	if up.ContentLength >= 0 {
		h.Set("Content-Length", formatLength(up.ContentLength))
	}
	for k, v := range up.Header {
		h[k] = v
	}
	if q.Get("download") == "1" || strings.EqualFold(q.Get("download"), "true") {
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
			"filename": AttachmentName(q.Get("filename"), up.ContentType),
		}))
	}
	w.WriteHeader(up.StatusCode)

	if req.Method == http.MethodHead {
		up.Body.Close()
		r.observe("ok", 0)
		return
	}

	n, err := r.Copy(w, up)
	if err != nil {
		if req.Context().Err() != nil {
			log.Debug().Int64("bytes", n).Str("target", target).Msg("client went away during relay")
			r.observe("canceled", n)
			return
		}
		log.Warn().Err(err).Int64("bytes", n).Str("target", target).Msg("relay interrupted")
		r.observe(string(media.ProxyUnreachable), n)
		panic(http.ErrAbortHandler)
	}

	log.Debug().Int64("bytes", n).Str("content_type", up.ContentType).Msg("relay finished")
	r.observe("ok", n)
}

// AttachmentName builds a safe download filename whose extension matches
// the content type when the requested name has none.
func AttachmentName(requested, contentType string) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = "offgrid-media"
	}
	name = httputil.SanitizeFilename(name)
	if filepath.Ext(name) == "" {
		name += Extension(contentType)
	}
	return name
}

func writeFailure(w http.ResponseWriter, code int, e *media.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(media.Failure(e))
}
