// Package proxy relays remote media through the server so browsers never
// fetch the source CDN directly. It is a pure relay: no caching, no
// transcoding, and no inspection beyond the content type.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/EdvinCodes/offgrid/internal/httputil"
	"github.com/EdvinCodes/offgrid/internal/media"
)

// RefererOrigin makes the relay send the target's own origin as Referer.
const RefererOrigin = "origin"

// Observer receives one outcome per relay with the number of bytes sent.
type Observer interface {
	ObserveProxy(outcome string, bytes int64)
}

// Options configures a Relay.
type Options struct {
	// Referer is sent upstream: "" strips it, RefererOrigin uses the
	// target's origin, anything else is sent verbatim.
	Referer       string
	UserAgent     string
	HeaderTimeout time.Duration
	// IdleTimeout bounds the wait for each body read. Zero uses HeaderTimeout.
	IdleTimeout time.Duration
	// AllowPrivate permits targets that resolve to loopback or private addresses.
	AllowPrivate bool
	BufferSize   int
	Observer     Observer
	Logger       *zerolog.Logger
}

// Relay fetches remote media and streams it to a writer in bounded chunks.
type Relay struct {
	opts   Options
	client *http.Client
	bufs   sync.Pool
}

// New creates a Relay. A nil client gets a hardened default that applies the
// Referer policy on redirects too.
func New(opts Options, client *http.Client) *Relay {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 32 * 1024
	}
	if opts.HeaderTimeout <= 0 {
		opts.HeaderTimeout = 15 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = opts.HeaderTimeout
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}

	r := &Relay{opts: opts}
	r.bufs.New = func() any {
		b := make([]byte, opts.BufferSize)
		return &b
	}

	if client == nil {
		client = httputil.NewClient(httputil.ClientOptions{
			HeaderTimeout: opts.HeaderTimeout,
			DenyPrivate:   !opts.AllowPrivate,
		})
		base := client.CheckRedirect
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			r.setReferer(req)
			return base(req, via)
		}
	}
	r.client = client

	return r
}

// Upstream is an open upstream response ready to be streamed.
type Upstream struct {
	StatusCode    int
	ContentType   string
	ContentLength int64
	// Header holds the range and validator headers worth relaying.
	Header http.Header
	Body   io.ReadCloser

	cancel context.CancelFunc
}

// cancelBody releases the upstream request context when the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

var relayedHeaders = []string{"Content-Range", "Accept-Ranges", "Last-Modified", "ETag"}

// Open starts the upstream fetch of target. rangeHeader, when set, is
// forwarded so clients can seek. Failures are *media.Error values of kind
// InvalidInput (bad target) or ProxyUnreachable (upstream failed); no body
// is returned with an error.
func (r *Relay) Open(ctx context.Context, target, rangeHeader string) (*Upstream, error) {
	u, err := parseTarget(target)
	if err != nil {
		return nil, media.NewError(media.InvalidInput, "Invalid media URL.", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := httputil.NewRequest(ctx, http.MethodGet, u.String(), r.opts.UserAgent)
	if err != nil {
		cancel()
		return nil, media.NewError(media.InvalidInput, "Invalid media URL.", err)
	}
	r.setReferer(req)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		cancel()
		return nil, media.NewError(media.ProxyUnreachable, media.MsgProxyUnreachable, fmt.Errorf("fetching %s: %w", u.Host, err))
	}

	ok := resp.StatusCode == http.StatusOK || (rangeHeader != "" && resp.StatusCode == http.StatusPartialContent)
	if !ok {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		cancel()
		return nil, media.NewError(media.ProxyUnreachable, media.MsgProxyUnreachable,
			fmt.Errorf("upstream %s answered status %d", u.Host, resp.StatusCode))
	}

	up := &Upstream{
		StatusCode:    resp.StatusCode,
		ContentType:   contentType(resp.Header.Get("Content-Type"), u),
		ContentLength: resp.ContentLength,
		Header:        make(http.Header),
		Body:          &cancelBody{ReadCloser: resp.Body, cancel: cancel},
		cancel:        cancel,
	}
	for _, h := range relayedHeaders {
		if v := resp.Header.Get(h); v != "" {
			up.Header.Set(h, v)
		}
	}
	return up, nil
}

// Copy streams the upstream body into dst through a pooled fixed-size
// buffer, so memory stays bounded whatever the asset size. It closes the body.
// An upstream that sends nothing for IdleTimeout fails with ProxyUnreachable.
func (r *Relay) Copy(dst io.Writer, up *Upstream) (int64, error) {
	defer up.Body.Close()

	bp := r.bufs.Get().(*[]byte)
	defer r.bufs.Put(bp)
	buf := *bp

	var stalled atomic.Bool
	idle := time.AfterFunc(r.opts.IdleTimeout, func() {
		stalled.Store(true)
		if up.cancel != nil {
			up.cancel()
		}
		up.Body.Close()
	})
	defer idle.Stop()

	var written int64
	for {
		// Only upstream reads count toward the idle limit, not slow clients.
		idle.Reset(r.opts.IdleTimeout)
		n, rerr := up.Body.Read(buf)
		idle.Stop()
		if stalled.Load() {
			return written, media.NewError(media.ProxyUnreachable, media.MsgProxyUnreachable,
				fmt.Errorf("upstream sent nothing for %s", r.opts.IdleTimeout))
		}
		if n > 0 {
			m, werr := dst.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, fmt.Errorf("writing to client: %w", werr)
			}
			if m != n {
				return written, io.ErrShortWrite
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return written, fmt.Errorf("reading upstream: %w", rerr)
		}
	}

	if up.ContentLength >= 0 && written != up.ContentLength {
		return written, fmt.Errorf("upstream body truncated: got %d of %d bytes", written, up.ContentLength)
	}
	return written, nil
}

func (r *Relay) setReferer(req *http.Request) {
	switch r.opts.Referer {
	case "":
		req.Header.Del("Referer")
	case RefererOrigin:
		req.Header.Set("Referer", req.URL.Scheme+"://"+req.URL.Host+"/")
	default:
		req.Header.Set("Referer", r.opts.Referer)
	}
}

func (r *Relay) observe(outcome string, n int64) {
	if r.opts.Observer != nil {
		r.opts.Observer.ObserveProxy(outcome, n)
	}
}

func parseTarget(target string) (*url.URL, error) {
	if target == "" {
		return nil, errors.New("no media URL provided")
	}
	if err := httputil.ValidateURL(target); err != nil {
		return nil, err
	}
	return url.Parse(target)
}

func formatLength(n int64) string {
	return strconv.FormatInt(n, 10)
}
