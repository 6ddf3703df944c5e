// Package extract resolves a social-media post link into one canonical,
// directly downloadable media result: validate the link, ask the extraction
// engine, then normalize whatever shape the engine answered with.
package extract

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/EdvinCodes/offgrid/internal/engine"
	"github.com/EdvinCodes/offgrid/internal/httputil"
	"github.com/EdvinCodes/offgrid/internal/media"
)

// Extractor resolves post links into canonical results.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) media.Result
}

// Backend is the extraction engine boundary.
type Backend interface {
	Extract(ctx context.Context, sourceURL string) (*media.BackendResponse, error)
}

// Observer receives one outcome per extraction. Outcome is "ok" or an error kind.
type Observer interface {
	ObserveExtraction(outcome string, elapsed time.Duration)
}

// Options configures a Pipeline.
type Options struct {
	Policy Policy
	// AllowedHosts restricts source links; empty allows any host.
	AllowedHosts []string
	Observer     Observer
	Logger       *zerolog.Logger
}

// Pipeline is the default Extractor.
type Pipeline struct {
	backend Backend
	opts    Options
}

var _ Extractor = (*Pipeline)(nil)

// New creates a Pipeline over backend.
func New(backend Backend, opts Options) *Pipeline {
	if len(opts.Policy.Prefer) == 0 {
		opts.Policy.Prefer = DefaultPolicy().Prefer
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &Pipeline{backend: backend, opts: opts}
}

// Extract never returns an error: failures are folded into the result.
func (p *Pipeline) Extract(ctx context.Context, rawURL string) media.Result {
	start := time.Now()
	log := p.logger(ctx)

	res := p.resolve(ctx, rawURL, log)

	outcome := "ok"
	if !res.Success {
		outcome = string(res.Code)
	}
	if p.opts.Observer != nil {
		p.opts.Observer.ObserveExtraction(outcome, time.Since(start))
	}
	log.Info().
		Str("source", rawURL).
		Str("outcome", outcome).
		Str("type", res.Type.String()).
		Dur("elapsed", time.Since(start)).
		Msg("extraction finished")

	return res
}

func (p *Pipeline) resolve(ctx context.Context, rawURL string, log *zerolog.Logger) media.Result {
	u, err := httputil.ValidateSourceURL(rawURL, p.opts.AllowedHosts)
	if err != nil {
		return media.Failure(invalidInput(err))
	}

	resp, err := p.backend.Extract(ctx, u.String())
	if err != nil {
		log.Warn().Err(err).Bool("connectivity", engine.IsConnectivity(err)).Msg("extraction engine call failed")
		return media.Failure(media.NewError(media.BackendUnreachable, media.MsgBackendUnreachable, err))
	}

	return p.opts.Policy.Normalize(resp)
}

func invalidInput(err error) *media.Error {
	msg := "Invalid link."
	switch {
	case errors.Is(err, httputil.ErrEmptyURL):
		msg = "Invalid link: paste a post URL first."
	case errors.Is(err, httputil.ErrMalformedURL):
		msg = "Invalid link: not a valid URL."
	case errors.Is(err, httputil.ErrHostNotListed):
		msg = "Invalid link: this platform is not supported."
	}
	return media.NewError(media.InvalidInput, msg, err)
}

func (p *Pipeline) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return p.opts.Logger
}
