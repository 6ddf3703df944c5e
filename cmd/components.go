package cmd

import (
	"github.com/rs/zerolog"

	"github.com/EdvinCodes/offgrid/internal/config"
	"github.com/EdvinCodes/offgrid/internal/engine"
	"github.com/EdvinCodes/offgrid/internal/extract"
	"github.com/EdvinCodes/offgrid/internal/media"
	"github.com/EdvinCodes/offgrid/internal/metrics"
	"github.com/EdvinCodes/offgrid/internal/proxy"
)

// components are the pipeline pieces every command shares.
type components struct {
	pipeline *extract.Pipeline
	relay    *proxy.Relay
}

// newComponents wires the engine client, pipeline and relay from c. m may be nil.
func newComponents(c *config.Config, log *zerolog.Logger, m *metrics.Metrics) *components {
	client := engine.New(engine.Options{
		Endpoint:      c.Engine.URL,
		Method:        c.Engine.Method,
		QueryParam:    c.Engine.QueryParam,
		AuthHeader:    c.Engine.AuthHeader,
		Token:         c.Engine.Token,
		Timeout:       c.Engine.Timeout.Duration,
		QuotaStatuses: c.Engine.QuotaStatuses,
		Logger:        log,
	}, nil)

	extractOpts := extract.Options{
		Policy:       policyFrom(c),
		AllowedHosts: c.Validator.AllowedHosts,
		Logger:       log,
	}
	relayOpts := proxy.Options{
		Referer:       c.Proxy.Referer,
		UserAgent:     c.Proxy.UserAgent,
		HeaderTimeout: c.Proxy.HeaderTimeout.Duration,
		IdleTimeout:   c.Proxy.IdleTimeout.Duration,
		AllowPrivate:  c.Proxy.AllowPrivate,
		BufferSize:    c.Proxy.BufferSize,
		Logger:        log,
	}
	if m != nil {
		extractOpts.Observer = m
		relayOpts.Observer = m
	}

	return &components{
		pipeline: extract.New(client, extractOpts),
		relay:    proxy.New(relayOpts, nil),
	}
}

func policyFrom(c *config.Config) extract.Policy {
	p := extract.DefaultPolicy()
	p.Prefer = p.Prefer[:0]
	for _, name := range c.Normalize.Prefer {
		if t, ok := media.ParseMediaType(name); ok {
			p.Prefer = append(p.Prefer, t)
		}
	}
	if len(c.Engine.QuotaStatuses) > 0 {
		p.QuotaStatuses = c.Engine.QuotaStatuses
	}
	if len(c.Engine.QuotaCodes) > 0 {
		p.QuotaCodes = c.Engine.QuotaCodes
	}
	return p
}
