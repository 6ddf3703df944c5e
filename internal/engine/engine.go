// Package engine talks to the external extraction engine: one request per
// call, no retry and no caching, so a repeated extraction always reflects
// the engine's current view of the post.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/EdvinCodes/offgrid/internal/httputil"
	"github.com/EdvinCodes/offgrid/internal/media"
)

// maxResponseSize caps how much of the engine's reply is read.
const maxResponseSize = 4 * 1024 * 1024

// ConnectivityError reports a transport-level failure talking to the engine:
// refused connection, timeout, or an unexpected non-2xx status. It is
// distinct from a logical failure the engine reports in its body.
type ConnectivityError struct {
	Endpoint   string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *ConnectivityError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("engine %s answered status %d", e.Endpoint, e.StatusCode)
	case e.Timeout:
		return fmt.Sprintf("engine %s timed out: %v", e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("engine %s unreachable: %v", e.Endpoint, e.Err)
	}
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err is a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// Options configures a Client.
type Options struct {
	// Endpoint is the engine's full extraction address.
	Endpoint string
	// Method is POST (JSON body {"url": ...}) or GET (URL in QueryParam).
	Method     string
	QueryParam string
	// AuthHeader and Token inject a credential. With the Authorization
	// header the token is sent as a bearer token; other headers get it verbatim.
	AuthHeader string
	Token      string
	Timeout    time.Duration
	// QuotaStatuses are non-2xx statuses that carry a quota signal and are
	// decoded rather than treated as connectivity failures.
	QuotaStatuses []int
	Logger        *zerolog.Logger
}

// Client issues extraction requests to the engine.
type Client struct {
	opts   Options
	client *http.Client
	quota  map[int]bool
}

// New creates a Client. A nil httpClient gets a hardened default bounded by opts.Timeout.
func New(opts Options, httpClient *http.Client) *Client {
	opts.Method = strings.ToUpper(opts.Method)
	if opts.Method == "" {
		opts.Method = http.MethodPost
	}
	if opts.QueryParam == "" {
		opts.QueryParam = "url"
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if httpClient == nil {
		httpClient = httputil.NewClient(httputil.ClientOptions{
			Timeout:       opts.Timeout,
			HeaderTimeout: opts.Timeout,
		})
	}
	quota := make(map[int]bool, len(opts.QuotaStatuses))
	for _, s := range opts.QuotaStatuses {
		quota[s] = true
	}
	return &Client{opts: opts, client: httpClient, quota: quota}
}

// Endpoint returns the configured engine address.
func (c *Client) Endpoint() string {
	return c.opts.Endpoint
}

type extractRequest struct {
	URL string `json:"url"`
}

// Extract sends sourceURL to the engine and returns its decoded reply.
// Transport failures come back as *ConnectivityError; a reply on a quota
// status is returned as a response with StatusCode set.
func (c *Client) Extract(ctx context.Context, sourceURL string) (*media.BackendResponse, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, sourceURL)
	if err != nil {
		return nil, &ConnectivityError{Endpoint: c.opts.Endpoint, Err: err}
	}

	log := zerolog.Ctx(ctx)
	if log.GetLevel() == zerolog.Disabled {
		log = c.opts.Logger
	}
	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("endpoint", c.opts.Endpoint).Msg("engine request failed")
		return nil, &ConnectivityError{
			Endpoint: c.opts.Endpoint,
			Timeout:  httputil.IsTimeout(err),
			Err:      err,
		}
	}
	defer resp.Body.Close()

	log.Debug().
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Str("endpoint", c.opts.Endpoint).
		Msg("engine responded")

	quota := c.quota[resp.StatusCode]
	if (resp.StatusCode < 200 || resp.StatusCode > 299) && !quota {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil, &ConnectivityError{Endpoint: c.opts.Endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &ConnectivityError{
			Endpoint: c.opts.Endpoint,
			Timeout:  httputil.IsTimeout(err),
			Err:      fmt.Errorf("reading response: %w", err),
		}
	}

	out := &media.BackendResponse{}
	if err := json.Unmarshal(body, out); err != nil {
		if !quota {
			return nil, &ConnectivityError{
				Endpoint: c.opts.Endpoint,
				Err:      fmt.Errorf("decoding response: %w", err),
			}
		}
		// Quota replies are often plain text; the status alone is the signal.
		out = &media.BackendResponse{}
	}
	out.StatusCode = resp.StatusCode

	return out, nil
}

func (c *Client) newRequest(ctx context.Context, sourceURL string) (*http.Request, error) {
	var req *http.Request
	switch c.opts.Method {
	case http.MethodGet:
		target, err := httputil.WithQuery(c.opts.Endpoint, c.opts.QueryParam, sourceURL)
		if err != nil {
			return nil, err
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
	case http.MethodPost:
		payload, err := json.Marshal(extractRequest{URL: sourceURL})
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
	default:
		return nil, fmt.Errorf("unsupported method %q", c.opts.Method)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")

	if c.opts.Token != "" {
		header := c.opts.AuthHeader
		if header == "" {
			header = "Authorization"
		}
		value := c.opts.Token
		if strings.EqualFold(header, "Authorization") && !strings.Contains(value, " ") {
			value = "Bearer " + value
		}
		req.Header.Set(header, value)
	}

	return req, nil
}
