// Package download saves extracted media to disk through the media relay.
// The final name is reserved with an empty placeholder, the body is written to
// a temporary file in the target directory, and the temporary file replaces
// the placeholder only once the body arrived complete. An interrupted
// download removes both.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/EdvinCodes/offgrid/internal/httputil"
	"github.com/EdvinCodes/offgrid/internal/proxy"
)

// Source opens and streams remote media. *proxy.Relay satisfies it.
type Source interface {
	Open(ctx context.Context, target, rangeHeader string) (*proxy.Upstream, error)
	Copy(dst io.Writer, up *proxy.Upstream) (int64, error)
}

// Progress is called as bytes arrive. total is -1 when the size is unknown.
type Progress func(written, total int64)

// Request describes one file to save.
type Request struct {
	URL string
	// Name is the preferred filename; an extension is added from the
	// content type when it has none.
	Name     string
	Dir      string
	Progress Progress
}

// Save downloads req.URL into req.Dir and returns the final path.
func Save(ctx context.Context, src Source, req Request) (string, error) {
	absDir, err := filepath.Abs(req.Dir)
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	up, err := src.Open(ctx, req.URL, "")
	if err != nil {
		return "", err
	}

	name := proxy.AttachmentName(req.Name, up.ContentType)
	outputPath, err := reserve(absDir, name)
	if err != nil {
		up.Body.Close()
		return "", fmt.Errorf("reserving output path: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			os.Remove(outputPath)
		}
	}()

	tmp, err := os.CreateTemp(absDir, ".offgrid-*.part")
	if err != nil {
		up.Body.Close()
		return "", fmt.Errorf("creating temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	var dst io.Writer = tmp
	if req.Progress != nil {
		dst = &progressWriter{w: tmp, total: up.ContentLength, fn: req.Progress}
	}
	if _, err := src.Copy(dst, up); err != nil {
		tmp.Close()
		return "", fmt.Errorf("downloading %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("flushing %s: %w", name, err)
	}
	// The placeholder at outputPath belongs to this call, so replacing it is safe.
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return "", fmt.Errorf("moving download into place: %w", err)
	}
	committed = true

	return outputPath, nil
}

// SaveAll downloads every request with at most limit transfers in flight.
// The first failure cancels the remaining transfers. Paths are returned in
// request order.
func SaveAll(ctx context.Context, src Source, reqs []Request, limit int) ([]string, error) {
	paths := make([]string, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, req := range reqs {
		g.Go(func() error {
			p, err := Save(ctx, src, req)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// reserve claims a file name in dir that did not exist yet by creating an
// empty placeholder, appending " (n)" before the extension when needed.
// Concurrent downloads of the same name therefore never share a path.
func reserve(dir, name string) (string, error) {
	first, err := httputil.SafeDownloadPath(dir, name)
	if err != nil {
		return "", err
	}
	ext := filepath.Ext(first)
	stem := strings.TrimSuffix(filepath.Base(first), ext)

	p := first
	for i := 1; i < 1000; i++ {
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			if cerr := f.Close(); cerr != nil {
				os.Remove(p)
				return "", cerr
			}
			return p, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
		p, err = httputil.SafeDownloadPath(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("too many files named %q in %s", name, dir)
}

type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	fn      Progress
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.fn(p.written, p.total)
	return n, err
}
