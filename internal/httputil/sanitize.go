package httputil

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// maxURLLength caps accepted URLs; anything longer is not a real post link.
const maxURLLength = 4096

// Validation failures for source URLs.
var (
	ErrEmptyURL      = errors.New("no link provided")
	ErrMalformedURL  = errors.New("not a well-formed absolute URL")
	ErrHostNotListed = errors.New("host is not a supported platform")
)

// ValidateURL checks that a URL is well-formed, absolute and uses HTTP(S).
func ValidateURL(rawURL string) error {
	if len(rawURL) > maxURLLength {
		return fmt.Errorf("URL too long: %d characters", len(rawURL))
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("only HTTP(S) URLs are allowed, got %q", u.Scheme)
	}
	if u.Host == "" || u.Hostname() == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// ValidateSourceURL checks a user-submitted post link before any network
// call. When allowedHosts is non-empty, the host must equal one of the
// entries or be a subdomain of one. The returned error wraps one of
// ErrEmptyURL, ErrMalformedURL or ErrHostNotListed.
func ValidateSourceURL(raw string, allowedHosts []string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyURL
	}
	if err := ValidateURL(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	u, _ := url.Parse(raw)

	if len(allowedHosts) > 0 && !HostAllowed(u.Hostname(), allowedHosts) {
		return nil, fmt.Errorf("%w: %q", ErrHostNotListed, u.Hostname())
	}
	return u, nil
}

// HostAllowed reports whether host equals or is a subdomain of an entry in allowed.
func HostAllowed(host string, allowed []string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, a := range allowed {
		a = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(a)), ".")
		if a == "" {
			continue
		}
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

// WithQuery returns base with key=value added to its query string.
func WithQuery(base, key, value string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", base, err)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SanitizeFilename removes path traversal and dangerous characters from a filename.
// Returns just the base name, stripped of any directory components.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)

	replacer := strings.NewReplacer(
		"..", "_",
		"/", "_",
		"\\", "_",
		"\x00", "",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		"\n", " ",
		"\r", " ",
		"\t", " ",
	)
	name = strings.TrimSpace(replacer.Replace(name))

	if name == "" || name == "." || name == ".." {
		return "untitled"
	}

	// Keep room for an extension within the common 255-byte limit.
	for len(name) > 200 {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}

	return name
}

// SafeDownloadPath resolves and validates a download path ensuring it stays within the target directory.
func SafeDownloadPath(dir, filename string) (string, error) {
	sanitized := SanitizeFilename(filename)

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	full := filepath.Join(absDir, sanitized)

	resolved, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	if !strings.HasPrefix(resolved, absDir+string(filepath.Separator)) && resolved != absDir {
		return "", fmt.Errorf("path traversal detected: %q escapes %q", resolved, absDir)
	}

	return resolved, nil
}
