// Package cookies extracts session cookies from a running BrowserOS over CDP.
package cookies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrCookiesMissing means the browser is reachable but not logged in to the origin.
var ErrCookiesMissing = errors.New("cookies not found")

// Cookie is the subset of a browser cookie used for matching and extraction.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
	Secure bool
}

// Value is one extracted cookie.
type Value struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Source lists every cookie of the browser listening on port.
type Source interface {
	Cookies(ctx context.Context, port int) ([]Cookie, error)
}

// PortSource yields the remote-debugging port.
type PortSource interface {
	Find(ctx context.Context) (int, error)
}

// RodSource connects with Rod and reads cookies of the default browser context.
type RodSource struct{}

func (RodSource) Cookies(ctx context.Context, port int) ([]Cookie, error) {
	wsURL, err := launcher.ResolveURL(fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("resolve debugger url: %w", err)
	}

	ws := &cdp.WebSocket{}
	if err := ws.Connect(ctx, wsURL, nil); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	// Closing the socket detaches without closing the user's browser.
	defer func() { _ = ws.Close() }()

	browser := rod.New().Client(cdp.New().Start(ws)).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	raw, err := browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
			Secure: c.Secure,
		})
	}
	return out, nil
}

// Reader extracts named cookies for one origin.
type Reader struct {
	ports  PortSource
	source Source
	origin string
	names  []string
	logger *slog.Logger
}

func NewReader(ports PortSource, source Source, origin string, names []string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{ports: ports, source: source, origin: origin, names: names, logger: logger}
}

// Extract returns the configured cookies in order, failing if any is absent.
func (r *Reader) Extract(ctx context.Context) ([]Value, error) {
	port, err := r.ports.Find(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("reading cookies", "port", port, "origin", r.origin)

	all, err := r.source.Cookies(ctx, port)
	if err != nil {
		return nil, fmt.Errorf("connecting to BrowserOS at http://127.0.0.1:%d: %w", port, err)
	}
	matching, err := ForOrigin(all, r.origin)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]string, len(matching))
	available := make([]string, 0, len(matching))
	for _, c := range matching {
		if _, dup := byName[c.Name]; !dup {
			available = append(available, c.Name)
		}
		byName[c.Name] = c.Value
	}

	values := make([]Value, 0, len(r.names))
	var missing []string
	for _, name := range r.names {
		v, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		values = append(values, Value{Name: name, Value: v})
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s missing for %s; make sure you are logged in there in BrowserOS (available: %s)",
			ErrCookiesMissing, strings.Join(missing, ", "), r.origin, strings.Join(available, ", "))
	}
	return values, nil
}

// ForOrigin keeps the cookies a browser would send to origin.
func ForOrigin(all []Cookie, origin string) ([]Cookie, error) {
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid origin %q", origin)
	}
	host := strings.ToLower(u.Hostname())
	path := u.Path
	if path == "" {
		path = "/"
	}

	var out []Cookie
	for _, c := range all {
		if c.Secure && u.Scheme != "https" {
			continue
		}
		if !domainMatches(host, c.Domain) || !pathMatches(path, c.Path) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func domainMatches(host, domain string) bool {
	domain = strings.ToLower(domain)
	if domain == "" {
		return false
	}
	if strings.HasPrefix(domain, ".") {
		bare := domain[1:]
		return host == bare || strings.HasSuffix(host, domain)
	}
	return host == domain
}

func pathMatches(reqPath, cookiePath string) bool {
	if cookiePath == "" || cookiePath == "/" || reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}
