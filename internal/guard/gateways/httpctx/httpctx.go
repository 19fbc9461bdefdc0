// Package httpctx adapts net/http requests to the firewall. It resolves the
// RequestContext from a request and provides a middleware that rejects denied
// requests before they reach the wrapped handler.
package httpctx

import (
	"net"
	"net/http"
	"strings"
	"time"

	logpkg "github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/cache"
	"github.com/haukened/rr-guard/internal/guard/repos/rules"
	"github.com/haukened/rr-guard/internal/guard/services/firewall"
	"github.com/haukened/rr-guard/internal/guard/services/matcher"
)

// addressHeaders are consulted in order before falling back to the peer address.
var addressHeaders = []string{
	"Client-IP",
	"X-Forwarded-For",
	"X-Forwarded",
	"Forwarded-For",
	"Forwarded",
}

// Resolve builds the RequestContext of r: the first non-empty address header,
// else the peer address, and the raw query string.
func Resolve(r *http.Request) domain.RequestContext {
	return domain.RequestContext{Address: clientAddress(r), Query: r.URL.RawQuery}
}

func clientAddress(r *http.Request) string {
	for _, h := range addressHeaders {
		if v := firstHop(r.Header.Get(h)); v != "" {
			return v
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// firstHop returns the client entry of a proxy header list. The Forwarded
// header's "for=" parameter is unwrapped.
func firstHop(v string) string {
	v, _, _ = strings.Cut(v, ",")
	v = strings.TrimSpace(v)
	for _, part := range strings.Split(v, ";") {
		part = strings.TrimSpace(part)
		if len(part) > 4 && strings.EqualFold(part[:4], "for=") {
			return strings.Trim(part[4:], `"`)
		}
	}
	return v
}

// Settings are shared by every request the middleware handles.
type Settings struct {
	Registry *rules.Registry
	Cache    cache.Driver
	Matcher  *matcher.Matcher
	TTL      time.Duration
	Logger   logpkg.Logger
}

// Middleware returns a handler wrapper that builds a Firewall per request and
// answers denied requests with 403. An engine failure yields 500.
func Middleware(s Settings) func(http.Handler) http.Handler {
	logger := logpkg.OrNoop(s.Logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fw, err := firewall.New(firewall.Options{
				Context:  Resolve(r),
				Registry: s.Registry,
				Cache:    s.Cache,
				Matcher:  s.Matcher,
				TTL:      s.TTL,
				Logger:   logger,
			})
			if err != nil {
				logger.Error(map[string]any{"error": err.Error()}, "firewall_init_failed")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			halted, err := fw.RejectWithResponse(r.Context(), w)
			if err != nil {
				logger.Error(map[string]any{"address": fw.Address(), "error": err.Error()}, "firewall_decision_failed")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if halted {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
