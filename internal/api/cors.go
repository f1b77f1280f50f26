package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// frameSequenceHeader carries the driver sequence number of a served frame.
// Browsers hide it from scripts unless CORS exposes it.
const frameSequenceHeader = "X-Frame-Sequence"

// corsPolicy holds the rendered CORS response headers. The API only reads,
// so preflights never need more than GET.
type corsPolicy struct {
	origin  string
	headers map[string]string
}

func newCORSPolicy(origin string) corsPolicy {
	if origin == "" {
		origin = "*"
	}
	return corsPolicy{
		origin: origin,
		headers: map[string]string{
			"Access-Control-Allow-Methods":  strings.Join([]string{http.MethodGet, http.MethodOptions}, ", "),
			"Access-Control-Allow-Headers":  "Authorization, Accept, Origin, Last-Event-ID",
			"Access-Control-Expose-Headers": frameSequenceHeader,
			"Access-Control-Max-Age":        strconv.Itoa(86400),
		},
	}
}

func (p corsPolicy) apply(set func(name, value string)) {
	set("Access-Control-Allow-Origin", p.origin)
	if p.origin != "*" {
		set("Vary", "Origin")
	}
	for name, value := range p.headers {
		set(name, value)
	}
}

// middleware adds CORS headers to every huma response.
func (p corsPolicy) middleware(ctx huma.Context, next func(huma.Context)) {
	p.apply(ctx.SetHeader)
	if ctx.Method() == http.MethodOptions {
		ctx.SetStatus(http.StatusNoContent)
		return
	}
	next(ctx)
}

// registerPreflight answers OPTIONS on the mux, since huma routes only
// the methods an operation declares.
func (p corsPolicy) registerPreflight(mux *http.ServeMux) {
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		p.apply(w.Header().Set)
		w.WriteHeader(http.StatusNoContent)
	})
}
