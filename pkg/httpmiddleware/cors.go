package httpmiddleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// CORSConfig configures CORS for the terminal UI.
type CORSConfig struct {
	// Origins allowed to call the API. "*" allows any origin, empty allows
	// none besides the API's own.
	Origins []string
	// Headers allowed on requests. Empty echoes the preflight request.
	Headers []string
	// Expose lists response headers readable by the browser.
	Expose []string
	// Credentials allows cookies; any-origin is then answered with the
	// caller's origin instead of "*".
	Credentials bool
	// MaxAge of preflight results in seconds, 0 omits the header.
	MaxAge int
}

const corsMethods = "GET, POST, PUT, DELETE, OPTIONS"

// CORS answers preflight requests and decorates actual cross-origin
// responses. State-changing requests from an origin that is neither listed
// nor the API's own are refused with 403 before reaching the handler.
func CORS(cfg CORSConfig) Middleware {
	anyOrigin := false
	allowed := make(map[string]string, len(cfg.Origins))
	for _, o := range cfg.Origins {
		if o == "*" {
			anyOrigin = true
			continue
		}
		allowed[strings.ToLower(o)] = o
	}
	headers := strings.Join(cfg.Headers, ", ")
	expose := strings.Join(cfg.Expose, ", ")

	origin := func(o string) string {
		switch {
		case anyOrigin && cfg.Credentials:
			return o
		case anyOrigin:
			return "*"
		default:
			return allowed[strings.ToLower(o)]
		}
	}
	sameOrigin := func(r *http.Request, o string) bool {
		u, err := url.Parse(o)
		return err == nil && u.Host != "" && strings.EqualFold(u.Host, r.Host)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			reqOrigin := r.Header.Get("Origin")
			if !anyOrigin || cfg.Credentials {
				h.Add("Vary", "Origin")
			}
			if reqOrigin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allow := origin(reqOrigin)
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if allow != "" {
				h.Set("Access-Control-Allow-Origin", allow)
				if cfg.Credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}
			if !preflight {
				if allow == "" && !safeMethod(r.Method) && !sameOrigin(r, reqOrigin) {
					h.Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusForbidden)
					_, _ = w.Write([]byte(`{"code":403,"message":"origin not allowed"}`))
					return
				}
				if allow != "" && expose != "" {
					h.Set("Access-Control-Expose-Headers", expose)
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			if allow != "" {
				h.Set("Access-Control-Allow-Methods", corsMethods)
				switch {
				case headers != "":
					h.Set("Access-Control-Allow-Headers", headers)
				case r.Header.Get("Access-Control-Request-Headers") != "":
					h.Set("Access-Control-Allow-Headers", r.Header.Get("Access-Control-Request-Headers"))
				}
				if cfg.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func safeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
