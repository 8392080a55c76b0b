// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for the admin send endpoints
// (broadcast, admin preview, resend). Dispatching a newsletter is not
// naturally idempotent, so a client retrying after a timeout could otherwise
// mail every subscriber twice. The flow is split in two:
//
//   - IdempotencyValidator (global) validates the Idempotency-Key header,
//     derives the request scope, and looks up a stored response. On a hit it
//     marks the request as a replay and flags it for rate-limit bypass.
//   - Idempotent (per route) serves the stored response for replays and, for
//     fresh requests, records the handler's 2xx response under (scope, key).
//
// Persistence stays outside the package behind two function types.
package middleware

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the canonical request header that clients use to
// convey an idempotency key for unsafe operations (e.g., POST).
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemScope  = "idem.scope"
	ctxKeyIdemReplay = "idem.replay" // *StoredResponse when a replay exists
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

// StoredResponse is a previously completed response eligible for replay.
type StoredResponse struct {
	Status int
	Body   []byte
}

// IdempotencyLookup returns the stored response for (scope, key) when one is
// still valid at now, or nil when there is none. Errors are treated as misses.
type IdempotencyLookup func(ctx context.Context, scope, key string, now time.Time) (*StoredResponse, error)

// IdempotencyRecorder persists a completed response under (scope, key).
type IdempotencyRecorder func(ctx context.Context, scope, key string, status int, body []byte) error

// IdempotencyOptions configures header validation for IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, a conservative RFC7230-like
	// token pattern is used: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether a stored response exists for this request.
func IsReplay(c *gin.Context) bool {
	return replayOf(c) != nil
}

func replayOf(c *gin.Context) *StoredResponse {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return nil
	}
	r, _ := v.(*StoredResponse)
	return r
}

// IdempotencyScope identifies the operation a key applies to: the method and
// the concrete request path including the query string. The same key sent to
// a different subject or issue is therefore a different operation.
func IdempotencyScope(c *gin.Context) string {
	scope := c.Request.Method + " " + c.Request.URL.Path
	if q := c.Request.URL.RawQuery; q != "" {
		scope += "?" + q
	}
	return scope
}

// IdempotencyValidator validates the Idempotency-Key header (if present),
// stashes it with the request scope, and for unsafe methods consults lookup.
//
// Behavior:
//   - If header is absent: the middleware is a no-op.
//   - If header fails validation: responds 400 with a compact error body.
//   - If lookup finds a stored response: sets replay + rate-bypass flags.
//   - Always invokes the next handler unless validation fails.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		scope := IdempotencyScope(c)
		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemScope, scope)

		if lookup != nil && c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			if rec, err := lookup(c.Request.Context(), scope, key, time.Now().UTC()); err == nil && rec != nil {
				c.Set(ctxKeyIdemReplay, rec)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// bodyRecorder tees everything the handler writes so it can be stored.
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotent replays a stored response when IdempotencyValidator found one,
// and otherwise records the route's 2xx response. Requests without a key pass
// through untouched. Recording failures are logged and never change the
// response already sent.
func Idempotent(record IdempotencyRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := GetIdempotencyKey(c)
		if !ok {
			c.Next()
			return
		}
		if rec := replayOf(c); rec != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(rec.Status, "application/json; charset=utf-8", rec.Body)
			c.Abort()
			return
		}

		w := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if record == nil || status < 200 || status >= 300 {
			return
		}
		scope, _ := c.Get(ctxKeyIdemScope)
		if err := record(c.Request.Context(), asString(scope), key, status, w.buf.Bytes()); err != nil {
			LoggerFrom(c).Warn().Err(err).Str("idempotency_key", key).Msg("idempotency record not stored")
		}
	}
}
