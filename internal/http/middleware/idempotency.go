// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for the POST routes that create
// resources (demandes, employees). It validates an Idempotency-Key request
// header, consults an IdempotencyStore for a previous result recorded under
// (actor, route, key), and annotates the request context so downstream
// handlers can:
//   - read the normalized key (GetIdempotencyKey)
//   - detect a replay and the id of the resource it produced (ReplayedResource)
//   - record the resource they just created (RememberResource)
//   - bypass rate limiting when a replay is served (via an internal flag)
//
// Mount it after RequireRole so the actor is the authenticated caller;
// anonymous callers are keyed by client IP.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on responses served from a
// previous result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey      = "idem.key"
	ctxKeyIdemReplay   = "idem.replay"   // string: resource id of the stored result
	ctxKeyIdemStore    = "idem.store"    // IdempotencyStore
	ctxKeyIdemScope    = "idem.scope"    // string: route the key is scoped to
	ctxKeyIdemActor    = "idem.actor"    // string: caller the key is scoped to
	ctxKeyRateBypass   = "rate.bypass"   // bool: true to skip rate limiting
	defaultIdemMaxLen  = 200
	defaultIdemPattern = `^[A-Za-z0-9._~\-:]+$`
)

// IdempotencyStore persists the resource produced under an idempotency key.
// TTL handling belongs to the implementation.
type IdempotencyStore interface {
	// Lookup returns the resource id stored for (actor, scope, key) when a
	// still-valid record exists.
	Lookup(ctx context.Context, actor, scope, key string, now time.Time) (resourceID string, found bool, err error)
	// Remember records resourceID for (actor, scope, key).
	Remember(ctx context.Context, actor, scope, key, resourceID string, status int) error
}

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// GetIdempotencyKey returns the validated key stored by Idempotency.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// ReplayedResource returns the resource id of a previous request with the same
// key, when there was one.
func ReplayedResource(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the request repeats a completed one.
func IsReplay(c *gin.Context) bool {
	_, ok := ReplayedResource(c)
	return ok
}

// MarkReplayed sets the Idempotency-Replayed response header.
func MarkReplayed(c *gin.Context) {
	c.Header(HeaderIdempotencyReplayed, "true")
}

// RememberResource records resourceID under the request's key. It is a no-op
// when the request carried no key. Failures are logged and otherwise ignored:
// the resource already exists and the client gets its response.
func RememberResource(c *gin.Context, resourceID string, status int) {
	key, ok := GetIdempotencyKey(c)
	if !ok {
		return
	}
	v, _ := c.Get(ctxKeyIdemStore)
	store, _ := v.(IdempotencyStore)
	if store == nil {
		return
	}
	scope, _ := c.Get(ctxKeyIdemScope)
	actor, _ := c.Get(ctxKeyIdemActor)
	if err := store.Remember(c.Request.Context(), asString(actor), asString(scope), key, resourceID, status); err != nil {
		LoggerFrom(c).Warn().Err(err).Str("idempotency_key", key).Msg("idempotency record not stored")
	}
}

// Idempotency validates the Idempotency-Key header (when present) and looks up
// a previous result for it.
//
//   - No header: no-op.
//   - Invalid header: 400 bad_idempotency_key.
//   - Stored result found: replay + rate-bypass flags are set and the handler
//     decides how to serve it.
//
// Lookup errors are logged and treated as "not found".
func Idempotency(opts IdempotencyOptions, store IdempotencyStore) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(defaultIdemPattern)
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

		scope := c.FullPath()
		actor := actorFromCtx(c)
		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemScope, scope)
		c.Set(ctxKeyIdemActor, actor)
		c.Set(ctxKeyIdemStore, store)

		if store != nil {
			id, found, err := store.Lookup(c.Request.Context(), actor, scope, key, time.Now().UTC())
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			case found:
				c.Set(ctxKeyIdemReplay, id)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// actorFromCtx returns the authenticated actor, or "anon:<ip>".
func actorFromCtx(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "anon:" + c.ClientIP()
}
