package handlers

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// APIKeyHeader is the header carrying the API key.
const APIKeyHeader = "X-API-Key"

const (
	// verifiedKeyTTL is how long a key that passed bcrypt skips the comparison.
	verifiedKeyTTL = 5 * time.Minute
	// maxVerifiedKeys bounds the verified-key cache.
	maxVerifiedKeys = 1024
)

// APIKeyAuth accepts requests whose key matches one of the configured bcrypt
// hashes. Plain keys are never stored: accepted keys are remembered only as
// SHA-256 digests for verifiedKeyTTL.
type APIKeyAuth struct {
	hashes  [][]byte
	onError func(w http.ResponseWriter, r *http.Request, status int, code, message string)

	mu       sync.Mutex
	verified map[[sha256.Size]byte]time.Time
	now      func() time.Time
}

// NewAPIKeyAuth creates an authenticator. With no hashes every request passes.
func NewAPIKeyAuth(hashes []string, onError func(w http.ResponseWriter, r *http.Request, status int, code, message string)) *APIKeyAuth {
	a := &APIKeyAuth{
		onError:  onError,
		verified: make(map[[sha256.Size]byte]time.Time),
		now:      time.Now,
	}
	for _, h := range hashes {
		if h = strings.TrimSpace(h); h != "" {
			a.hashes = append(a.hashes, []byte(h))
		}
	}
	return a
}

// Enabled reports whether any key is configured.
func (a *APIKeyAuth) Enabled() bool { return len(a.hashes) > 0 }

// IsValid checks key against every configured hash.
func (a *APIKeyAuth) IsValid(key string) bool {
	digest := sha256.Sum256([]byte(key))
	now := a.now()

	a.mu.Lock()
	expires, ok := a.verified[digest]
	a.mu.Unlock()
	if ok && now.Before(expires) {
		return true
	}

	for _, h := range a.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			a.remember(digest, now)
			return true
		}
	}
	return false
}

func (a *APIKeyAuth) remember(digest [sha256.Size]byte, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.verified) >= maxVerifiedKeys {
		for d, expires := range a.verified {
			if !now.Before(expires) {
				delete(a.verified, d)
			}
		}
		if len(a.verified) >= maxVerifiedKeys {
			clear(a.verified)
		}
	}
	a.verified[digest] = now.Add(verifiedKeyTTL)
}

// Middleware rejects requests without a valid key.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)

		// Also check Authorization header with Bearer scheme
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		switch {
		case key == "":
			a.reject(w, r, "missing_api_key", "API key is required")
		case !a.IsValid(key):
			a.reject(w, r, "invalid_api_key", "Invalid API key")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (a *APIKeyAuth) reject(w http.ResponseWriter, r *http.Request, code, message string) {
	if a.onError != nil {
		a.onError(w, r, http.StatusUnauthorized, code, message)
		return
	}
	http.Error(w, `{"error":"`+code+`","message":"`+message+`"}`, http.StatusUnauthorized)
}
