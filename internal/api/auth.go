package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/kanbanhq/kanban/internal/config"
	"github.com/kanbanhq/kanban/internal/service"
	"github.com/kanbanhq/kanban/internal/storage"
)

type clientKeyCtx struct{}

// clientKey returns the rate-limit identity for the request: the API
// key digest when authenticated, the remote address otherwise.
func clientKey(r *http.Request) string {
	if v, ok := r.Context().Value(clientKeyCtx{}).(string); ok {
		return v
	}
	return r.RemoteAddr
}

// authenticator verifies API keys against HMAC-SHA256 digests so raw
// keys are never held after construction.
type authenticator struct {
	secret  []byte
	digests [][]byte
}

func newAuthenticator(cfg config.AuthConfig) *authenticator {
	if !cfg.Enabled() {
		return nil
	}
	a := &authenticator{secret: []byte(cfg.Secret)}
	for _, key := range cfg.Keys {
		a.digests = append(a.digests, a.digest(key))
	}
	return a
}

func (a *authenticator) digest(key string) []byte {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// verify returns the matched digest in hex form, or false.
func (a *authenticator) verify(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	d := a.digest(key)
	for _, known := range a.digests {
		if hmac.Equal(d, known) {
			return string(known), true
		}
	}
	return "", false
}

// requestKey extracts the presented API key from the Authorization
// bearer header or X-API-Key.
func requestKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if key, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(key)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// authenticate rejects requests without a valid key when auth is
// configured. Keys come from the static config list or from issued
// records in the database. The matched identity is stashed for rate
// limiting.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := requestKey(r)
		identity, ok := s.auth.verify(key)
		if !ok {
			identity, ok = s.verifyIssuedKey(r.Context(), key)
		}
		if !ok {
			respondErr(w, r, service.Unauthorized("missing or invalid API key"))
			return
		}
		ctx := context.WithValue(r.Context(), clientKeyCtx{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verifyIssuedKey checks the presented key against issued records and
// stamps last_used_at on a match.
func (s *Server) verifyIssuedKey(ctx context.Context, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	hash := hex.EncodeToString(s.auth.digest(key))
	rec, err := s.store.GetAPIKeyByHash(ctx, hash)
	if err != nil || rec.Expired(time.Now()) {
		return "", false
	}
	// Best effort; a failed stamp must not reject the request.
	_ = s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.TouchAPIKey(ctx, rec.ID, time.Now().UTC())
	})
	return hash, true
}
