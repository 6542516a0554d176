package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/topup-engine/internal/domain/auth"
	"github.com/xenking/topup-engine/pkg/httpmiddleware"
)

// HeaderAPIKey carries the caller's API key.
const HeaderAPIKey = "api_key"

// SecurityHandler authenticates requests by HMAC-SHA256 hashed API keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate resolves the api_key header to a principal and stores it in
// the request context. Requests without a valid key get 401.
func (s *SecurityHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			unauthorized(w, "missing api key")
			return
		}

		hash := auth.HashKey(key, s.pepper)
		info, err := s.apikeys.FindByHash(r.Context(), hash)
		if err != nil {
			zctx.From(r.Context()).Debug("API key rejected", zap.Error(err))
			unauthorized(w, "invalid api key")
			return
		}

		// The stored hash must match even if the lookup matched loosely.
		stored, err := hex.DecodeString(info.KeyHash)
		computed, _ := hex.DecodeString(hash)
		if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
			unauthorized(w, "invalid api key")
			return
		}

		p := info.Principal()
		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.Int64("user_id", p.UserID), zap.String("role", string(p.Role)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	httpmiddleware.WriteError(w, http.StatusUnauthorized, "authorization", msg)
}
