package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"runcore/internal/auth"
	"runcore/internal/httpapi/middleware"
	"runcore/internal/platform/apperror"
)

// loginRequest is the already-verified provider identity spec §6.2 accepts:
// real provider token verification (Apple/Google/Kakao/Naver) is an
// out-of-scope collaborator per spec §1, so this endpoint trusts the
// caller to have done that and hands over the resulting identity directly.
type loginRequest struct {
	Provider   auth.Provider `json:"provider"`
	ExternalID string        `json:"external_id"`
	Nickname   string        `json:"nickname"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresInS   int64  `json:"expires_in"`
	UserID       string `json:"user_id,omitempty"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ExternalID == "" {
		apperror.WriteHTTP(w, apperror.NewWithField(apperror.CodeValidation, "external_id is required", "external_id"))
		return
	}
	switch req.Provider {
	case auth.ProviderApple, auth.ProviderGoogle, auth.ProviderKakao, auth.ProviderNaver:
	default:
		apperror.WriteHTTP(w, apperror.NewWithField(apperror.CodeValidation, "unsupported provider", "provider"))
		return
	}

	pair, userID, err := h.deps.Auth.Login(r.Context(), auth.ProviderIdentity{
		Provider:   req.Provider,
		ExternalID: req.ExternalID,
		Nickname:   req.Nickname,
	})
	if err != nil {
		apperror.WriteHTTP(w, apperror.Wrap(err, apperror.CodeInternal, "login failed"))
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresInS:   pair.ExpiresInS,
		UserID:       userID.String(),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		apperror.WriteHTTP(w, apperror.NewWithField(apperror.CodeValidation, "refresh_token is required", "refresh_token"))
		return
	}

	pair, err := h.deps.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrReuseDetected) || errors.Is(err, auth.ErrNotFound) {
			apperror.WriteHTTP(w, apperror.ErrAuthExpired)
			return
		}
		apperror.WriteHTTP(w, apperror.Wrap(err, apperror.CodeInternal, "refresh failed"))
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresInS:   pair.ExpiresInS,
	})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.deps.Auth.Logout(r.Context(), req.RefreshToken); err != nil {
		apperror.WriteHTTP(w, apperror.Wrap(err, apperror.CodeInternal, "logout failed"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// currentUserID reads the caller's id injected by middleware.Auth. It
// never fails in a protected route group, since the middleware already
// rejected unauthenticated requests.
func currentUserID(r *http.Request) (uuid.UUID, bool) {
	return middleware.UserID(r.Context())
}
