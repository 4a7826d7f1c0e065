package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/luminalabs/keygate/internal/api/http/dto"
	"github.com/luminalabs/keygate/internal/auth"
	"github.com/luminalabs/keygate/internal/identity"
	"github.com/luminalabs/keygate/internal/metrics"
	"github.com/luminalabs/keygate/internal/pending"
)

type TokenHandler struct {
	pending     *pending.Store
	jwtCfg      auth.JWTConfig
	redirectURL string
}

func NewTokenHandler(pendingStore *pending.Store, jwtCfg auth.JWTConfig, redirectURL string) *TokenHandler {
	return &TokenHandler{
		pending:     pendingStore,
		jwtCfg:      jwtCfg,
		redirectURL: redirectURL,
	}
}

// Issue opens a verification flow and returns the signed bootstrap token the
// client carries through the upstream platform and back.
func (h *TokenHandler) Issue(ctx *gin.Context) {
	id := identity.FromRequest(ctx.Request)

	v, err := h.pending.Start(id.IP)
	if err != nil {
		if errors.Is(err, pending.ErrVerificationPending) {
			ctx.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Error:   dto.ErrVerificationPending,
				Message: "a verification is already in progress for this client",
			})
			return
		}
		slog.Error("Failed to start verification", "error", err)
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: dto.ErrSystemError,
		})
		return
	}

	token, err := auth.GenerateToken(h.jwtCfg, v.ID, v.ExpiresAt)
	if err != nil {
		slog.Error("Failed to sign verification token", "error", err)
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: dto.ErrSystemError,
		})
		return
	}

	metrics.VerificationsStarted.Inc()
	ctx.JSON(http.StatusOK, dto.TokenResponse{
		Success:        true,
		Token:          token,
		VerificationID: v.ID,
		Expires:        v.ExpiresAt,
		RedirectURL:    h.redirect(token),
	})
}

// redirect appends the token to the configured upstream locker URL so the
// platform can hand it back on its success callback.
func (h *TokenHandler) redirect(token string) string {
	if h.redirectURL == "" {
		return ""
	}
	u, err := url.Parse(h.redirectURL)
	if err != nil {
		slog.Warn("Invalid upstream redirect URL configured", "error", err)
		return ""
	}
	q := u.Query()
	q.Set("ref", token)
	u.RawQuery = q.Encode()
	return u.String()
}
