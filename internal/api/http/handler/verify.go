package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luminalabs/keygate/internal/admission"
	"github.com/luminalabs/keygate/internal/api/http/dto"
	"github.com/luminalabs/keygate/internal/auth"
	"github.com/luminalabs/keygate/internal/identity"
	"github.com/luminalabs/keygate/internal/keystore"
	"github.com/luminalabs/keygate/internal/metrics"
	"github.com/luminalabs/keygate/internal/notify"
	"github.com/luminalabs/keygate/internal/pending"
)

type VerifyHandler struct {
	keys     *keystore.Store
	pending  *pending.Store
	engine   *admission.Engine
	notifier notify.Notifier
	jwtCfg   auth.JWTConfig
}

func NewVerifyHandler(keys *keystore.Store, pendingStore *pending.Store, engine *admission.Engine, notifier notify.Notifier, jwtCfg auth.JWTConfig) *VerifyHandler {
	return &VerifyHandler{
		keys:     keys,
		pending:  pendingStore,
		engine:   engine,
		notifier: notifier,
		jwtCfg:   jwtCfg,
	}
}

// Verify is one resource with two sub-actions dispatched by query parameter:
// key=... validates an existing key, token=... completes a verification flow
// and obtains (or reuses) a key.
func (h *VerifyHandler) Verify(ctx *gin.Context) {
	if key := ctx.Query("key"); key != "" {
		h.validateKey(ctx, key)
		return
	}
	if token := ctx.Query("token"); token != "" {
		h.completeVerification(ctx, token)
		return
	}
	ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   dto.ErrMalformedInput,
		Message: "missing key or token parameter",
	})
}

func (h *VerifyHandler) validateKey(ctx *gin.Context, key string) {
	cred, err := h.keys.Validate(key)
	if err != nil {
		metrics.Validations.WithLabelValues(validationResult(err)).Inc()
		ctx.JSON(http.StatusForbidden, dto.ErrorResponse{
			Error:   dto.ErrAccessDenied,
			Message: err.Error(),
		})
		return
	}

	metrics.Validations.WithLabelValues("valid").Inc()
	ctx.JSON(http.StatusOK, dto.ValidateResponse{
		Success: true,
		Data: dto.KeyData{
			CreatedAt: cred.CreatedAt,
			ExpiresAt: cred.ExpiresAt,
			Uses:      cred.Uses,
		},
	})
}

func (h *VerifyHandler) completeVerification(ctx *gin.Context, token string) {
	id := identity.FromRequest(ctx.Request)

	claims, err := auth.ValidateToken(h.jwtCfg.Secret, token)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   dto.ErrMalformedInput,
			Message: "invalid verification token",
		})
		return
	}

	v, err := h.pending.Consume(claims.ID)
	if err != nil {
		ctx.JSON(http.StatusForbidden, dto.ErrorResponse{
			Error:   dto.ErrNoPendingVerification,
			Message: "verification not pending, already completed, or timed out",
		})
		return
	}
	if v.IP != id.IP {
		// Mobile clients change addresses mid-flow; the consumed record is
		// the authoritative binding, so only log the drift.
		slog.Warn("Verification completed from a different address",
			"started_from", v.IP, "completed_from", id.IP)
	}

	h.keys.RecordAttempt(id.IP)

	decision := h.engine.Check(id)
	if !decision.Allowed {
		metrics.AdmissionDenied.Inc()
		h.notifier.Notify(notify.Event{
			Type:   notify.EventFraudBlocked,
			IP:     id.IP,
			Reason: decision.Reason,
			Score:  decision.Score,
		})
		ctx.JSON(http.StatusForbidden, dto.ErrorResponse{
			Error:   dto.ErrAccessDenied,
			Message: decision.Reason,
		})
		return
	}

	cred, reused, err := h.keys.Issue(id.IP, id.UserAgent)
	if err != nil {
		slog.Error("Failed to issue key", "error", err)
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: dto.ErrSystemError,
		})
		return
	}

	if reused {
		metrics.KeysIssued.WithLabelValues("true").Inc()
	} else {
		metrics.KeysIssued.WithLabelValues("false").Inc()
	}

	eventType := notify.EventKeyGenerated
	if reused {
		eventType = notify.EventKeyReused
	}
	h.notifier.Notify(notify.Event{
		Type:      eventType,
		Key:       cred.Key,
		IP:        id.IP,
		ExpiresAt: cred.ExpiresAt,
	})

	ctx.JSON(http.StatusOK, dto.KeyResponse{
		Success:   true,
		Key:       cred.Key,
		ExpiresAt: cred.ExpiresAt,
		Reused:    reused,
	})
}

func validationResult(err error) string {
	switch {
	case errors.Is(err, keystore.ErrKeyRevoked):
		return "revoked"
	case errors.Is(err, keystore.ErrKeyExpired):
		return "expired"
	case errors.Is(err, keystore.ErrKeyAlreadyUsed):
		return "used"
	default:
		return "not_found"
	}
}
