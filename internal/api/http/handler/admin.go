package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luminalabs/keygate/internal/api/http/dto"
	"github.com/luminalabs/keygate/internal/keystore"
	"github.com/luminalabs/keygate/internal/notify"
)

type AdminHandler struct {
	keys     *keystore.Store
	notifier notify.Notifier
}

func NewAdminHandler(keys *keystore.Store, notifier notify.Notifier) *AdminHandler {
	return &AdminHandler{keys: keys, notifier: notifier}
}

// RevokeKey invalidates a key ahead of its expiry. The record keeps existing
// so later validations report "revoked".
func (h *AdminHandler) RevokeKey(ctx *gin.Context) {
	key := ctx.Param("key")

	if !h.keys.Revoke(key) {
		ctx.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   dto.ErrAccessDenied,
			Message: "no such key",
		})
		return
	}

	h.notifier.Notify(notify.Event{Type: notify.EventKeyRevoked, Key: key})
	ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "key revoked"})
}
