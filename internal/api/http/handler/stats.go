package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luminalabs/keygate/internal/admission"
	"github.com/luminalabs/keygate/internal/api/http/dto"
	"github.com/luminalabs/keygate/internal/keystore"
)

type StatsHandler struct {
	keys   *keystore.Store
	engine *admission.Engine
}

func NewStatsHandler(keys *keystore.Store, engine *admission.Engine) *StatsHandler {
	return &StatsHandler{keys: keys, engine: engine}
}

// Stats reports read-only aggregates computed over the stores.
func (h *StatsHandler) Stats(ctx *gin.Context) {
	st := h.keys.Stats()

	rate := "0%"
	if st.TotalKeys > 0 {
		rate = fmt.Sprintf("%d%%", 100*st.ActiveKeys/st.TotalKeys)
	}

	ctx.JSON(http.StatusOK, dto.StatsResponse{
		Success: true,
		Data: dto.StatsData{
			TotalKeys:   st.TotalKeys,
			ActiveKeys:  st.ActiveKeys,
			UniqueIPs:   st.UniqueIPs,
			BlockedIPs:  h.engine.BannedCount(),
			TotalUses:   st.TotalUses,
			SuccessRate: rate,
		},
	})
}
