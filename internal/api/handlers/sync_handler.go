package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	ledgersync "github.com/thanhnp/wallet-ledger/internal/sync"
	"github.com/thanhnp/wallet-ledger/internal/wallet"
)

// SyncHandler starts, halts and reports sync passes
type SyncHandler struct {
	wallet *wallet.Wallet
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(w *wallet.Wallet) *SyncHandler {
	return &SyncHandler{wallet: w}
}

// Start runs a sync pass. With wait=true the response carries the pass
// result, otherwise the pass runs in the background.
// POST /api/v1/:asset/sync?reset=true&wait=true
func (h *SyncHandler) Start(c *gin.Context) {
	asset := c.Param("asset")
	reset, _ := strconv.ParseBool(c.Query("reset"))
	wait, _ := strconv.ParseBool(c.Query("wait"))

	st, err := h.wallet.Status(asset)
	if err != nil {
		writeError(c, err)
		return
	}
	if st.Running {
		writeError(c, ledgersync.ErrSyncInProgress)
		return
	}

	if wait {
		res, err := h.wallet.SyncTransactions(c.Request.Context(), asset, reset)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	go func() {
		_, err := h.wallet.SyncTransactions(context.Background(), asset, reset)
		if err != nil && !errors.Is(err, ledgersync.ErrSyncInProgress) {
			log.Errorf("[%s] Background sync: %v", asset, err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"asset": st.Asset, "reset": reset, "status": "started"})
}

// Halt stops the running pass
// POST /api/v1/:asset/sync/halt
func (h *SyncHandler) Halt(c *gin.Context) {
	halted, err := h.wallet.HaltSync(c.Param("asset"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"halted": halted})
}

// Status returns the sync state
// GET /api/v1/:asset/sync
func (h *SyncHandler) Status(c *gin.Context) {
	st, err := h.wallet.Status(c.Param("asset"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
