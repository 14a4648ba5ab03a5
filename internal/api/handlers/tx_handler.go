package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thanhnp/wallet-ledger/internal/models"
	"github.com/thanhnp/wallet-ledger/internal/wallet"
)

// TxHandler serves the stored transaction log
type TxHandler struct {
	wallet *wallet.Wallet
}

// NewTxHandler creates a new TxHandler
func NewTxHandler(w *wallet.Wallet) *TxHandler {
	return &TxHandler{wallet: w}
}

// List returns the stored buckets in ascending height order
// GET /api/v1/:asset/transactions?from=100&to=200
func (h *TxHandler) List(c *gin.Context) {
	from, err := heightParam(c, "from")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from height"})
		return
	}
	to, err := heightParam(c, "to")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to height"})
		return
	}

	buckets := []models.Bucket{}
	count := 0
	err = h.wallet.GetTransactions(c.Param("asset"), from, to, func(b models.Bucket) error {
		buckets = append(buckets, b)
		count += len(b.Entries)
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   count,
		"buckets": buckets,
	})
}

// heightParam parses an optional height query, -1 when absent
func heightParam(c *gin.Context, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return -1, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
