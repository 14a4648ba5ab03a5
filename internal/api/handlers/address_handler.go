package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thanhnp/wallet-ledger/internal/currency"
	"github.com/thanhnp/wallet-ledger/internal/wallet"
)

// AddressHandler serves the wallet addresses
type AddressHandler struct {
	wallet *wallet.Wallet
}

// NewAddressHandler creates a new AddressHandler
func NewAddressHandler(w *wallet.Wallet) *AddressHandler {
	return &AddressHandler{wallet: w}
}

// List returns the addresses that had activity
// GET /api/v1/:asset/addresses
func (h *AddressHandler) List(c *gin.Context) {
	addresses, err := h.wallet.GetActiveAddresses(c.Param("asset"))
	if err != nil {
		writeError(c, err)
		return
	}
	if addresses == nil {
		addresses = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(addresses),
		"addresses": addresses,
	})
}

// SelectSender returns the address a spend of amount (main units) would
// be sourced from
// GET /api/v1/:asset/sender?amount=1.5&sender=0x...
func (h *AddressHandler) SelectSender(c *gin.Context) {
	asset := c.Param("asset")
	a, err := h.wallet.Asset(asset)
	if err != nil {
		writeError(c, err)
		return
	}

	amount, err := currency.NewFromMain(a.Unit, c.Query("amount"))
	if err != nil {
		writeError(c, err)
		return
	}

	rec, err := h.wallet.SelectSender(asset, amount, c.Query("sender"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec.Public())
}
