package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thanhnp/wallet-ledger/internal/currency"
	"github.com/thanhnp/wallet-ledger/internal/wallet"
)

// BalanceHandler serves the balance snapshot
type BalanceHandler struct {
	wallet *wallet.Wallet
}

// NewBalanceHandler creates a new BalanceHandler
func NewBalanceHandler(w *wallet.Wallet) *BalanceHandler {
	return &BalanceHandler{wallet: w}
}

type balanceResponse struct {
	Asset   string `json:"asset"`
	Address string `json:"address,omitempty"`
	Balance string `json:"balance"`
	Main    string `json:"balance_main"`
	Source  string `json:"source"`
}

func newBalanceResponse(asset, address, source string, amount currency.Amount) balanceResponse {
	return balanceResponse{
		Asset:   asset,
		Address: address,
		Balance: amount.ToBaseUnit(),
		Main:    amount.ToMainUnit(),
		Source:  source,
	}
}

// Total returns the sum of every address balance
// GET /api/v1/:asset/balance
func (h *BalanceHandler) Total(c *gin.Context) {
	asset := c.Param("asset")
	total, err := h.wallet.GetBalance(asset, "")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBalanceResponse(asset, "", "ledger", total))
}

// Get returns the balance of one address. With onchain=true the indexer is
// asked instead of the ledger.
// GET /api/v1/:asset/balance/:address?onchain=true
func (h *BalanceHandler) Get(c *gin.Context) {
	asset := c.Param("asset")
	address := c.Param("address")

	if onchain, _ := strconv.ParseBool(c.Query("onchain")); onchain {
		amount, err := h.wallet.GetOnchainBalance(c.Request.Context(), asset, address)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newBalanceResponse(asset, address, "chain", amount))
		return
	}

	amount, err := h.wallet.GetBalance(asset, address)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBalanceResponse(asset, address, "ledger", amount))
}

// List returns the per-address snapshot in insertion order
// GET /api/v1/:asset/balances
func (h *BalanceHandler) List(c *gin.Context) {
	balances, err := h.wallet.Balances(c.Param("asset"))
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, newBalanceResponse(c.Param("asset"), b.Address, "ledger", b.Balance))
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(out),
		"balances": out,
	})
}

// Rebuild replays the transaction log into the balance snapshot
// POST /api/v1/:asset/balances/rebuild
func (h *BalanceHandler) Rebuild(c *gin.Context) {
	if err := h.wallet.RebuildBalances(c.Param("asset")); err != nil {
		writeError(c, err)
		return
	}
	h.List(c)
}
