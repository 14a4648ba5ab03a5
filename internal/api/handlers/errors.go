package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/thanhnp/wallet-ledger/internal/balance"
	"github.com/thanhnp/wallet-ledger/internal/currency"
	ledgersync "github.com/thanhnp/wallet-ledger/internal/sync"
	"github.com/thanhnp/wallet-ledger/internal/wallet"
)

// writeError maps wallet errors to HTTP statuses
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, wallet.ErrUnknownAsset):
		status = http.StatusNotFound
	case errors.Is(err, ledgersync.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.Is(err, balance.ErrInsufficientFunds), errors.Is(err, balance.ErrNoFundedAddress):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, currency.ErrInvalidAmount), errors.Is(err, currency.ErrFractionalBaseUnit):
		status = http.StatusBadRequest
	case errors.Is(err, ledgersync.ErrSync):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		log.Errorf("[API] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
