package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thanhnp/wallet-ledger/internal/api/handlers"
	"github.com/thanhnp/wallet-ledger/internal/api/middleware"
	"github.com/thanhnp/wallet-ledger/internal/metrics"
	"github.com/thanhnp/wallet-ledger/internal/wallet"
)

// Router wraps the Gin router with handlers
type Router struct {
	engine         *gin.Engine
	wallet         *wallet.Wallet
	metrics        *metrics.Collector
	syncHandler    *handlers.SyncHandler
	txHandler      *handlers.TxHandler
	balanceHandler *handlers.BalanceHandler
	addressHandler *handlers.AddressHandler
}

// NewRouter creates a new Router with all handlers. collector may be nil.
func NewRouter(w *wallet.Wallet, collector *metrics.Collector) *Router {
	gin.SetMode(gin.ReleaseMode)

	r := &Router{
		engine:         gin.New(),
		wallet:         w,
		metrics:        collector,
		syncHandler:    handlers.NewSyncHandler(w),
		txHandler:      handlers.NewTxHandler(w),
		balanceHandler: handlers.NewBalanceHandler(w),
		addressHandler: handlers.NewAddressHandler(w),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// setupMiddleware configures middleware
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.Logger())
	r.engine.Use(middleware.CORS())
}

// setupRoutes configures API routes
func (r *Router) setupRoutes() {
	// Health check
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "assets": r.wallet.Assets()})
	})

	if r.metrics != nil {
		r.engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))
	}

	// API v1 routes
	v1 := r.engine.Group("/api/v1/:asset")
	v1.Use(middleware.ValidateAsset(r.wallet))
	{
		v1.GET("/sync", r.syncHandler.Status)
		v1.POST("/sync", r.syncHandler.Start)
		v1.POST("/sync/halt", r.syncHandler.Halt)

		v1.GET("/transactions", r.txHandler.List)

		v1.GET("/balance", r.balanceHandler.Total)
		v1.GET("/balance/:address", r.balanceHandler.Get)
		v1.GET("/balances", r.balanceHandler.List)
		v1.POST("/balances/rebuild", r.balanceHandler.Rebuild)

		v1.GET("/addresses", r.addressHandler.List)
		v1.GET("/sender", r.addressHandler.SelectSender)
	}
}

// Engine returns the underlying Gin engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Run starts the HTTP server
func (r *Router) Run(addr string) error {
	return r.engine.Run(addr)
}
