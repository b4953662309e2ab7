// Package server exposes the trading engine over a small JSON API.
// The frontend polls the GET endpoints and submits intents through the
// POST endpoints; all trading rules live in the services layer, this
// package only translates HTTP.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hellarekt/perpbot/internal/domain"
	"github.com/hellarekt/perpbot/internal/services"
)

// PriceSnapshot is the read side the prices endpoint needs; satisfied
// by *feed.Feed.
type PriceSnapshot interface {
	Snapshot() map[string]domain.PriceTick
}

type Server struct {
	svc  *services.TradingService
	feed PriceSnapshot
}

func New(svc *services.TradingService, priceFeed PriceSnapshot) *Server {
	return &Server{svc: svc, feed: priceFeed}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/prices", s.handlePrices)
	api.GET("/account", s.handleAccount)
	api.GET("/pool", s.handlePool)

	positions := api.Group("/positions")
	positions.GET("", s.handlePositionsList)
	positions.POST("/open", s.handlePositionOpen)
	positions.POST("/:positionID/close", s.handlePositionClose)

	intents := api.Group("/intents")
	intents.GET("", s.handleIntentsList)
	intents.GET("/:intentID", s.handleIntentGet)

	api.POST("/faucet/claim", s.handleFaucetClaim)
	api.POST("/pool/deposit", s.handlePoolDeposit)

	return r
}

func (s *Server) handlePrices(c *gin.Context) {
	snap := s.feed.Snapshot()
	out := make([]priceResponse, 0, len(snap))
	for _, tick := range snap {
		out = append(out, priceResponse{
			Symbol:     tick.Symbol,
			Price:      tick.Price,
			Change24h:  tick.Change24h,
			ObservedAt: tick.ObservedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAccount(c *gin.Context) {
	pending := make(map[string]bool, 4)
	for _, kind := range []domain.IntentKind{
		domain.IntentOpen, domain.IntentClose, domain.IntentClaim, domain.IntentDeposit,
	} {
		pending[string(kind)] = s.svc.InFlight(kind)
	}
	c.JSON(http.StatusOK, accountResponse{
		Address: s.svc.Owner(),
		Balance: s.svc.Balance(),
		Pending: pending,
	})
}

func (s *Server) handlePool(c *gin.Context) {
	stats, share := s.svc.Pool()
	if stats == nil || share == nil {
		// pool state not fetched yet
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "pool state not available yet"})
		return
	}
	c.JSON(http.StatusOK, poolResponse{
		TotalLiquidity:     stats.TotalLiquidity,
		AvailableLiquidity: stats.AvailableLiquidity,
		UserShares:         share.Shares,
		UserValue:          share.Value,
	})
}

func (s *Server) handlePositionsList(c *gin.Context) {
	views := s.svc.PositionViews()
	out := make([]positionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toPositionResponse(v))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handlePositionOpen(c *gin.Context) {
	var req openPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	in, err := s.svc.OpenPosition(req.Asset, req.Leverage, *req.IsLong, req.Collateral)
	s.respondIntent(c, in, err)
}

func (s *Server) handlePositionClose(c *gin.Context) {
	in, err := s.svc.ClosePosition(c.Param("positionID"))
	s.respondIntent(c, in, err)
}

func (s *Server) handleFaucetClaim(c *gin.Context) {
	in, err := s.svc.ClaimTestFunds()
	s.respondIntent(c, in, err)
}

func (s *Server) handlePoolDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	in, err := s.svc.DepositLiquidity(req.Amount)
	s.respondIntent(c, in, err)
}

func (s *Server) handleIntentsList(c *gin.Context) {
	intents := s.svc.Intents()
	out := make([]intentResponse, 0, len(intents))
	for _, in := range intents {
		out = append(out, toIntentResponse(in))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleIntentGet(c *gin.Context) {
	in := s.svc.Intent(c.Param("intentID"))
	if in == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "intent not found"})
		return
	}
	c.JSON(http.StatusOK, toIntentResponse(in))
}

// respondIntent maps service errors to HTTP statuses: validation
// failures are 400, an in-flight duplicate is 409, an accepted intent
// is 202 (execution continues asynchronously).
func (s *Server) respondIntent(c *gin.Context, in *domain.PendingIntent, err error) {
	if err != nil {
		var ve *services.ValidationError
		var dup *services.DuplicateIntentError
		switch {
		case errors.As(err, &ve):
			c.JSON(http.StatusBadRequest, errorResponse{Error: ve.Error()})
		case errors.As(err, &dup):
			c.JSON(http.StatusConflict, errorResponse{Error: dup.Error()})
		default:
			c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, toIntentResponse(in))
}
