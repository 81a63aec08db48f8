package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/olyamironova/escrow-book/internal/api/dto"
	"github.com/olyamironova/escrow-book/internal/core"
	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/olyamironova/escrow-book/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger is the token ledger the engine settles against.
type Ledger interface {
	Mint(asset, to common.Address, amount decimal.Decimal)
	Approve(asset, owner common.Address, amount decimal.Decimal)
	BalanceOf(asset, holder common.Address) decimal.Decimal
	Allowance(asset, owner common.Address) decimal.Decimal
}

type HTTPServer struct {
	Eng       *core.Engine
	log       *zap.Logger
	rateLimit time.Duration
	gatherer  prometheus.Gatherer
	ledger    Ledger
	faucet    bool
}

func NewHTTPServer(eng *core.Engine, log *zap.Logger, rateLimit time.Duration, gatherer prometheus.Gatherer) *HTTPServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &HTTPServer{Eng: eng, log: log, rateLimit: rateLimit, gatherer: gatherer}
}

// WithLedger exposes balance lookups on ledger. With faucet set, callers may
// also credit themselves and approve the escrow.
func (s *HTTPServer) WithLedger(ledger Ledger, faucet bool) *HTTPServer {
	s.ledger = ledger
	s.faucet = faucet
	return s
}

// Router builds the gin engine with every route registered.
func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(ginzap.Ginzap(s.log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(s.log, true))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	rl := middleware.NewRateLimiter(s.rateLimit)
	api := r.Group("/", rl.Middleware())
	api.POST("/orders", s.createOrder)
	api.POST("/orders/:id/cancel", s.cancelOrder)
	api.POST("/orders/:id/fill", s.fillOrder)
	api.GET("/orders/:id", s.getOrder)
	api.GET("/orders/:id/fills", s.getFills)
	api.GET("/makers/:address/orders", s.getUserOrders)
	api.POST("/market/fill", s.fillMarketOrder)
	api.GET("/market/book", s.getBook)
	api.GET("/events", s.getEvents)
	if s.ledger != nil {
		api.GET("/ledger/:asset/:holder", s.getBalance)
		if s.faucet {
			api.POST("/ledger/deposit", s.deposit)
			api.POST("/ledger/approve", s.approve)
		}
	}
	return r
}

// Server returns an http.Server serving the router on addr.
func (s *HTTPServer) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *HTTPServer) createOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := s.Eng.CreateOrder(c.Request.Context(), req.ToCore(middleware.Caller(c)))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.OrderResponse{Order: dto.ConvertOrder(o)})
}

func (s *HTTPServer) cancelOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := s.Eng.CancelOrder(c.Request.Context(), middleware.Caller(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OrderResponse{Order: dto.ConvertOrder(o)})
}

func (s *HTTPServer) fillOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req dto.FillOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	fill, err := s.Eng.FillOrder(c.Request.Context(), middleware.Caller(c), id, req.AmountToFill)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FillOrderResponse{Fill: dto.Fill(fill)})
}

func (s *HTTPServer) fillMarketOrder(c *gin.Context) {
	var req dto.FillMarketOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pair := domain.Pair{Base: req.Base, Quote: req.Quote}
	res, err := s.Eng.FillMarketOrder(c.Request.Context(), middleware.Caller(c), domain.Side(req.Side), pair, req.AmountToFill)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ConvertMatch(res))
}

func (s *HTTPServer) getOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := s.Eng.GetOrderDetails(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OrderResponse{Order: dto.ConvertOrder(o)})
}

func (s *HTTPServer) getFills(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	fills, err := s.Eng.GetOrderFills(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.GetFillsResponse{Fills: dto.ConvertFills(fills)})
}

func (s *HTTPServer) getUserOrders(c *gin.Context) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		badRequest(c, fmt.Errorf("invalid address %q", raw))
		return
	}
	maker := common.HexToAddress(raw)
	c.JSON(http.StatusOK, dto.UserOrdersResponse{
		Maker:    maker,
		OrderIDs: s.Eng.GetUserOrders(c.Request.Context(), maker),
	})
}

func (s *HTTPServer) getBook(c *gin.Context) {
	base, quote := c.Query("base"), c.Query("quote")
	if !common.IsHexAddress(base) || !common.IsHexAddress(quote) {
		badRequest(c, fmt.Errorf("base and quote must be hex addresses"))
		return
	}
	pair := domain.Pair{Base: common.HexToAddress(base), Quote: common.HexToAddress(quote)}
	c.JSON(http.StatusOK, dto.ConvertBook(s.Eng.GetBook(c.Request.Context(), pair)))
}

func (s *HTTPServer) getEvents(c *gin.Context) {
	from, err := strconv.ParseUint(c.DefaultQuery("from", "1"), 10, 64)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid from: %w", err))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 0 {
		badRequest(c, fmt.Errorf("invalid limit %q", c.Query("limit")))
		return
	}
	if from == 0 {
		from = 1
	}
	c.JSON(http.StatusOK, dto.ConvertEvents(s.Eng.Events(c.Request.Context(), from, limit), from))
}

func (s *HTTPServer) getBalance(c *gin.Context) {
	asset, holder := c.Param("asset"), c.Param("holder")
	if !common.IsHexAddress(asset) || !common.IsHexAddress(holder) {
		badRequest(c, fmt.Errorf("asset and holder must be hex addresses"))
		return
	}
	c.JSON(http.StatusOK, s.balance(common.HexToAddress(asset), common.HexToAddress(holder)))
}

func (s *HTTPServer) deposit(c *gin.Context) {
	req, ok := ledgerRequest(c)
	if !ok {
		return
	}
	caller := middleware.Caller(c)
	s.ledger.Mint(req.Asset, caller, req.Amount)
	s.log.Info("ledger deposit",
		zap.Stringer("asset", req.Asset),
		zap.Stringer("holder", caller),
		zap.Stringer("amount", req.Amount))
	c.JSON(http.StatusOK, s.balance(req.Asset, caller))
}

func (s *HTTPServer) approve(c *gin.Context) {
	req, ok := ledgerRequest(c)
	if !ok {
		return
	}
	caller := middleware.Caller(c)
	s.ledger.Approve(req.Asset, caller, req.Amount)
	c.JSON(http.StatusOK, s.balance(req.Asset, caller))
}

func (s *HTTPServer) balance(asset, holder common.Address) dto.BalanceResponse {
	return dto.BalanceResponse{
		Asset:     asset,
		Holder:    holder,
		Balance:   s.ledger.BalanceOf(asset, holder),
		Allowance: s.ledger.Allowance(asset, holder),
	}
}

func ledgerRequest(c *gin.Context) (dto.LedgerRequest, bool) {
	var req dto.LedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return req, false
	}
	if req.Asset == (common.Address{}) || req.Amount.IsNegative() || !req.Amount.Equal(req.Amount.Truncate(0)) {
		badRequest(c, fmt.Errorf("asset and a non-negative whole amount are required"))
		return req, false
	}
	return req, true
}

func orderID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid order id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "BadRequest"})
}

func fail(c *gin.Context, err error) {
	c.JSON(dto.HTTPStatus(err), dto.NewErrorResponse(err))
}
