package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"DexSignal/internal/domain/models"
	domrepo "DexSignal/internal/domain/repository"
	svccache "DexSignal/internal/service/cache"
	xhttp "DexSignal/pkg/http"
	xlogger "DexSignal/pkg/logger"
	"DexSignal/pkg/util"
)

const (
	accuracyCacheKey = "accuracy:global"
	accuracyCacheTTL = 15 * time.Second
)

// SignalLister returns the latest signal of every pair.
type SignalLister interface {
	Signals(ctx context.Context) ([]models.PairSignal, error)
}

// RecordReader reads pair records.
type RecordReader interface {
	GetRecord(ctx context.Context, pairAddress string) (*models.TokenPairRecord, error)
	GetPriceHistory(ctx context.Context, pairAddress string) ([]models.PricePoint, error)
	GetAllPairAddresses(ctx context.Context) ([]string, error)
}

type MonitorReader interface {
	Status(pairAddress string) models.MonitorState
}

type AccuracyReader interface {
	GlobalStats(ctx context.Context) (models.GlobalStats, error)
}

// HealthCheck is one named dependency probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves the read API. Retrain is the only write and only enqueues.
type Handler struct {
	logger   *xlogger.Logger
	signals  SignalLister
	records  RecordReader
	monitor  MonitorReader
	accuracy AccuracyReader
	trades   domrepo.TradeLogStore
	retrain  func(ctx context.Context) error
	cache    svccache.BytesCache
	checks   []HealthCheck
}

type Option func(*Handler)

func WithTradeLogs(s domrepo.TradeLogStore) Option {
	return func(h *Handler) { h.trades = s }
}

// WithRetrain sets the function POST /api/admin/retrain calls.
func WithRetrain(fn func(ctx context.Context) error) Option {
	return func(h *Handler) { h.retrain = fn }
}

// WithCache sets the read cache used for accuracy stats.
func WithCache(c svccache.BytesCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithHealthChecks(checks ...HealthCheck) Option {
	return func(h *Handler) { h.checks = append(h.checks, checks...) }
}

func NewHandler(
	logger *xlogger.Logger,
	signals SignalLister,
	records RecordReader,
	monitor MonitorReader,
	accuracy AccuracyReader,
	opts ...Option,
) *Handler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	h := &Handler{
		logger:   logger.With(xlogger.String("component", "api")),
		signals:  signals,
		records:  records,
		monitor:  monitor,
		accuracy: accuracy,
		cache:    svccache.NewTTLCache(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/signals", h.Signals)
	g.GET("/pairs", h.Pairs)
	g.GET("/pairs/:address", h.Pair)
	g.GET("/pairs/:address/history", h.History)
	g.GET("/pairs/:address/monitor", h.Monitor)
	g.GET("/accuracy", h.Accuracy)
	g.GET("/trades", h.Trades)
	g.POST("/admin/retrain", h.Retrain)
}

// Signals returns the latest snapshot per pair, 202 while no pair has
// produced one yet.
func (h *Handler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	all, err := h.signals.Signals(c.Request().Context())
	if err != nil {
		h.logger.Error("signals usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if len(all) == 0 {
		return xhttp.AcceptedResponse(c, "Signals are being computed, try again shortly")
	}

	rows := make([]models.PairSignal, 0, len(all))
	for _, s := range all {
		if req.Signal != "" && string(s.Signal.Signal) != req.Signal {
			continue
		}
		rows = append(rows, s)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Signal.ConfidenceScore > rows[j].Signal.ConfidenceScore })
	total := int64(len(rows))
	if len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, rows, total)
}

func (h *Handler) Pairs(c echo.Context) error {
	addrs, err := h.records.GetAllPairAddresses(c.Request().Context())
	if err != nil {
		h.logger.Error("list pairs error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, addrs, int64(len(addrs)))
}

// Pair returns the record without its price, volume and liquidity series.
func (h *Handler) Pair(c echo.Context) error {
	req := &models.PairRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rec, err := h.records.GetRecord(c.Request().Context(), req.Address)
	if err != nil {
		return h.recordError(c, req.Address, err)
	}
	rec.PriceHistory, rec.VolumeHistory, rec.LiquidityHistory = nil, nil, nil
	return xhttp.SuccessResponse(c, rec)
}

// History returns the newest limit price points in ascending order.
// ?since= (RFC3339 or unix seconds) drops older points.
func (h *Handler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	if _, err := h.records.GetRecord(ctx, req.Address); err != nil {
		return h.recordError(c, req.Address, err)
	}
	points, err := h.records.GetPriceHistory(ctx, req.Address)
	if err != nil {
		h.logger.Error("history error", xlogger.Pair(req.Address), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	since := util.ParseTimeDefault(c.QueryParam("since"), time.Time{})
	if !since.IsZero() {
		i := sort.Search(len(points), func(i int) bool { return !points[i].Timestamp.Before(since) })
		points = points[i:]
	}
	total := int64(len(points))
	if len(points) > req.Limit {
		points = points[len(points)-req.Limit:]
	}
	return xhttp.ListResponse(c, points, total)
}

func (h *Handler) Monitor(c echo.Context) error {
	req := &models.PairRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.monitor.Status(req.Address))
}

// Accuracy returns the global stats, cached for 15 seconds.
func (h *Handler) Accuracy(c echo.Context) error {
	ctx := c.Request().Context()
	stats, err := svccache.GetOrLoad(h.cache, accuracyCacheKey, accuracyCacheTTL, func() (models.GlobalStats, error) {
		return h.accuracy.GlobalStats(ctx)
	})
	if err != nil {
		h.logger.Error("accuracy usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, stats)
}

func (h *Handler) Trades(c echo.Context) error {
	req := &models.TradesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.trades == nil {
		return xhttp.ListResponse(c, []*models.TradeLog{}, 0)
	}
	rows, err := h.trades.ListTrades(c.Request().Context(), models.TradeLogType(req.Type), req.Limit)
	if err != nil {
		h.logger.Error("trades error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// Retrain enqueues a retrain on the runner and returns 202.
func (h *Handler) Retrain(c echo.Context) error {
	if h.retrain == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("retraining is not available"))
	}
	if err := h.retrain(c.Request().Context()); err != nil {
		h.logger.Warn("retrain enqueue failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("retrain could not be queued").WithError(err))
	}
	h.logger.Info("retrain queued by api")
	return xhttp.AcceptedResponse(c, "Retrain queued")
}

// Health runs every dependency check and answers 503 if any fails.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	healthy := true
	for _, chk := range h.checks {
		if err := chk.Check(ctx); err != nil {
			status[chk.Name] = err.Error()
			healthy = false
			continue
		}
		status[chk.Name] = "ok"
	}
	if !healthy {
		return xhttp.ServiceUnavailableResponse(c, status)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok", "checks": status})
}

func (h *Handler) recordError(c echo.Context, addr string, err error) error {
	if errors.Is(err, domrepo.ErrNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("pair %s not found", strings.ToLower(addr)))
	}
	h.logger.Error("record read error", xlogger.Pair(addr), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}
