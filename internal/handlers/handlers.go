package handlers

import (
	"context"
	"errors"
	"net/http"

	"balance-checker/internal/models"
	"balance-checker/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Valuer interface {
	Value(ctx context.Context) (service.Valuation, error)
}

type HoldingsReader interface {
	Holdings(ctx context.Context, class models.AssetClass) ([]models.Holding, error)
}

type AssetFinder interface {
	Lookup(ctx context.Context, ticker string) (models.Asset, bool, error)
}

type MovementReader interface {
	Movements(ctx context.Context, assetID int64) ([]models.Movement, error)
}

type CycleRunner interface {
	Run(ctx context.Context) (service.Summary, error)
	Last() (service.Summary, bool)
}

type Handler struct {
	cycle     CycleRunner
	valuator  Valuer
	holdings  HoldingsReader
	assets    AssetFinder
	movements MovementReader
	log       *logrus.Logger
}

func NewHandler(cycle CycleRunner, v Valuer, holdings HoldingsReader, assets AssetFinder, movements MovementReader, log *logrus.Logger) *Handler {
	return &Handler{cycle: cycle, valuator: v, holdings: holdings, assets: assets, movements: movements, log: log}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/portfolio", h.GetPortfolio)
	r.GET("/holdings", h.GetHoldings)
	r.GET("/holdings/:ticker/movements", h.GetMovements)
	r.POST("/cycle", h.RunCycle)
	r.GET("/cycle/last", h.LastCycle)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetPortfolio(c *gin.Context) {
	val, err := h.valuator.Value(c.Request.Context())
	if err != nil {
		h.log.Errorf("valuation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "valuation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": val.Lines, "total": val.Total.StringFixed(2), "at": val.At})
}

func (h *Handler) GetHoldings(c *gin.Context) {
	var class models.AssetClass
	if q := c.Query("class"); q != "" {
		parsed, err := models.ParseAssetClass(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		class = parsed
	}
	rows, err := h.holdings.Holdings(c.Request.Context(), class)
	if err != nil {
		h.log.Errorf("query holdings failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GetMovements lists every ledger movement booked for one asset, oldest first.
func (h *Handler) GetMovements(c *gin.Context) {
	ctx := c.Request.Context()
	asset, ok, err := h.assets.Lookup(ctx, c.Param("ticker"))
	if err != nil {
		h.log.Errorf("lookup asset failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown ticker"})
		return
	}
	ms, err := h.movements.Movements(ctx, asset.ID)
	if err != nil {
		h.log.Errorf("list movements failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": asset, "movements": ms})
}

func (h *Handler) RunCycle(c *gin.Context) {
	sum, err := h.cycle.Run(c.Request.Context())
	if err != nil {
		h.log.Errorf("cycle failed: %v", err)
		status := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error(), "summary": sum})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) LastCycle(c *gin.Context) {
	sum, ok := h.cycle.Last()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cycle has completed yet"})
		return
	}
	c.JSON(http.StatusOK, sum)
}
