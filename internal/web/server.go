package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"crypto-trading-agent/internal/store"
)

// Server is the read-only dashboard API over the persistence layer.
// It never mutates state; all trading writes go through the daemon.
type Server struct {
	db  *store.DB
	cfg *store.Config
}

func NewServer(db *store.DB, cfg *store.Config) *Server {
	return &Server{db: db, cfg: cfg}
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/status", s.getStatus)
	api.GET("/positions", s.getPositions)
	api.GET("/trades", s.getTrades)
	api.GET("/candles", s.getCandles)
	api.GET("/logs", s.getLogs)
	api.GET("/sentiment/:symbol", s.getSentiment)
	api.GET("/reflections", s.getReflections)
	return r
}

// Run blocks serving the API on addr.
func (s *Server) Run(addr string) error {
	return s.Router().Run(addr)
}

func (s *Server) getStatus(c *gin.Context) {
	ctx := c.Request.Context()

	nav, err := s.db.LatestNAV(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	positions, err := s.db.GetPositions(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	realized, err := s.db.TotalRealizedPnL(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"symbols":        s.cfg.Symbols,
		"timeframe":      s.cfg.Timeframe,
		"open_positions": len(positions),
		"realized_pnl":   realized,
	}
	if nav != nil {
		resp["nav"] = nav.NAV
		resp["dd_pct"] = nav.DrawdownPct
		resp["nav_ts"] = nav.Ts
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getPositions(c *gin.Context) {
	positions, err := s.db.GetPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, positions)
}

func (s *Server) getTrades(c *gin.Context) {
	trades, err := s.db.ListTrades(c.Request.Context(), intQuery(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) getCandles(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	tf := c.DefaultQuery("tf", s.cfg.Timeframe)
	candles, err := s.db.GetCandles(c.Request.Context(), symbol, tf, intQuery(c, "limit", 200))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, candles)
}

func (s *Server) getLogs(c *gin.Context) {
	events, err := s.db.GetLogs(c.Request.Context(),
		intQuery(c, "limit", 100), c.Query("level"), c.Query("symbol"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) getSentiment(c *gin.Context) {
	snap, err := s.db.LatestSentiment(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sentiment recorded"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) getReflections(c *gin.Context) {
	reflections, err := s.db.ListReflections(c.Request.Context(), intQuery(c, "limit", 20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reflections)
}

func intQuery(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
