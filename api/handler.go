package api

import (
	"context"
	"net/http"
	"strconv"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health requests.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "OK",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"state":  s.cfg.Feed.State().String(),
	})
}

// Connection handles GET /api/v1/connection requests.
func (s *Server) Connection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state": s.cfg.Feed.State().String(),
	})
}

// Subscriptions handles GET /api/v1/subscriptions requests.
func (s *Server) Subscriptions(c *gin.Context) {
	tickers, trades := s.cfg.Feed.ActiveSubscriptions()
	c.JSON(http.StatusOK, gin.H{
		"tickers": tickers,
		"trades":  trades,
	})
}

// SeriesSnapshot handles GET /api/v1/series/:symbol requests.
func (s *Server) SeriesSnapshot(c *gin.Context) {
	symbol := c.Param("symbol")
	if !validSymbol(symbol) {
		s.badRequest(c, "invalid symbol")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.badRequest(c, "invalid limit")
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	series, err := s.cfg.Feed.Series(ctx, symbol)
	if err != nil {
		s.serverError(c, err)
		return
	}

	if limit > 0 {
		if len(series.Candles) > limit {
			series.Candles = series.Candles[len(series.Candles)-limit:]
		}
		if len(series.Line) > limit {
			series.Line = series.Line[len(series.Line)-limit:]
		}
		if len(series.Volume) > limit {
			series.Volume = series.Volume[len(series.Volume)-limit:]
		}
	}

	c.JSON(http.StatusOK, series)
}

// StatsSnapshot handles GET /api/v1/stats/:symbol requests.
func (s *Server) StatsSnapshot(c *gin.Context) {
	symbol := c.Param("symbol")
	if !validSymbol(symbol) {
		s.badRequest(c, "invalid symbol")
		return
	}

	stats, ok := s.cfg.Feed.Stats(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no stats for symbol"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// badRequest responds with a 400 and the provided message.
func (s *Server) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// serverError logs the error and responds with a 500.
func (s *Server) serverError(c *gin.Context, err error) {
	requestID, _ := c.Get(requestIDKey)
	s.cfg.Logger.Error().Msgf("api error (request %v): %v", requestID, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// validSymbol reports whether the provided symbol is a plausible trading
// pair symbol: non-empty, at most 20 characters, uppercase alphanumerics.
func validSymbol(symbol string) bool {
	if symbol == "" || len(symbol) > 20 {
		return false
	}

	for _, r := range symbol {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}

	return true
}
