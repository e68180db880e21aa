package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"token-aggregator/internal/query"
)

func (s *Server) listTokens(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	result := s.opts.Reader.List(c.Request.Context(), query.ListParams{
		Limit:        limit,
		Cursor:       c.Query("cursor"),
		SortBy:       c.Query("sortBy"),
		Period:       c.Query("period"),
		MinVolume:    floatParam(c, "minVolume"),
		MinLiquidity: floatParam(c, "minLiquidity"),
	})
	c.JSON(http.StatusOK, result)
}

func (s *Server) searchTokens(c *gin.Context) {
	records, err := s.opts.Reader.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		if errors.Is(err, query.ErrQueryTooShort) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.log.WithError(err).Error("search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

func (s *Server) getToken(c *gin.Context) {
	detail, err := s.opts.Reader.Get(c.Request.Context(), c.Param("address"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, detail)
	case errors.Is(err, query.ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, query.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.log.WithError(err).Error("token lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// triggerRefresh starts a refresh in the background and returns at once.
func (s *Server) triggerRefresh(c *gin.Context) {
	if s.opts.Refresher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refresh not available"})
		return
	}
	if s.opts.Refresher.Status().Refreshing {
		c.JSON(http.StatusConflict, gin.H{"status": "in_progress"})
		return
	}

	// the cycle completes even if the server shuts down meanwhile
	ctx := context.WithoutCancel(s.baseCtx)
	go s.opts.Refresher.Refresh(ctx)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *Server) status(c *gin.Context) {
	resp := gin.H{
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if s.opts.Refresher != nil {
		resp["refresh"] = s.opts.Refresher.Status()
	}
	if s.opts.Snapshots != nil {
		snap := s.opts.Snapshots.Current()
		snapInfo := gin.H{"records": snap.Len()}
		if snap != nil {
			snapInfo["createdAt"] = snap.CreatedAt
		}
		resp["snapshot"] = snapInfo
	}
	if s.opts.Clients != nil {
		resp["clients"] = s.opts.Clients.ClientCount()
	}
	c.JSON(http.StatusOK, resp)
}

// floatParam parses a non-negative finite number; anything else is nil.
func floatParam(c *gin.Context, name string) *float64 {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil
	}
	return &v
}
