package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"autotrader/internal/engine"
	"autotrader/internal/service"

	"github.com/gin-gonic/gin"
)

type router struct {
	svc *service.Service
}

func registerRoutes(group *gin.RouterGroup, svc *service.Service) {
	if group == nil {
		return
	}
	r := &router{svc: svc}
	group.GET("/strategies", r.handleList)
	group.POST("/strategies", r.handleCreate)
	group.GET("/strategies/:id", r.handleStatus)
	group.PUT("/strategies/:id", r.handleUpdate)
	group.DELETE("/strategies/:id", r.handleDelete)
	group.POST("/strategies/:id/start", r.handleStart)
	group.POST("/strategies/:id/stop", r.handleStop)
	group.POST("/strategies/:id/pause", r.handlePause)
	group.GET("/strategies/:id/signals", r.handleSignals)
}

func (r *router) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": r.svc.List()})
}

func (r *router) handleCreate(c *gin.Context) {
	var cfg engine.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := r.svc.Create(c.Request.Context(), cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"strategy": created})
}

func (r *router) handleUpdate(c *gin.Context) {
	var cfg engine.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg.ID = c.Param("id")
	if err := r.svc.Update(c.Request.Context(), cfg); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (r *router) handleDelete(c *gin.Context) {
	if err := r.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (r *router) handleStatus(c *gin.Context) {
	snap, err := r.svc.Status(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategy": snap})
}

func (r *router) handleStart(c *gin.Context) {
	if err := r.svc.Start(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (r *router) handleStop(c *gin.Context) {
	if err := r.svc.Stop(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (r *router) handlePause(c *gin.Context) {
	if err := r.svc.Pause(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (r *router) handleSignals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	entries, err := r.svc.RecentSignals(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": entries})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotStopped), errors.Is(err, engine.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
