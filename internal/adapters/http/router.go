package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dkeye/VideoCall/internal/adapters/signal"
	"github.com/dkeye/VideoCall/internal/app"
	"github.com/dkeye/VideoCall/internal/config"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

type mailboxHandler struct {
	cfg     config.RendezvousConfig
	boxes   *app.Mailboxes
	limiter *app.SendLimiter
}

func peerParam(c *gin.Context) (domain.PeerID, bool) {
	id := domain.PeerID(c.Param("id"))
	if err := domain.ValidatePeerID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return id, true
}

// take long-polls the mailbox; 404 means nothing arrived in time.
func (h *mailboxHandler) take(c *gin.Context) {
	id, ok := peerParam(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.LongPollTimeout)
	defer cancel()

	data, err := h.boxes.Take(ctx, id)
	switch {
	case err == nil:
		c.Data(http.StatusOK, "application/json", data)
	case errors.Is(err, context.DeadlineExceeded):
		c.Status(http.StatusNotFound)
	default:
		log.Debug().Err(err).Str("module", "adapters.http").Str("peer", string(id)).Msg("poll abandoned")
	}
}

func (h *mailboxHandler) put(c *gin.Context) {
	id, ok := peerParam(c)
	if !ok {
		return
	}
	if !h.limiter.Allow(c.ClientIP(), id) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
		return
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil || !json.Valid(data) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.boxes.Put(id, data); err != nil {
		if errors.Is(err, app.ErrMailboxFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func SetupRouter(ctx context.Context, cfg *config.Config, boxes *app.Mailboxes, limiter *app.SendLimiter) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &mailboxHandler{cfg: cfg.Rendezvous, boxes: boxes, limiter: limiter}
	r.GET("/data/:id", h.take)
	r.POST("/data/:id", h.put)

	ctrl := signal.NewMailboxWSController(boxes, limiter)
	r.GET("/ws/:id", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("peer", c.Param("id")).Msg("ws endpoint hit")
		ctrl.HandleMailbox(ctx, c)
	})

	api := r.Group("/api")
	api.GET("/mailboxes", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"mailboxes": boxes.List()})
	})

	log.Info().Str("module", "adapters.http").Dur("long_poll", cfg.Rendezvous.LongPollTimeout).Msg("router setup")
	return r
}
