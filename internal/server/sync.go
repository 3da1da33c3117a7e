package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/podiumlab/podium/backend/internal/access"
	"github.com/podiumlab/podium/backend/internal/competition"
	"github.com/podiumlab/podium/backend/internal/metrics"
)

const (
	defaultReadLimitBytes = 1 << 20
	defaultIdleTimeout    = 5 * time.Minute
	evictTimeout          = 30 * time.Second
	writeTimeout          = 10 * time.Second
)

var syncUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		// Access control happens through the bearer credential, not the
		// browser origin.
		return true
	},
}

// handleSync drives a connection through its lifecycle: authenticate (never
// failing the handshake), gate, attach, relay, detach. Updates from
// write-capable connections merge into the document first and broadcast to
// siblings after; updates from read-only connections are dropped silently.
func (h *httpHandler) handleSync(c *gin.Context) {
	competitionID, err := competition.NewCompetitionID(c.Param("competition_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_competition_id"})
		return
	}

	ident, role := h.identity.Authenticate(c.Request.Context(), bearerCredential(c), competitionID.String())
	capability := access.Grant(role)

	userID := ""
	if ident != nil {
		userID = ident.UserID
	}

	conn, err := syncUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("competition_id", competitionID.String()),
			zap.Error(err))
		return
	}
	defer conn.Close()

	readLimit := h.readLimitBytes
	if readLimit <= 0 {
		readLimit = defaultReadLimitBytes
	}
	idleTimeout := h.idleTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	conn.SetReadLimit(readLimit)

	subscription := h.hub.Attach(competitionID.String())
	metrics.ActiveConnections.Inc()
	h.logger.Info("connection attached",
		zap.String("competition_id", competitionID.String()),
		zap.String("user_id", userID),
		zap.String("role", string(role)))

	defer func() {
		remaining := h.hub.Detach(competitionID.String(), subscription)
		metrics.ActiveConnections.Dec()
		h.logger.Info("connection detached",
			zap.String("competition_id", competitionID.String()),
			zap.String("user_id", userID),
			zap.Int("remaining", remaining))
		if remaining == 0 {
			evictCtx, cancel := context.WithTimeout(context.Background(), evictTimeout)
			defer cancel()
			if err := h.store.Evict(evictCtx, competitionID); err != nil {
				h.logger.Error("eviction failed",
					zap.String("competition_id", competitionID.String()),
					zap.Error(err))
			}
		}
	}()

	// Push the full current state so a late joiner converges immediately.
	// Attach happens first: an update broadcast while the state is being
	// captured lands in the subscription buffer instead of being lost, and
	// the write loop starts only after the snapshot is on the wire.
	snapshot, err := h.store.Snapshot(c.Request.Context(), competitionID)
	if err != nil {
		h.logger.Error("initial snapshot failed",
			zap.String("competition_id", competitionID.String()),
			zap.Error(err))
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, snapshot); err != nil {
		return
	}

	go h.writeLoop(conn, subscription)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		err = h.store.ApplyUpdate(c.Request.Context(), capability, competitionID, payload)
		switch {
		case errors.Is(err, competition.ErrMergeRejected):
			// Read-only sender: drop, never broadcast.
			continue
		case errors.Is(err, competition.ErrMalformedUpdate):
			continue
		case err != nil:
			h.logger.Error("update merge failed",
				zap.String("competition_id", competitionID.String()),
				zap.String("user_id", userID),
				zap.Error(err))
			return
		}

		h.hub.Broadcast(competitionID.String(), subscription, payload)
	}
}

func (h *httpHandler) writeLoop(conn *websocket.Conn, subscription *Subscription) {
	for {
		select {
		case payload := <-subscription.Stream():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				_ = conn.Close()
				return
			}
		case <-subscription.Done():
			return
		}
	}
}

// bearerCredential extracts the connection credential from the Authorization
// header or, for browser websocket clients that cannot set headers, the
// access_token query parameter.
func bearerCredential(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(c.Query("access_token"))
}
