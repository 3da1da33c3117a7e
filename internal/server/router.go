package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/podiumlab/podium/backend/internal/competition"
	"github.com/podiumlab/podium/backend/internal/identity"
)

var (
	errMissingIdentityService = errors.New("identity service dependency required")
	errMissingDocumentStore   = errors.New("document store dependency required")
	errMissingBridge          = errors.New("persistence bridge dependency required")
)

// Dependencies wires the sync coordinator's collaborators. Everything is
// injected explicitly so the handler can be exercised with fakes.
type Dependencies struct {
	Identity       *identity.Service
	Store          *competition.DocumentStore
	Bridge         *competition.Bridge
	Hub            *Hub
	Logger         *zap.Logger
	ReadLimitBytes int64
	IdleTimeout    time.Duration
}

// NewHTTPHandler builds the HTTP surface: the websocket sync endpoint, the
// competition summary read side, and the operational endpoints.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Identity == nil {
		return nil, errMissingIdentityService
	}
	if deps.Store == nil {
		return nil, errMissingDocumentStore
	}
	if deps.Bridge == nil {
		return nil, errMissingBridge
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		identity:       deps.Identity,
		store:          deps.Store,
		bridge:         deps.Bridge,
		hub:            hub,
		logger:         logger,
		readLimitBytes: deps.ReadLimitBytes,
		idleTimeout:    deps.IdleTimeout,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/competitions/:competition_id/summary", handler.handleSummary)
	router.GET("/competitions/:competition_id/sync", handler.handleSync)

	return router, nil
}

type httpHandler struct {
	identity       *identity.Service
	store          *competition.DocumentStore
	bridge         *competition.Bridge
	hub            *Hub
	logger         *zap.Logger
	readLimitBytes int64
	idleTimeout    time.Duration
}

type summaryResponsePayload struct {
	CompetitionID   string `json:"competition_id"`
	Name            string `json:"name"`
	TeamCount       int    `json:"team_count"`
	PlayerCount     int    `json:"player_count"`
	DurationMinutes int64  `json:"duration_minutes"`
	FetchCount      int64  `json:"fetch_count"`
}

func (h *httpHandler) handleSummary(c *gin.Context) {
	competitionID, err := competition.NewCompetitionID(c.Param("competition_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_competition_id"})
		return
	}

	record, err := h.bridge.Summary(c.Request.Context(), competitionID)
	if errors.Is(err, competition.ErrCompetitionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("summary lookup failed",
			zap.String("competition_id", competitionID.String()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "summary_failed"})
		return
	}

	c.JSON(http.StatusOK, summaryResponsePayload{
		CompetitionID:   record.CompetitionID,
		Name:            record.Name,
		TeamCount:       record.TeamCount,
		PlayerCount:     record.PlayerCount,
		DurationMinutes: record.DurationMinutes,
		FetchCount:      record.FetchCount,
	})
}
