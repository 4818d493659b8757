package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/elections/internal/elections"
	"github.com/MarcoPoloResearchLab/elections/internal/players"
	"github.com/MarcoPoloResearchLab/elections/internal/reputation"
	"github.com/MarcoPoloResearchLab/elections/internal/roles"
	"github.com/MarcoPoloResearchLab/elections/internal/scheduler"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	operatorContextKey = "elections_operator"
	leaderboardSize    = 10
	heartbeatInterval  = 25 * time.Second
)

var (
	errMissingElections     = errors.New("election service dependency required")
	errMissingProgressor    = errors.New("progressor dependency required")
	errMissingPlayers       = errors.New("player directory dependency required")
	errMissingReputation    = errors.New("reputation service dependency required")
	errMissingRoles         = errors.New("role service dependency required")
	errMissingTokenManager  = errors.New("token validator dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// ElectionService is the state machine surface exposed over HTTP.
type ElectionService interface {
	Status(ctx context.Context, durations elections.Durations) (elections.Snapshot, error)
	Candidates(ctx context.Context) ([]elections.Candidate, error)
	RegisterCandidate(ctx context.Context, registration elections.Registration) (elections.Candidate, error)
	CastVote(ctx context.Context, voterID players.PlayerID, candidateID int64) error
	StartNewElection(ctx context.Context, regionID string) (elections.Election, error)
	Rotate(ctx context.Context) (elections.Transition, error)
}

// Progressor advances the current election with its side effects.
type Progressor interface {
	Advance(ctx context.Context) (elections.Transition, error)
	Durations() elections.Durations
}

// PlayerDirectory records and resolves player names.
type PlayerDirectory interface {
	Touch(ctx context.Context, playerID players.PlayerID, playerName string) error
	Resolve(ctx context.Context, rawInput string) (players.PlayerID, string, error)
	ResolveName(ctx context.Context, playerID players.PlayerID) (string, error)
}

// ReputationService reads and adjusts reputation.
type ReputationService interface {
	Standing(ctx context.Context, playerID players.PlayerID) (reputation.Standing, error)
	Adjust(ctx context.Context, playerID players.PlayerID, playerName string, delta int64, reason string) (reputation.AwardResult, error)
	Leaderboard(ctx context.Context, limit int) ([]reputation.Record, error)
}

// RoleService exposes mandates and their notifications.
type RoleService interface {
	HoldingsOf(ctx context.Context, playerID players.PlayerID) ([]roles.Holder, error)
	DeliverPending(ctx context.Context, playerID players.PlayerID) (int, error)
}

// RegionNames resolves region display names.
type RegionNames interface {
	DisplayName(regionID string) string
}

// Eligibility decides whether a player may run or vote.
type Eligibility interface {
	MeetsRequirements(ctx context.Context, playerID players.PlayerID) bool
}

// TokenValidator checks operator bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

type Dependencies struct {
	Elections      ElectionService
	Progressor     Progressor
	Players        PlayerDirectory
	Reputation     ReputationService
	Roles          RoleService
	Regions        RegionNames
	Eligibility    Eligibility
	TokenManager   TokenValidator
	Realtime       *RealtimeDispatcher
	Reload         func(ctx context.Context) error
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Elections == nil {
		return nil, errMissingElections
	}
	if deps.Progressor == nil {
		return nil, errMissingProgressor
	}
	if deps.Players == nil {
		return nil, errMissingPlayers
	}
	if deps.Reputation == nil {
		return nil, errMissingReputation
	}
	if deps.Roles == nil {
		return nil, errMissingRoles
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		elections:   deps.Elections,
		progressor:  deps.Progressor,
		players:     deps.Players,
		reputation:  deps.Reputation,
		roles:       deps.Roles,
		regions:     deps.Regions,
		eligibility: deps.Eligibility,
		tokens:      deps.TokenManager,
		realtime:    realtime,
		reload:      deps.Reload,
		logger:      logger,
	}

	router.GET("/election", handler.handleElection)
	router.GET("/election/candidates", handler.handleCandidates)
	router.POST("/election/candidates", handler.handleRegister)
	router.POST("/election/votes", handler.handleVote)
	router.GET("/players/:uuid", handler.handlePlayer)
	router.GET("/players/:uuid/events", handler.handlePlayerEvents)

	admin := router.Group("/admin")
	admin.Use(handler.authorizeRequest)
	admin.POST("/elections", handler.handleStart)
	admin.POST("/elections/progress", handler.handleProgress)
	admin.POST("/elections/rotate", handler.handleRotate)
	admin.POST("/reputation", handler.handleAdjust)
	admin.POST("/config/reload", handler.handleReload)
	admin.GET("/status", handler.handleStatus)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "Cache-Control", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

type httpHandler struct {
	elections   ElectionService
	progressor  Progressor
	players     PlayerDirectory
	reputation  ReputationService
	roles       RoleService
	regions     RegionNames
	eligibility Eligibility
	tokens      TokenValidator
	realtime    *RealtimeDispatcher
	reload      func(ctx context.Context) error
	logger      *zap.Logger
}

type candidatePayload struct {
	ID         int64  `json:"id"`
	PlayerUUID string `json:"player_uuid"`
	PlayerName string `json:"player_name"`
	Role       string `json:"role"`
	Slogan     string `json:"slogan,omitempty"`
	Votes      int64  `json:"votes"`
}

type electionPayload struct {
	ID                 int64              `json:"id"`
	RegionID           string             `json:"region_id"`
	RegionName         string             `json:"region_name"`
	Phase              elections.Phase    `json:"phase"`
	PhaseName          string             `json:"phase_name"`
	StartedAtSeconds   int64              `json:"started_at_s"`
	PhaseEndsAtSeconds int64              `json:"phase_ends_at_s"`
	RemainingSeconds   int64              `json:"remaining_s"`
	Candidates         []candidatePayload `json:"candidates"`
}

type registerRequestPayload struct {
	PlayerUUID string `json:"player_uuid"`
	PlayerName string `json:"player_name"`
	Role       string `json:"role"`
	Slogan     string `json:"slogan"`
}

type voteRequestPayload struct {
	VoterUUID   string `json:"voter_uuid"`
	VoterName   string `json:"voter_name"`
	CandidateID int64  `json:"candidate_id"`
}

type holdingPayload struct {
	RegionID       string `json:"region_id"`
	Role           string `json:"role"`
	ElectionID     int64  `json:"election_id"`
	EndsAtSeconds  int64  `json:"ends_at_s"`
	StartedSeconds int64  `json:"started_at_s"`
}

type playerPayload struct {
	PlayerUUID string           `json:"player_uuid"`
	PlayerName string           `json:"player_name"`
	Points     int64            `json:"points"`
	Title      string           `json:"title,omitempty"`
	Roles      []holdingPayload `json:"roles"`
}

type transitionPayload struct {
	From     elections.Phase  `json:"from"`
	To       elections.Phase  `json:"to,omitempty"`
	Election electionPayload  `json:"election"`
	Opened   *electionPayload `json:"opened,omitempty"`
}

type startRequestPayload struct {
	RegionID string `json:"region_id"`
}

type adjustRequestPayload struct {
	Player string `json:"player"`
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

type leaderboardEntryPayload struct {
	PlayerUUID string `json:"player_uuid"`
	PlayerName string `json:"player_name"`
	Points     int64  `json:"points"`
}

func (h *httpHandler) handleElection(c *gin.Context) {
	snapshot, err := h.elections.Status(c.Request.Context(), h.progressor.Durations())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.snapshotPayload(snapshot))
}

func (h *httpHandler) handleCandidates(c *gin.Context) {
	candidates, err := h.elections.Candidates(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidatePayloads(candidates)})
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	playerID, err := players.NewPlayerID(request.PlayerUUID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	if !h.eligible(ctx, playerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not_eligible"})
		return
	}

	candidate, err := h.elections.RegisterCandidate(ctx, elections.Registration{
		PlayerID:   playerID,
		PlayerName: request.PlayerName,
		Role:       strings.ToLower(strings.TrimSpace(request.Role)),
		Slogan:     request.Slogan,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.touch(ctx, playerID, candidate.PlayerName)
	c.JSON(http.StatusCreated, candidatePayloads([]elections.Candidate{candidate})[0])
}

func (h *httpHandler) handleVote(c *gin.Context) {
	var request voteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.CandidateID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	voterID, err := players.NewPlayerID(request.VoterUUID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	if !h.eligible(ctx, voterID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not_eligible"})
		return
	}

	if err := h.elections.CastVote(ctx, voterID, request.CandidateID); err != nil {
		h.respondError(c, err)
		return
	}
	h.touch(ctx, voterID, request.VoterName)
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (h *httpHandler) handlePlayer(c *gin.Context) {
	playerID, err := players.NewPlayerID(c.Param("uuid"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	standing, err := h.reputation.Standing(ctx, playerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	holdings, err := h.roles.HoldingsOf(ctx, playerID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response := playerPayload{
		PlayerUUID: playerID.String(),
		PlayerName: standing.PlayerName,
		Points:     standing.Points,
		Roles:      make([]holdingPayload, 0, len(holdings)),
	}
	if response.PlayerName == "" {
		if name, err := h.players.ResolveName(ctx, playerID); err == nil {
			response.PlayerName = name
		}
	}
	if standing.Tier != nil {
		response.Title = standing.Tier.Title
	}
	for _, holding := range holdings {
		response.Roles = append(response.Roles, holdingPayload{
			RegionID:       holding.RegionID,
			Role:           holding.Role,
			ElectionID:     holding.ElectionID,
			StartedSeconds: holding.StartedAtSeconds,
			EndsAtSeconds:  holding.EndsAtSeconds,
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handlePlayerEvents(c *gin.Context) {
	playerID, err := players.NewPlayerID(c.Param("uuid"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	if name := strings.TrimSpace(c.Query("name")); name != "" {
		h.touch(ctx, playerID, name)
	}

	stream, cleanup := h.realtime.Subscribe(ctx, playerID)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	if delivered, err := h.roles.DeliverPending(ctx, playerID); err != nil {
		h.logger.Warn("pending notification delivery failed",
			zap.String("player_uuid", playerID.String()),
			zap.Error(err))
	} else if delivered > 0 {
		h.logger.Info("pending notifications delivered",
			zap.String("player_uuid", playerID.String()),
			zap.Int("count", delivered))
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, gin.H{
				"source":    realtimeSourceBackend,
				"timestamp": message.Timestamp.Unix(),
				"payload":   message.Payload,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": tick.UTC().Unix()})
			return true
		}
	})
}

func (h *httpHandler) handleStart(c *gin.Context) {
	var request startRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.RegionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	ctx := c.Request.Context()
	election, err := h.elections.StartNewElection(ctx, strings.ToLower(strings.TrimSpace(request.RegionID)))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("election started by operator",
		zap.String("operator", c.GetString(operatorContextKey)),
		zap.Int64("election_id", election.ID),
		zap.String("region_id", election.RegionID))
	h.realtime.Announce(ctx, scheduler.Announcement{
		Kind:       scheduler.AnnouncementElectionStarted,
		ElectionID: election.ID,
		RegionID:   election.RegionID,
		Phase:      election.Phase,
	})
	c.JSON(http.StatusCreated, h.electionPayload(election))
}

func (h *httpHandler) handleProgress(c *gin.Context) {
	transition, err := h.progressor.Advance(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("election progressed by operator",
		zap.String("operator", c.GetString(operatorContextKey)),
		zap.Int64("election_id", transition.Election.ID),
		zap.String("from", string(transition.From)),
		zap.String("to", string(transition.To)))
	c.JSON(http.StatusOK, h.transitionPayload(transition))
}

func (h *httpHandler) handleRotate(c *gin.Context) {
	ctx := c.Request.Context()
	transition, err := h.elections.Rotate(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("election rotated by operator",
		zap.String("operator", c.GetString(operatorContextKey)),
		zap.Int64("election_id", transition.Election.ID))
	h.realtime.Announce(ctx, scheduler.Announcement{
		Kind:       scheduler.AnnouncementElectionClosed,
		ElectionID: transition.Election.ID,
		RegionID:   transition.Election.RegionID,
		Phase:      transition.From,
	})
	if transition.Opened != nil {
		h.realtime.Announce(ctx, scheduler.Announcement{
			Kind:       scheduler.AnnouncementElectionStarted,
			ElectionID: transition.Opened.ID,
			RegionID:   transition.Opened.RegionID,
			Phase:      transition.Opened.Phase,
		})
	}
	c.JSON(http.StatusOK, h.transitionPayload(transition))
}

func (h *httpHandler) handleAdjust(c *gin.Context) {
	var request adjustRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Player) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	ctx := c.Request.Context()
	playerID, playerName, err := h.players.Resolve(ctx, request.Player)
	if err != nil {
		h.respondError(c, err)
		return
	}

	result, err := h.reputation.Adjust(ctx, playerID, playerName, request.Delta, request.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("reputation adjusted by operator",
		zap.String("operator", c.GetString(operatorContextKey)),
		zap.String("player_uuid", playerID.String()),
		zap.Int64("delta", request.Delta))
	response := gin.H{"player_uuid": playerID.String(), "player_name": playerName, "points": result.Total}
	if result.Reached != nil {
		response["title"] = result.Reached.Title
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleReload(c *gin.Context) {
	if h.reload == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "reload_unavailable"})
		return
	}
	if err := h.reload(c.Request.Context()); err != nil {
		h.logger.Error("configuration reload failed",
			zap.String("operator", c.GetString(operatorContextKey)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reload_failed"})
		return
	}
	h.logger.Info("configuration reloaded", zap.String("operator", c.GetString(operatorContextKey)))
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	response := gin.H{"active": false}
	snapshot, err := h.elections.Status(ctx, h.progressor.Durations())
	switch {
	case err == nil:
		response["active"] = true
		response["election"] = h.snapshotPayload(snapshot)
	case !errors.Is(err, elections.ErrNoActiveElection):
		h.respondError(c, err)
		return
	}

	leaders, err := h.reputation.Leaderboard(ctx, leaderboardSize)
	if err != nil {
		h.respondError(c, err)
		return
	}
	leaderboard := make([]leaderboardEntryPayload, 0, len(leaders))
	for _, record := range leaders {
		leaderboard = append(leaderboard, leaderboardEntryPayload{
			PlayerUUID: record.PlayerUUID,
			PlayerName: record.PlayerName,
			Points:     record.Points,
		})
	}
	response["leaderboard"] = leaderboard
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	operator, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(operatorContextKey, operator)
	c.Next()
}

func (h *httpHandler) eligible(ctx context.Context, playerID players.PlayerID) bool {
	if h.eligibility == nil {
		return true
	}
	return h.eligibility.MeetsRequirements(ctx, playerID)
}

func (h *httpHandler) touch(ctx context.Context, playerID players.PlayerID, playerName string) {
	if strings.TrimSpace(playerName) == "" {
		return
	}
	if err := h.players.Touch(ctx, playerID, playerName); err != nil {
		h.logger.Warn("player directory update failed",
			zap.String("player_uuid", playerID.String()),
			zap.Error(err))
	}
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, code := classifyError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", code),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal_error", "code": code})
		return
	}
	c.JSON(status, gin.H{"error": code})
}

type codedError interface {
	Code() string
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, elections.ErrNoActiveElection):
		return http.StatusNotFound, "no_active_election"
	case errors.Is(err, elections.ErrCandidateNotFound):
		return http.StatusNotFound, "candidate_not_found"
	case errors.Is(err, players.ErrPlayerNotFound):
		return http.StatusNotFound, "player_not_found"
	case errors.Is(err, elections.ErrUnknownRegion):
		return http.StatusBadRequest, "unknown_region"
	case errors.Is(err, elections.ErrUnknownRole):
		return http.StatusBadRequest, "unknown_role"
	case errors.Is(err, elections.ErrSloganTooLong):
		return http.StatusBadRequest, "slogan_too_long"
	case errors.Is(err, players.ErrInvalidPlayerID):
		return http.StatusBadRequest, "invalid_player_id"
	case errors.Is(err, players.ErrInvalidPlayerName):
		return http.StatusBadRequest, "invalid_player_name"
	case errors.Is(err, reputation.ErrZeroAmount):
		return http.StatusBadRequest, "zero_amount"
	case errors.Is(err, elections.ErrElectionAlreadyActive):
		return http.StatusConflict, "election_already_active"
	case errors.Is(err, elections.ErrWrongPhase):
		return http.StatusConflict, "wrong_phase"
	case errors.Is(err, elections.ErrAlreadyRegistered):
		return http.StatusConflict, "already_registered"
	case errors.Is(err, elections.ErrAlreadyVoted):
		return http.StatusConflict, "already_voted"
	case errors.Is(err, elections.ErrAlreadyHoldsRole):
		return http.StatusConflict, "already_holds_role"
	}
	var coded codedError
	if errors.As(err, &coded) {
		return http.StatusInternalServerError, coded.Code()
	}
	return http.StatusInternalServerError, "internal_error"
}

func (h *httpHandler) regionName(regionID string) string {
	if h.regions == nil {
		return regionID
	}
	return h.regions.DisplayName(regionID)
}

func (h *httpHandler) electionPayload(election elections.Election) electionPayload {
	durations := h.progressor.Durations()
	return electionPayload{
		ID:                 election.ID,
		RegionID:           election.RegionID,
		RegionName:         h.regionName(election.RegionID),
		Phase:              election.Phase,
		PhaseName:          election.Phase.DisplayName(),
		StartedAtSeconds:   election.StartedAtSeconds,
		PhaseEndsAtSeconds: durations.PhaseEndsAt(election).Unix(),
		Candidates:         []candidatePayload{},
	}
}

func (h *httpHandler) snapshotPayload(snapshot elections.Snapshot) electionPayload {
	payload := h.electionPayload(snapshot.Election)
	payload.PhaseEndsAtSeconds = snapshot.PhaseEndsAt.Unix()
	payload.RemainingSeconds = int64(snapshot.Remaining / time.Second)
	payload.Candidates = candidatePayloads(snapshot.Candidates)
	return payload
}

func (h *httpHandler) transitionPayload(transition elections.Transition) transitionPayload {
	payload := transitionPayload{
		From:     transition.From,
		To:       transition.To,
		Election: h.electionPayload(transition.Election),
	}
	if transition.Opened != nil {
		opened := h.electionPayload(*transition.Opened)
		payload.Opened = &opened
	}
	return payload
}

func candidatePayloads(candidates []elections.Candidate) []candidatePayload {
	payloads := make([]candidatePayload, 0, len(candidates))
	for _, candidate := range candidates {
		payloads = append(payloads, candidatePayload{
			ID:         candidate.ID,
			PlayerUUID: candidate.PlayerUUID,
			PlayerName: candidate.PlayerName,
			Role:       candidate.Role,
			Slogan:     candidate.Slogan,
			Votes:      candidate.Votes,
		})
	}
	return payloads
}
