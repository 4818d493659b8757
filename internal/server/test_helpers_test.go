package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/elections/internal/auth"
	"github.com/MarcoPoloResearchLab/elections/internal/database"
	"github.com/MarcoPoloResearchLab/elections/internal/elections"
	"github.com/MarcoPoloResearchLab/elections/internal/players"
	"github.com/MarcoPoloResearchLab/elections/internal/regions"
	"github.com/MarcoPoloResearchLab/elections/internal/reputation"
	"github.com/MarcoPoloResearchLab/elections/internal/roles"
	"github.com/MarcoPoloResearchLab/elections/internal/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSigningSecret = "test-signing-secret"

var testDurations = elections.Durations{Registration: 7 * 24 * time.Hour, Voting: 7 * 24 * time.Hour, Mandate: 30 * 24 * time.Hour}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testStack struct {
	db         *gorm.DB
	clock      *testClock
	elections  *elections.Service
	players    *players.Service
	reputation *reputation.Service
	roles      *roles.Service
	gate       *reputation.RequirementGate
	scheduler  *scheduler.Scheduler
	tokens     *auth.TokenIssuer
	realtime   *RealtimeDispatcher
	handler    http.Handler
	reloads    int
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "server.db"), zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	clock := &testClock{now: time.Unix(1760000000, 0).UTC()}
	regionCatalog := regions.NewCatalog([]string{"spawn", "desert"}, []regions.Region{
		{ID: "spawn", DisplayName: "Spawn Town"},
		{ID: "desert", DisplayName: "Desert"},
	})
	roleCatalog := roles.NewCatalog([]roles.Definition{
		{ID: "mayor", DisplayName: "Mayor", PermissionGroup: "mayors"},
		{ID: "sheriff", DisplayName: "Sheriff", PermissionGroup: "sheriffs"},
	})

	dispatcher := NewRealtimeDispatcher()
	playerService, err := players.NewService(players.ServiceConfig{Database: db, Clock: clock.Now})
	require.NoError(t, err)
	roleService, err := roles.NewService(roles.ServiceConfig{
		Database: db,
		Catalog:  roleCatalog,
		Notifier: dispatcher,
		Mandate:  testDurations.Mandate,
		Clock:    clock.Now,
	})
	require.NoError(t, err)
	electionService, err := elections.NewService(elections.ServiceConfig{
		Database:   db,
		Regions:    regionCatalog,
		Roles:      roleCatalog,
		Incumbents: roleService,
		Clock:      clock.Now,
	})
	require.NoError(t, err)
	reputationService, err := reputation.NewService(reputation.ServiceConfig{
		Database:    db,
		IDProvider:  reputation.NewUUIDProvider(),
		Clock:       clock.Now,
		Amounts:     reputation.DefaultAmounts(),
		RoleRewards: roleCatalog,
		Names:       playerService,
		Tiers:       []reputation.Tier{{MinPoints: 10, Title: "Citizen"}},
	})
	require.NoError(t, err)
	gate := reputation.NewRequirementGate(reputationService, 0, nil)
	electionScheduler, err := scheduler.New(scheduler.Config{
		Elections: electionService,
		Rewards:   reputationService,
		Grants:    roleService,
		Announcer: dispatcher,
		Durations: testDurations,
		Clock:     clock.Now,
	})
	require.NoError(t, err)
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      time.Hour,
		Clock:         clock.Now,
	})
	require.NoError(t, err)

	stack := &testStack{
		db:         db,
		clock:      clock,
		elections:  electionService,
		players:    playerService,
		reputation: reputationService,
		roles:      roleService,
		gate:       gate,
		scheduler:  electionScheduler,
		tokens:     tokens,
		realtime:   dispatcher,
	}
	handler, err := NewHTTPHandler(Dependencies{
		Elections:    electionService,
		Progressor:   electionScheduler,
		Players:      playerService,
		Reputation:   reputationService,
		Roles:        roleService,
		Regions:      regionCatalog,
		Eligibility:  gate,
		TokenManager: tokens,
		Realtime:     dispatcher,
		Reload: func(_ context.Context) error {
			stack.reloads++
			return nil
		},
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	stack.handler = handler
	return stack
}

func (s *testStack) operatorToken(t *testing.T) string {
	t.Helper()
	token, _, err := s.tokens.IssueOperatorToken("alice")
	require.NoError(t, err)
	return token
}

func (s *testStack) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), target))
}
