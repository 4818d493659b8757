package roles

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/elections/internal/elections"
	"github.com/MarcoPoloResearchLab/elections/internal/players"
)

const (
	annUUID = "0b6c3b1e-8d5b-4b39-9d43-1d2f6b0a7c11"
	bobUUID = "5f1e2d3c-4b5a-4978-8695-a4b3c2d1e0f9"
	mandate = 30 * 24 * time.Hour
)

type authorizerCall struct {
	op       string
	playerID players.PlayerID
	group    string
	regionID string
}

type recordingAuthorizer struct {
	mu        sync.Mutex
	calls     []authorizerCall
	grantErr  error
	revokeErr error
}

func (a *recordingAuthorizer) GrantTimeBoundRole(_ context.Context, playerID players.PlayerID, group, regionID string, _ time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, authorizerCall{op: "grant", playerID: playerID, group: group, regionID: regionID})
	return a.grantErr
}

func (a *recordingAuthorizer) RevokeTimeBoundRole(_ context.Context, playerID players.PlayerID, group, regionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, authorizerCall{op: "revoke", playerID: playerID, group: group, regionID: regionID})
	return a.revokeErr
}

func (a *recordingAuthorizer) count(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, call := range a.calls {
		if call.op == op {
			total++
		}
	}
	return total
}

type recordingNotifier struct {
	mu        sync.Mutex
	reachable map[players.PlayerID]bool
	sent      []Notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{reachable: make(map[players.PlayerID]bool)}
}

func (n *recordingNotifier) Reachable(playerID players.PlayerID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reachable[playerID]
}

func (n *recordingNotifier) Notify(_ context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) setReachable(playerID players.PlayerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reachable[playerID] = true
}

func (n *recordingNotifier) kinds() []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]NotificationKind, 0, len(n.sent))
	for _, notification := range n.sent {
		kinds = append(kinds, notification.Kind)
	}
	return kinds
}

type fixture struct {
	db         *gorm.DB
	service    *Service
	authorizer *recordingAuthorizer
	notifier   *recordingNotifier
	now        *time.Time
}

func newFixture(t *testing.T, logger *zap.Logger) fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "roles.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Holder{}))

	now := time.Unix(1760000000, 0).UTC()
	authorizer := &recordingAuthorizer{}
	notifier := newRecordingNotifier()
	service, err := NewService(ServiceConfig{
		Database: db,
		Catalog: NewCatalog([]Definition{
			{ID: "mayor", DisplayName: "Mayor", PermissionGroup: "mayors"},
			{ID: "jester"},
		}),
		Authorizer: authorizer,
		Notifier:   notifier,
		Mandate:    mandate,
		Clock:      func() time.Time { return now },
		Logger:     logger,
	})
	require.NoError(t, err)
	return fixture{db: db, service: service, authorizer: authorizer, notifier: notifier, now: &now}
}

func winner(uuid, name, role string) elections.Candidate {
	return elections.Candidate{PlayerUUID: uuid, PlayerName: name, Role: role}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceConfig{})
	var serviceErr *ServiceError
	require.True(t, errors.As(err, &serviceErr))
	assert.Equal(t, "roles.service.new.missing_database", serviceErr.Code())

	_, err = NewService(ServiceConfig{Database: &gorm.DB{}})
	require.True(t, errors.As(err, &serviceErr))
	assert.Equal(t, "roles.service.new.missing_catalog", serviceErr.Code())
}

func TestAssignWinners(t *testing.T) {
	ctx := context.Background()

	t.Run("grants mapped roles and skips unmapped ones", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		f := newFixture(t, zap.New(core))

		assigned, err := f.service.AssignWinners(ctx, Grant{
			ElectionID: 3,
			RegionID:   "spawn",
			Winners:    []elections.Candidate{winner(annUUID, "Ann", "mayor"), winner(bobUUID, "Bob", "jester")},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, assigned)
		assert.Equal(t, 1, f.authorizer.count("grant"))
		assert.Equal(t, 1, logs.FilterMessage("role has no permission group, skipping winner").Len())

		holders, err := f.service.ActiveHolders(ctx, "spawn")
		require.NoError(t, err)
		require.Len(t, holders, 1)
		assert.Equal(t, annUUID, holders[0].PlayerUUID)
		assert.Equal(t, f.now.Add(mandate).Unix(), holders[0].EndsAtSeconds)
		assert.False(t, holders[0].Notified)

		holds, err := f.service.HasActiveRole(ctx, players.PlayerID(annUUID), "spawn")
		require.NoError(t, err)
		assert.True(t, holds)
		holds, err = f.service.HasActiveRole(ctx, players.PlayerID(annUUID), "desert")
		require.NoError(t, err)
		assert.False(t, holds)
	})

	t.Run("backend failure keeps the holder row", func(t *testing.T) {
		f := newFixture(t, nil)
		f.authorizer.grantErr = errors.New("permission backend down")

		assigned, err := f.service.AssignWinners(ctx, Grant{ElectionID: 1, RegionID: "spawn", Winners: []elections.Candidate{winner(annUUID, "Ann", "mayor")}})
		require.NoError(t, err)
		assert.Equal(t, 1, assigned)

		var count int64
		require.NoError(t, f.db.Model(&Holder{}).Count(&count).Error)
		assert.EqualValues(t, 1, count)
	})

	t.Run("reachable winners are notified immediately", func(t *testing.T) {
		f := newFixture(t, nil)
		f.notifier.setReachable(players.PlayerID(annUUID))

		_, err := f.service.AssignWinners(ctx, Grant{ElectionID: 1, RegionID: "spawn", Winners: []elections.Candidate{winner(annUUID, "Ann", "mayor")}})
		require.NoError(t, err)

		assert.Equal(t, []NotificationKind{NotificationWon}, f.notifier.kinds())
		var holder Holder
		require.NoError(t, f.db.Take(&holder).Error)
		assert.True(t, holder.Notified)
	})
}

func TestDeliverPendingDeliversOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ann := players.PlayerID(annUUID)
	_, err := f.service.AssignWinners(ctx, Grant{ElectionID: 1, RegionID: "spawn", Winners: []elections.Candidate{winner(annUUID, "Ann", "mayor")}})
	require.NoError(t, err)
	assert.Empty(t, f.notifier.kinds())

	f.notifier.setReachable(ann)
	delivered, err := f.service.DeliverPending(ctx, ann)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	delivered, err = f.service.DeliverPending(ctx, ann)
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Equal(t, []NotificationKind{NotificationWon}, f.notifier.kinds())
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("deactivates each expired holder exactly once", func(t *testing.T) {
		f := newFixture(t, nil)
		f.notifier.setReachable(players.PlayerID(annUUID))
		_, err := f.service.AssignWinners(ctx, Grant{ElectionID: 1, RegionID: "spawn", Winners: []elections.Candidate{winner(annUUID, "Ann", "mayor")}})
		require.NoError(t, err)

		swept, err := f.service.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Zero(t, swept)

		*f.now = f.now.Add(mandate)
		swept, err = f.service.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, swept)

		swept, err = f.service.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Zero(t, swept)

		assert.Equal(t, 1, f.authorizer.count("revoke"))
		assert.Equal(t, []NotificationKind{NotificationWon, NotificationExpired}, f.notifier.kinds())

		holds, err := f.service.HasActiveRole(ctx, players.PlayerID(annUUID), "spawn")
		require.NoError(t, err)
		assert.False(t, holds)
	})

	t.Run("revoke failures and unknown roles still deactivate", func(t *testing.T) {
		f := newFixture(t, nil)
		f.authorizer.revokeErr = errors.New("permission backend down")
		require.NoError(t, f.db.Create(&Holder{PlayerUUID: annUUID, PlayerName: "Ann", RegionID: "spawn", Role: "mayor", EndsAtSeconds: f.now.Unix() - 1, Active: true}).Error)
		require.NoError(t, f.db.Create(&Holder{PlayerUUID: bobUUID, PlayerName: "Bob", RegionID: "spawn", Role: "retired", EndsAtSeconds: f.now.Unix() - 1, Active: true}).Error)

		swept, err := f.service.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, swept)
		assert.Equal(t, 1, f.authorizer.count("revoke"))

		var active int64
		require.NoError(t, f.db.Model(&Holder{}).Where("active = ?", true).Count(&active).Error)
		assert.Zero(t, active)
	})

	t.Run("expired pending notifications are not delivered", func(t *testing.T) {
		f := newFixture(t, nil)
		ann := players.PlayerID(annUUID)
		_, err := f.service.AssignWinners(ctx, Grant{ElectionID: 1, RegionID: "spawn", Winners: []elections.Candidate{winner(annUUID, "Ann", "mayor")}})
		require.NoError(t, err)

		*f.now = f.now.Add(mandate + time.Hour)
		f.notifier.setReachable(ann)
		delivered, err := f.service.DeliverPending(ctx, ann)
		require.NoError(t, err)
		assert.Zero(t, delivered)
	})
}

func TestCatalog(t *testing.T) {
	catalog := NewCatalog([]Definition{
		{ID: " sheriff ", PermissionGroup: " sheriffs ", ReputationReward: 15},
		{ID: "mayor", DisplayName: "Mayor", PermissionGroup: "mayors"},
		{ID: ""},
	})

	assert.True(t, catalog.HasRole("sheriff"))
	assert.Equal(t, "sheriffs", catalog.Group("sheriff"))
	assert.Equal(t, "sheriff", catalog.DisplayName("sheriff"))
	assert.EqualValues(t, 15, catalog.RewardFor("sheriff"))
	assert.Zero(t, catalog.RewardFor("mayor"))
	assert.Equal(t, "ghost", catalog.DisplayName("ghost"))

	definitions := catalog.Definitions()
	require.Len(t, definitions, 2)
	assert.Equal(t, "mayor", definitions[0].ID)

	catalog.Replace(nil)
	assert.False(t, catalog.HasRole("mayor"))
}
