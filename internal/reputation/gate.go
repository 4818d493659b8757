package reputation

import (
	"context"
	"sync/atomic"

	"github.com/MarcoPoloResearchLab/elections/internal/players"
	"go.uber.org/zap"
)

// PointsReader reads a player's reputation total.
type PointsReader interface {
	Points(ctx context.Context, playerID players.PlayerID) (int64, error)
}

// RequirementGate admits players whose reputation reaches a configurable minimum.
type RequirementGate struct {
	points  PointsReader
	logger  *zap.Logger
	minimum atomic.Int64
}

// NewRequirementGate constructs a gate backed by the ledger.
func NewRequirementGate(points PointsReader, minimum int64, logger *zap.Logger) *RequirementGate {
	if logger == nil {
		logger = noOpLogger
	}
	gate := &RequirementGate{points: points, logger: logger}
	gate.minimum.Store(minimum)
	return gate
}

// SetMinimum replaces the required reputation.
func (g *RequirementGate) SetMinimum(minimum int64) {
	g.minimum.Store(minimum)
}

// MeetsRequirements reports whether the player may take part. Lookup failures deny.
func (g *RequirementGate) MeetsRequirements(ctx context.Context, playerID players.PlayerID) bool {
	minimum := g.minimum.Load()
	if minimum <= 0 {
		return true
	}
	points, err := g.points.Points(ctx, playerID)
	if err != nil {
		g.logger.Warn("eligibility lookup failed",
			zap.String("player_uuid", playerID.String()),
			zap.Error(err))
		return false
	}
	return points >= minimum
}
