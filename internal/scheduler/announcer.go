package scheduler

import (
	"context"

	"github.com/MarcoPoloResearchLab/elections/internal/elections"
	"go.uber.org/zap"
)

// AnnouncementKind identifies a broadcast about the election cycle.
type AnnouncementKind string

const (
	AnnouncementPhaseChanged    AnnouncementKind = "phase_changed"
	AnnouncementElectionClosed  AnnouncementKind = "election_closed"
	AnnouncementElectionStarted AnnouncementKind = "election_started"
)

// Announcement is broadcast to every connected player.
type Announcement struct {
	Kind       AnnouncementKind `json:"kind"`
	ElectionID int64            `json:"election_id"`
	RegionID   string           `json:"region_id"`
	Phase      elections.Phase  `json:"phase"`
	Winners    []Winner         `json:"winners,omitempty"`
}

// Winner is the public view of an elected candidate.
type Winner struct {
	CandidateID int64  `json:"candidate_id"`
	PlayerUUID  string `json:"player_uuid"`
	PlayerName  string `json:"player_name"`
	Role        string `json:"role"`
	Votes       int64  `json:"votes"`
}

func announcedWinners(candidates []elections.Candidate) []Winner {
	if len(candidates) == 0 {
		return nil
	}
	winners := make([]Winner, 0, len(candidates))
	for _, candidate := range candidates {
		winners = append(winners, Winner{
			CandidateID: candidate.ID,
			PlayerUUID:  candidate.PlayerUUID,
			PlayerName:  candidate.PlayerName,
			Role:        candidate.Role,
			Votes:       candidate.Votes,
		})
	}
	return winners
}

// Announcer publishes election cycle announcements.
type Announcer interface {
	Announce(ctx context.Context, announcement Announcement)
}

// LogAnnouncer writes announcements to the log when no realtime channel is configured.
type LogAnnouncer struct {
	Logger *zap.Logger
}

// Announce logs the announcement.
func (a LogAnnouncer) Announce(_ context.Context, announcement Announcement) {
	logger := a.Logger
	if logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("kind", string(announcement.Kind)),
		zap.Int64("election_id", announcement.ElectionID),
		zap.String("region_id", announcement.RegionID),
		zap.String("phase", string(announcement.Phase)),
	}
	for _, winner := range announcement.Winners {
		fields = append(fields, zap.String("winner."+winner.Role, winner.PlayerName))
	}
	logger.Info("election announcement", fields...)
}
