package elections

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/elections/internal/players"
)

var (
	// ErrNoActiveElection indicates that no election is currently open.
	ErrNoActiveElection = errors.New("elections: no active election")
	// ErrElectionAlreadyActive indicates that an election is already open.
	ErrElectionAlreadyActive = errors.New("elections: election already active")
	// ErrWrongPhase indicates that the operation is not allowed in the current phase.
	ErrWrongPhase = errors.New("elections: operation not allowed in current phase")
	// ErrAlreadyRegistered indicates that the player already runs in this election.
	ErrAlreadyRegistered = errors.New("elections: player already registered")
	// ErrAlreadyVoted indicates that the voter already voted in this election.
	ErrAlreadyVoted = errors.New("elections: player already voted")
	// ErrAlreadyHoldsRole indicates that the player still serves a mandate in the region.
	ErrAlreadyHoldsRole = errors.New("elections: player already holds an active role")
	// ErrCandidateNotFound indicates that the candidate does not run in the current election.
	ErrCandidateNotFound = errors.New("elections: candidate not found")
	// ErrUnknownRegion indicates that the region is not part of the catalog.
	ErrUnknownRegion = errors.New("elections: unknown region")
	// ErrUnknownRole indicates that the role is not configured.
	ErrUnknownRole = errors.New("elections: unknown role")
	// ErrSloganTooLong indicates that the slogan exceeds MaxSloganLength runes.
	ErrSloganTooLong = errors.New("elections: slogan too long")

	errMissingDatabase = errors.New("database handle is required")
	errMissingRegions  = errors.New("region rotation is required")
)

var preconditionErrors = []error{
	ErrNoActiveElection,
	ErrElectionAlreadyActive,
	ErrWrongPhase,
	ErrAlreadyRegistered,
	ErrAlreadyVoted,
	ErrAlreadyHoldsRole,
	ErrCandidateNotFound,
	ErrUnknownRegion,
	ErrUnknownRole,
	ErrSloganTooLong,
	players.ErrInvalidPlayerID,
	players.ErrInvalidPlayerName,
}

// IsPrecondition reports whether err is a business-rule violation rather than a storage fault.
func IsPrecondition(err error) bool {
	for _, target := range preconditionErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ServiceError wraps unexpected storage faults with a stable code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew        = "elections.service.new"
	opLoad              = "elections.load"
	opStartNewElection  = "elections.start_new_election"
	opRegisterCandidate = "elections.register_candidate"
	opCastVote          = "elections.cast_vote"
	opProgressElection  = "elections.progress_election"
	opRotate            = "elections.rotate"
	opListCandidates    = "elections.list_candidates"
	opListVoters        = "elections.list_voters"
	opHasVoted          = "elections.has_voted"
	opIsRegistered      = "elections.is_registered"

	reasonMissingDatabase = "missing_database"
	reasonMissingRegions  = "missing_regions"
	reasonQueryFailed     = "query_failed"
	reasonInsertFailed    = "insert_failed"
	reasonUpdateFailed    = "update_failed"
	reasonIncumbencyCheck = "incumbency_check_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
