package reputation

import (
	"errors"
	"fmt"
)

var (
	// ErrZeroAmount indicates an award or adjustment that would not change the total.
	ErrZeroAmount = errors.New("reputation: amount must be non-zero")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

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
	opServiceNew       = "reputation.service.new"
	opAddPoints        = "reputation.add_points"
	opDistribute       = "reputation.distribute_election_rewards"
	opPoints           = "reputation.points"
	opLeaderboard      = "reputation.leaderboard"
	reasonMissingDB    = "missing_database"
	reasonMissingIDs   = "missing_id_provider"
	reasonIDFailed     = "id_generation_failed"
	reasonWriteFailed  = "write_failed"
	reasonQueryFailed  = "query_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
