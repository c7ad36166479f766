package session

import "errors"

var (
	// ErrDuplicateSession is returned when the destination already has a live session.
	ErrDuplicateSession = errors.New("session: destination already has an active leaderboard")
	// ErrSessionNotFound is returned by Stop and ManualClear for an idle destination.
	ErrSessionNotFound = errors.New("session: no leaderboard for destination")
	// ErrInvalidRequest wraps create-request validation failures.
	ErrInvalidRequest = errors.New("session: invalid request")
	// ErrFetchFailed wraps the fetcher error that aborted a create.
	ErrFetchFailed = errors.New("session: fetching leaderboard data failed")
	// ErrRenderFailed wraps the sink error that aborted a create.
	ErrRenderFailed = errors.New("session: posting leaderboard failed")
)
