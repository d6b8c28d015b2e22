package entity

import "errors"

var (
	// ErrRPC marks ledger failures: unreachable node or malformed response
	ErrRPC = errors.New("ledger rpc error")
	// ErrStorage marks read or write failures of the backing store
	ErrStorage = errors.New("storage error")
	// ErrValidation marks malformed input
	ErrValidation = errors.New("validation error")
	// ErrSyncInProgress is returned when a sync run is already in flight
	ErrSyncInProgress = errors.New("sync already in progress")
)
