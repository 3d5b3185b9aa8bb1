package discovery

import "errors"

var (
	// ErrMissingSpawn indicates a watcher was built without a spawn callback.
	ErrMissingSpawn = errors.New("discovery: spawn callback is required")

	// ErrMissingDirectory indicates a watcher was built without a directory.
	ErrMissingDirectory = errors.New("discovery: messaging socket directory is required")

	// ErrMissingBrokerDirectory indicates a watcher was built without the
	// broker socket directory used to derive slot paths.
	ErrMissingBrokerDirectory = errors.New("discovery: broker socket directory is required")
)
