package browserd

import (
	"github.com/quarev/browserd/internal/content"
	"github.com/quarev/browserd/internal/engine"
	"github.com/quarev/browserd/internal/track"
)

// Sentinel errors surfaced by Service operations. Check with errors.Is.
var (
	// ErrEngineUnavailable means the browser engine is not initialized or
	// its last health probe failed. Recovery requires Initialize.
	ErrEngineUnavailable = engine.ErrUnavailable

	// ErrSessionNotFound means the session id is unknown or the session is
	// shutting down.
	ErrSessionNotFound = track.ErrSessionNotFound

	// ErrSessionExists means a caller-supplied session id collides with a
	// live session.
	ErrSessionExists = track.ErrSessionExists

	// ErrTabNotFound means the tab id is unknown.
	ErrTabNotFound = track.ErrTabNotFound

	// ErrTabBusy means the tab already has a navigation in flight.
	ErrTabBusy = track.ErrTabBusy

	// ErrBadFormat means GetContent was asked for an unknown format.
	ErrBadFormat = content.ErrBadFormat
)
