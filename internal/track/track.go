// Package track owns the in-process bookkeeping for sessions and tabs: an
// explicit store passed to collaborators, never ambient global state. The
// store is the sole source of truth for existence of sessions and tabs; no
// secondary cache is allowed to drift from it.
//
// Locking: store mutex guards map membership, a per-session mutex guards
// that session's tab set and history, a per-tab mutex guards the tab's
// fields and its navigation gate. Lock order is store -> session -> tab.
// Engine-facing calls never happen under any of these locks.
package track

import (
	"errors"
	"time"

	"github.com/quarev/browserd/internal/engine"
)

// ErrSessionNotFound is returned when a session id is unknown, or the
// session is no longer accepting operations (Closing/Closed).
var ErrSessionNotFound = errors.New("track: session not found")

// ErrSessionExists is returned when a caller-supplied session id collides
// with a live session.
var ErrSessionExists = errors.New("track: session already exists")

// ErrTabNotFound is returned when a tab id is unknown or already closed.
var ErrTabNotFound = errors.New("track: tab not found")

// ErrTabBusy is returned when a mutating navigation call is issued while
// another one is in flight on the same tab. Single-writer discipline:
// callers retry, the store never queues.
var ErrTabBusy = errors.New("track: tab busy")

// ErrNoHistory is returned by history navigation when no prior/later entry
// exists. Callers surface it as a non-error outcome, not a failure.
var ErrNoHistory = errors.New("track: no history entry")

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionClosing SessionStatus = "closing"
	SessionClosed  SessionStatus = "closed"
)

// NavState is the per-tab navigation state machine. A tab starts Idle and
// cycles between Navigating, Loaded and Failed for its whole life.
type NavState string

const (
	NavIdle       NavState = "idle"
	NavNavigating NavState = "navigating"
	NavLoaded     NavState = "loaded"
	NavFailed     NavState = "failed"
)

// NavigationEvent is an immutable record of a completed navigation,
// appended to the owning session's history. Never rewritten.
type NavigationEvent struct {
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	TabID     string    `json:"tab_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Direction selects history navigation.
type Direction int

const (
	DirBack    Direction = -1
	DirForward Direction = 1
)

// SessionInfo is a point-in-time snapshot of a session.
type SessionInfo struct {
	ID         string        `json:"id"`
	CreatedAt  time.Time     `json:"created_at"`
	Status     SessionStatus `json:"status"`
	TabIDs     []string      `json:"tab_ids"`
	HistoryLen int           `json:"history_len"`
}

// TabInfo is a point-in-time snapshot of a tab. HistoryLen counts the
// navigation events this tab contributed to its session's history.
type TabInfo struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Loading    bool      `json:"loading"`
	Pinned     bool      `json:"pinned"`
	GroupID    string    `json:"group_id,omitempty"`
	State      NavState  `json:"state"`
	HistoryLen int       `json:"history_len"`
}

// NavHandle is what a navigation needs to proceed outside the locks: the
// engine page and the identity of the tab it belongs to.
type NavHandle struct {
	TabID     string
	SessionID string
	URL       string
	Page      engine.Page
}
