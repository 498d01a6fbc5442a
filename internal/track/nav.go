package track

import (
	"time"
)

// BeginNavigation arms the single-writer navigation gate on a tab. While a
// navigation is in flight every further mutating call gets ErrTabBusy
// instead of being queued, keeping the state machine deterministic.
func (s *Store) BeginNavigation(id string) (NavHandle, error) {
	s.mu.RLock()
	t, ok := s.tabs[id]
	s.mu.RUnlock()
	if !ok {
		return NavHandle{}, ErrTabNotFound
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return NavHandle{}, ErrTabNotFound
	}
	if t.state == NavNavigating {
		return NavHandle{}, ErrTabBusy
	}
	t.state = NavNavigating
	t.loading = true
	t.lastActive = time.Now()
	return NavHandle{TabID: t.id, SessionID: t.sessionID, URL: t.url, Page: t.page}, nil
}

// BeginHistoryNavigation is BeginNavigation for back/forward: it resolves
// the prior/later history entry for this tab relative to its cursor, arming
// the gate only when such an entry exists. ErrNoHistory leaves the tab
// state untouched.
func (s *Store) BeginHistoryNavigation(id string, dir Direction) (NavHandle, NavigationEvent, int, error) {
	s.mu.RLock()
	t, ok := s.tabs[id]
	var sess *session
	if ok {
		sess = s.sessions[t.sessionID]
	}
	s.mu.RUnlock()
	if !ok || sess == nil {
		return NavHandle{}, NavigationEvent{}, 0, ErrTabNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.removed {
		return NavHandle{}, NavigationEvent{}, 0, ErrTabNotFound
	}
	if t.state == NavNavigating {
		return NavHandle{}, NavigationEvent{}, 0, ErrTabBusy
	}

	idx := scanHistory(sess.history, t.id, t.cursor, dir)
	if idx < 0 {
		return NavHandle{}, NavigationEvent{}, 0, ErrNoHistory
	}

	t.state = NavNavigating
	t.loading = true
	t.lastActive = time.Now()
	h := NavHandle{TabID: t.id, SessionID: t.sessionID, URL: t.url, Page: t.page}
	return h, sess.history[idx], idx, nil
}

// scanHistory finds the nearest entry owned by tabID before/after cursor.
// The history itself is append-only; scanning never rewrites past entries.
func scanHistory(history []NavigationEvent, tabID string, cursor int, dir Direction) int {
	switch dir {
	case DirBack:
		for i := cursor - 1; i >= 0; i-- {
			if history[i].TabID == tabID {
				return i
			}
		}
	case DirForward:
		if cursor < 0 {
			return -1
		}
		for i := cursor + 1; i < len(history); i++ {
			if history[i].TabID == tabID {
				return i
			}
		}
	}
	return -1
}

// CompleteNavigation records a successful load: exactly one NavigationEvent
// is appended to the owning session, the tab moves to Loaded and its cursor
// points at the new entry. Returns false when the tab was closed while the
// navigation was in flight; the result is then dropped without touching any
// removed entry.
func (s *Store) CompleteNavigation(id, url, title string) bool {
	s.mu.RLock()
	t, ok := s.tabs[id]
	var sess *session
	if ok {
		sess = s.sessions[t.sessionID]
	}
	s.mu.RUnlock()
	if !ok || sess == nil {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.removed {
		return false
	}

	sess.history = append(sess.history, NavigationEvent{
		URL:       url,
		Title:     title,
		TabID:     t.id,
		Timestamp: time.Now(),
	})
	t.cursor = len(sess.history) - 1
	t.url = url
	t.title = title
	t.state = NavLoaded
	t.loading = false
	t.lastActive = time.Now()
	return true
}

// RepositionNavigation records a successful back/forward load: the tab
// moves to Loaded with its cursor repositioned onto the historical entry.
// No event is appended, so repeated back/forward cycles stay deterministic
// and the history remains an append-only record of fresh loads.
func (s *Store) RepositionNavigation(id string, idx int, url, title string) bool {
	s.mu.RLock()
	t, ok := s.tabs[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return false
	}
	t.cursor = idx
	t.url = url
	t.title = title
	t.state = NavLoaded
	t.loading = false
	t.lastActive = time.Now()
	return true
}

// FailNavigation records a failed or timed-out load. Returns false when the
// tab was closed while the navigation was in flight.
func (s *Store) FailNavigation(id string) bool {
	s.mu.RLock()
	t, ok := s.tabs[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return false
	}
	t.state = NavFailed
	t.loading = false
	t.lastActive = time.Now()
	return true
}
