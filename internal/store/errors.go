package store

import (
	"time"

	"github.com/google/uuid"
)

// PushError appends a user-visible error and sets the current error slot.
// autoHide of zero uses the default delay; a negative value keeps the item
// until dismissed. When the queue is full the oldest item is evicted.
func (s *Store) PushError(message string, severity Severity, autoHide time.Duration) string {
	if severity == "" {
		severity = SeverityError
	}
	if autoHide == 0 {
		autoHide = s.opts.DefaultErrorAutoHide
	}

	item := ErrorItem{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		CreatedAt: s.now(),
	}
	if autoHide > 0 {
		item.AutoHide = autoHide
	}

	s.commit(func(st *State) bool {
		st.Errors = append(st.Errors, item)
		for len(st.Errors) > s.opts.MaxErrorQueue {
			evicted := st.Errors[0]
			st.Errors = append([]ErrorItem(nil), st.Errors[1:]...)
			s.stopTimerLocked(evicted.ID)
		}
		st.Error = message
		if autoHide > 0 {
			id := item.ID
			s.timers[id] = time.AfterFunc(autoHide, func() { s.DismissError(id) })
		}
		return true
	})

	s.logger.Debug().Str("id", item.ID).Str("severity", string(severity)).Msg(message)
	return item.ID
}

// DismissError removes an item and cancels its auto-hide timer.
func (s *Store) DismissError(id string) bool {
	return s.commit(func(st *State) bool {
		idx := -1
		for i, item := range st.Errors {
			if item.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false
		}

		removed := st.Errors[idx]
		st.Errors = append(st.Errors[:idx:idx], st.Errors[idx+1:]...)
		s.stopTimerLocked(id)

		if st.Error == removed.Message {
			st.Error = ""
			if n := len(st.Errors); n > 0 {
				st.Error = st.Errors[n-1].Message
			}
		}
		return true
	})
}

// ClearErrors drops the whole queue and the current error.
func (s *Store) ClearErrors() {
	s.Update(func(st *State) {
		for _, item := range st.Errors {
			s.stopTimerLocked(item.ID)
		}
		st.Errors = nil
		st.Error = ""
	})
}

// SetError fills the current error slot without queueing.
func (s *Store) SetError(message string) {
	s.Update(func(st *State) { st.Error = message })
}

// ClearError empties the current error slot; queued items stay.
func (s *Store) ClearError() {
	s.Update(func(st *State) { st.Error = "" })
}

// Close stops every pending auto-hide timer.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.timers {
		s.stopTimerLocked(id)
	}
}

// stopTimerLocked requires s.mu held.
func (s *Store) stopTimerLocked(id string) {
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}
