package session

import (
	"sync"
	"time"
)

// remoteQuietWindow is how long the remote participant must be continuously
// absent from the active-speaker set before the remote-speaking flag drops.
// Absorbs natural mid-sentence pauses so the indicator does not flicker.
const remoteQuietWindow = 1500 * time.Millisecond

// SpeakingState debounces noisy active-speaker events into stable local and
// remote speaking flags. The local flag follows the set synchronously since
// muting is under direct user control.
type SpeakingState struct {
	mu        sync.Mutex
	window    time.Duration
	local     bool
	remote    bool
	fallTimer *time.Timer
	onChange  func(local, remote bool)
}

func NewSpeakingState(onChange func(local, remote bool)) *SpeakingState {
	return &SpeakingState{
		window:   remoteQuietWindow,
		onChange: onChange,
	}
}

func (s *SpeakingState) Update(localActive, remoteActive bool) {
	s.mu.Lock()
	changed := false
	if s.local != localActive {
		s.local = localActive
		changed = true
	}
	if remoteActive {
		if s.fallTimer != nil {
			s.fallTimer.Stop()
			s.fallTimer = nil
		}
		if !s.remote {
			s.remote = true
			changed = true
		}
	} else if s.remote && s.fallTimer == nil {
		s.fallTimer = time.AfterFunc(s.window, s.fall)
	}
	local, remote := s.local, s.remote
	notify := s.onChange
	s.mu.Unlock()

	if changed && notify != nil {
		notify(local, remote)
	}
}

func (s *SpeakingState) fall() {
	s.mu.Lock()
	s.fallTimer = nil
	if !s.remote {
		s.mu.Unlock()
		return
	}
	s.remote = false
	local, remote := s.local, s.remote
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify(local, remote)
	}
}

// Stop cancels any pending fall timer and clears both flags.
func (s *SpeakingState) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fallTimer != nil {
		s.fallTimer.Stop()
		s.fallTimer = nil
	}
	s.local = false
	s.remote = false
}

func (s *SpeakingState) Snapshot() (local, remote bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local, s.remote
}
