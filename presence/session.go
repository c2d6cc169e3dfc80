package presence

import (
	"errors"
	"sync"
	"time"
)

// Activity is the last pushed two-line status, kept for observability.
type Activity struct {
	Details   string    `json:"details"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is the process-wide record of the signed-in player and the
// presence connection. Written once by the poller's startup phase, then
// updated on every presence push. All access goes through its lock; the
// underlying IPC connection is never touched from two call sites at once.
type Session struct {
	mu         sync.Mutex
	playerName string
	playerID   string
	client     Client
	connected  bool
	last       Activity
}

func NewSession(client Client) *Session {
	return &Session{client: client}
}

// SetPlayer records the signed-in player's identity.
func (s *Session) SetPlayer(name, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerName = name
	s.playerID = id
}

// Player returns the recorded player identity.
func (s *Session) Player() (name, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerName, s.playerID
}

// Connect establishes the presence connection. Failing here is fatal for
// startup; once running, per-update failures are tolerated instead.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}
	if err := s.client.Connect(); err != nil {
		return err
	}
	s.connected = true
	return nil
}

// SetActivity pushes a two-line status through the presence connection.
func (s *Session) SetActivity(details, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return errors.New("presence session not connected")
	}
	if err := s.client.SetActivity(details, state); err != nil {
		return err
	}
	s.last = Activity{Details: details, State: state, UpdatedAt: time.Now()}
	return nil
}

// LastActivity returns the most recently pushed status.
func (s *Session) LastActivity() Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Close tears the presence connection down.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	return s.client.Close()
}
