// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/voblegame/voble/game"
	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/network"
)

// Session is one websocket connection. After registration it carries the
// wallet identity and the game player handle.
type Session struct {
	ID         string
	Conn       network.Connection
	Wallet     keys.PublicKey
	Player     *game.Player
	CreatedAt  time.Time
	LastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
	}
}

// Bind attaches the wallet identity once the register handshake is done.
func (s *Session) Bind(wallet keys.PublicKey, player *game.Player) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Wallet = wallet
	s.Player = player
}

// Bound reports whether the session has a wallet attached, returning the
// player handle when it does.
func (s *Session) Bound() (*game.Player, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Player, s.Player != nil
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.Touch()
	return s.Conn.Send(msgID, data)
}

func (s *Session) Touch() {
	s.mutex.Lock()
	s.LastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) IdleSince() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.LastActive
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Manager tracks live sessions.
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) GetByWallet(wallet keys.PublicKey) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.Wallet == wallet {
			result = append(result, session)
		}
	}
	return result
}

// All returns a snapshot of the live sessions.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
