// broadcast/broadcast.go
package broadcast

import (
	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/session"
)

// Broadcaster pushes server-initiated messages to connected players.
type Broadcaster interface {
	BroadcastToAll(msgID uint16, data []byte) error
	BroadcastToWallets(wallets []keys.PublicKey, msgID uint16, data []byte) error
}

// SessionBroadcaster fans out over the live session set.
type SessionBroadcaster struct {
	sessionManager *session.Manager
}

func NewSessionBroadcaster(sessionManager *session.Manager) *SessionBroadcaster {
	return &SessionBroadcaster{
		sessionManager: sessionManager,
	}
}

func (b *SessionBroadcaster) BroadcastToAll(msgID uint16, data []byte) error {
	for _, s := range b.sessionManager.All() {
		if err := s.Send(msgID, data); err != nil {
			// A dead connection gets reaped by its own read loop.
			continue
		}
	}
	return nil
}

func (b *SessionBroadcaster) BroadcastToWallets(wallets []keys.PublicKey, msgID uint16, data []byte) error {
	for _, wallet := range wallets {
		for _, s := range b.sessionManager.GetByWallet(wallet) {
			if err := s.Send(msgID, data); err != nil {
				continue
			}
		}
	}
	return nil
}
