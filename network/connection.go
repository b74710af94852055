// network/connection.go
package network

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	frameHeaderSize = 4

	// MaxPayloadSize bounds one frame. Gameplay payloads are small JSON
	// documents; anything larger is a broken or hostile client.
	MaxPayloadSize = 32 * 1024
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrOversizedFrame = errors.New("frame payload too large")
)

// Packet is one framed gateway message: 2-byte message id, 2-byte payload
// length, payload. The declared length must match the frame exactly.
type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint16
}

// EncodeFrame frames one outgoing message.
func EncodeFrame(msgID uint16, data []byte) ([]byte, error) {
	if len(data) > MaxPayloadSize {
		return nil, ErrOversizedFrame
	}
	frame := make([]byte, frameHeaderSize+len(data))
	binary.BigEndian.PutUint16(frame[0:2], msgID)
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(data)))
	copy(frame[frameHeaderSize:], data)
	return frame, nil
}

// DecodeFrame parses one incoming frame, failing closed on truncated
// headers, length mismatches and oversized payloads.
func DecodeFrame(data []byte) (*Packet, error) {
	if len(data) < frameHeaderSize {
		return nil, ErrMalformedFrame
	}
	msgID := binary.BigEndian.Uint16(data[0:2])
	length := binary.BigEndian.Uint16(data[2:4])
	if int(length) > MaxPayloadSize {
		return nil, ErrOversizedFrame
	}
	if len(data) != frameHeaderSize+int(length) {
		return nil, ErrMalformedFrame
	}
	return &Packet{
		MsgID:  msgID,
		Length: length,
		Data:   data[frameHeaderSize:],
	}, nil
}

type Connection interface {
	Send(msgID uint16, data []byte) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadPacket() (*Packet, error)
}

type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	heartbeat time.Duration
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	return &WSConnection{conn: conn}
}

func (c *WSConnection) Send(msgID uint16, data []byte) error {
	frame, err := EncodeFrame(msgID, data)
	if err != nil {
		return err
	}
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *WSConnection) ReadPacket() (*Packet, error) {
	msgType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType != websocket.BinaryMessage {
		return nil, ErrMalformedFrame
	}
	return DecodeFrame(data)
}

func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat = interval
	c.conn.SetReadDeadline(time.Now().Add(interval * 2))
}

func (c *WSConnection) Close() error {
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
