// Command client is a minimal interactive player for manual testing
// against a running gateway.
package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/network"
)

// send frames and sends one gateway message.
func send(c *websocket.Conn, msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: "localhost:8080", Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			if len(message) < 4 {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			msgID := binary.BigEndian.Uint16(message[0:2])
			data := message[4:]
			log.Printf("<- RECV (ID: %d): %s", msgID, string(data))
		}
	}()

	wallet, err := keys.NewKeypair()
	if err != nil {
		log.Fatalf("Keygen failed: %v", err)
	}
	log.Printf("Playing as wallet %s", wallet.Public)

	if err := send(c, network.MsgTypeRegister, map[string]string{
		"wallet":   wallet.Public.String(),
		"username": "demo_player",
	}); err != nil {
		log.Println("Write error:", err)
		return
	}

	log.Println("Commands: start <word-index> | guess <word> | finish | profile | board <daily|weekly|monthly>")

	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupted, closing connection")
			c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "start":
			idx := 0
			if len(fields) > 1 {
				idx, err = strconv.Atoi(fields[1])
				if err != nil {
					log.Println("Bad word index:", fields[1])
					continue
				}
			}
			err = send(c, network.MsgTypeStartGame, map[string]int{"word_index": idx})
		case "guess":
			if len(fields) < 2 {
				log.Println("Usage: guess <word>")
				continue
			}
			err = send(c, network.MsgTypeSubmitGuess, map[string]string{"guess": fields[1]})
		case "finish":
			err = send(c, network.MsgTypeFinishGame, map[string]string{})
		case "profile":
			err = send(c, network.MsgTypeGetProfile, map[string]string{})
		case "board":
			t := "daily"
			if len(fields) > 1 {
				t = fields[1]
			}
			err = send(c, network.MsgTypeGetLeaderboard, map[string]string{"period_type": t})
		default:
			log.Println("Unknown command:", fields[0])
			continue
		}
		if err != nil {
			log.Println("Write error:", err)
			return
		}
	}
}
