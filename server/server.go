package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/rpc"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voblegame/voble/broadcast"
	"github.com/voblegame/voble/game"
	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/logger"
	"github.com/voblegame/voble/monitor"
	"github.com/voblegame/voble/network"
	"github.com/voblegame/voble/period"
	voble_rpc "github.com/voblegame/voble/rpc"
	"github.com/voblegame/voble/services"
	"github.com/voblegame/voble/session"
	"github.com/voblegame/voble/settle"
	"github.com/voblegame/voble/timer"
)

const (
	requestTimeout = 15 * time.Second
	idleTimeout    = 5 * time.Minute
)

var errNotRegistered = errors.New("session has no wallet bound, register first")

// GameServer is the websocket gateway. It translates framed client
// messages into game and settlement calls and pushes results back.
type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	gameService    *game.Service
	profileService *services.ProfileService
	engine         *settle.Engine
	periods        *period.Generator
	broadcaster    broadcast.Broadcaster
	rpcServer      *voble_rpc.Server
	mon            *monitor.Monitor
	timers         *timer.TimerManager
	// faucet funds freshly registered wallets on demo deployments; nil
	// in production.
	faucet       func(wallet keys.PublicKey, amount uint64)
	faucetAmount uint64
	mutex        sync.Mutex
	shutdownChan chan struct{}
}

func NewGameServer(addr, rpcAddr string, gameSvc *game.Service, profileSvc *services.ProfileService, engine *settle.Engine, periods *period.Generator, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		addr:           addr,
		sessionManager: session.NewManager(),
		gameService:    gameSvc,
		profileService: profileSvc,
		engine:         engine,
		periods:        periods,
		mon:            mon,
		timers:         timer.NewTimerManager(),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.broadcaster = broadcast.NewSessionBroadcaster(s.sessionManager)

	rpcServer, err := voble_rpc.NewServer(rpcAddr)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer

	settlementService := voble_rpc.NewSettlementService(engine, periods)
	rpc.Register(settlementService)

	return s
}

// EnableFaucet makes registration credit new wallets, for demo and test
// deployments without a real funding path.
func (s *GameServer) EnableFaucet(fund func(keys.PublicKey, uint64), amount uint64) {
	s.faucet = fund
	s.faucetAmount = amount
}

func (s *GameServer) Broadcaster() broadcast.Broadcaster {
	return s.broadcaster
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()

	s.timers.AddTimer(time.Minute, time.Minute, s.sweepIdleSessions)

	http.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Gateway listening on %s", s.addr)
	return http.ListenAndServe(s.addr, nil)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.timers.Stop()
	s.rpcServer.Stop()
}

func (s *GameServer) sweepIdleSessions() {
	cutoff := time.Now().Add(-idleTimeout)
	active := 0
	for _, sess := range s.sessionManager.All() {
		if sess.IdleSince().Before(cutoff) {
			logger.Log.Infof("Closing idle session %s", sess.GetID())
			sess.Close()
			continue
		}
		if player, ok := sess.Bound(); ok && player.State() == game.StatePlaying {
			active++
		}
	}
	if s.mon != nil {
		s.mon.SetActiveSessions(active)
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	if s.mon != nil {
		s.mon.IncOnlinePlayers()
	}

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		if s.mon != nil {
			s.mon.DecOnlinePlayers()
		}
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	if s.mon != nil {
		s.mon.IncMessagesReceived()
	}
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Touch()
	case network.MsgTypeRegister:
		s.handleRegister(sess, packet)
	case network.MsgTypeStartGame:
		s.handleStartGame(sess, packet)
	case network.MsgTypeSubmitGuess:
		s.handleSubmitGuess(sess, packet)
	case network.MsgTypeFinishGame:
		s.handleFinishGame(sess, packet)
	case network.MsgTypeClaimPrize:
		s.handleClaimPrize(sess, packet)
	case network.MsgTypeGetProfile:
		s.handleGetProfile(sess, packet)
	case network.MsgTypeGetLeaderboard:
		s.handleGetLeaderboard(sess, packet)
	case network.MsgTypeGetState:
		s.handleGetState(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

type response struct {
	OK      bool        `json:"ok"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *GameServer) reply(sess *session.Session, msgID uint16, data interface{}) {
	payload, err := json.Marshal(response{OK: true, Data: data})
	if err != nil {
		logger.Log.Errorf("Failed to marshal response: %v", err)
		return
	}
	sess.Send(msgID, payload)
}

func (s *GameServer) replyError(sess *session.Session, msgID uint16, err error) {
	payload, merr := json.Marshal(response{OK: false, Message: err.Error()})
	if merr != nil {
		return
	}
	sess.Send(msgID, payload)
}

func (s *GameServer) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func (s *GameServer) boundPlayer(sess *session.Session, msgID uint16) (*game.Player, bool) {
	player, ok := sess.Bound()
	if !ok {
		s.replyError(sess, msgID, errNotRegistered)
		return nil, false
	}
	return player, true
}

func (s *GameServer) handleRegister(sess *session.Session, packet *network.Packet) {
	var req struct {
		Wallet   string `json:"wallet"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.replyError(sess, network.MsgTypeRegister, err)
		return
	}
	wallet, err := keys.ParsePublicKey(req.Wallet)
	if err != nil {
		s.replyError(sess, network.MsgTypeRegister, err)
		return
	}

	player := s.gameService.NewPlayer(wallet)
	ctx, cancel := s.requestContext()
	defer cancel()

	state, err := player.Refresh(ctx)
	if err != nil {
		s.replyError(sess, network.MsgTypeRegister, err)
		return
	}
	if state == game.StateAbsent {
		if s.faucet != nil {
			s.faucet(wallet, s.faucetAmount)
		}
		if err := player.CreateProfile(ctx, req.Username); err != nil {
			s.replyError(sess, network.MsgTypeRegister, err)
			return
		}
		state = game.StateIdle
	}

	sess.Bind(wallet, player)
	logger.Log.Infof("Session %s registered wallet %s", sess.GetID(), wallet)
	s.reply(sess, network.MsgTypeRegister, map[string]interface{}{
		"state": state.String(),
	})
}

func (s *GameServer) handleStartGame(sess *session.Session, packet *network.Packet) {
	player, ok := s.boundPlayer(sess, network.MsgTypeStartGame)
	if !ok {
		return
	}
	var req struct {
		WordIndex uint32 `json:"word_index"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.replyError(sess, network.MsgTypeStartGame, err)
		return
	}

	ctx, cancel := s.requestContext()
	defer cancel()
	periodID, err := player.StartGame(ctx, req.WordIndex)
	if err != nil {
		s.replyError(sess, network.MsgTypeStartGame, err)
		return
	}
	s.reply(sess, network.MsgTypeStartGame, map[string]interface{}{
		"period_id": periodID,
	})
}

func (s *GameServer) handleSubmitGuess(sess *session.Session, packet *network.Packet) {
	player, ok := s.boundPlayer(sess, network.MsgTypeSubmitGuess)
	if !ok {
		return
	}
	var req struct {
		Guess string `json:"guess"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.replyError(sess, network.MsgTypeSubmitGuess, err)
		return
	}

	ctx, cancel := s.requestContext()
	defer cancel()
	outcome, err := player.Guess(ctx, req.Guess)
	if err != nil {
		s.replyError(sess, network.MsgTypeSubmitGuess, err)
		return
	}
	s.reply(sess, network.MsgTypeSubmitGuess, outcome)

	if outcome.Completed {
		payload, _ := json.Marshal(response{OK: true, Data: outcome})
		sess.Send(network.MsgTypeGameCompleted, payload)
	}
}

func (s *GameServer) handleFinishGame(sess *session.Session, packet *network.Packet) {
	player, ok := s.boundPlayer(sess, network.MsgTypeFinishGame)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext()
	defer cancel()
	if err := player.Finish(ctx); err != nil {
		s.replyError(sess, network.MsgTypeFinishGame, err)
		return
	}
	s.reply(sess, network.MsgTypeFinishGame, map[string]interface{}{
		"state": player.State().String(),
	})
}

func (s *GameServer) handleClaimPrize(sess *session.Session, packet *network.Packet) {
	player, ok := s.boundPlayer(sess, network.MsgTypeClaimPrize)
	if !ok {
		return
	}
	var req struct {
		PeriodType string `json:"period_type"`
		PeriodID   string `json:"period_id"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.replyError(sess, network.MsgTypeClaimPrize, err)
		return
	}
	t, err := period.ParseType(req.PeriodType)
	if err != nil {
		s.replyError(sess, network.MsgTypeClaimPrize, err)
		return
	}

	ctx, cancel := s.requestContext()
	defer cancel()
	amount, err := s.engine.Claim(ctx, player.Wallet(), t, req.PeriodID)
	if err != nil {
		s.replyError(sess, network.MsgTypeClaimPrize, err)
		return
	}
	s.reply(sess, network.MsgTypeClaimPrize, map[string]interface{}{
		"amount": amount,
	})
}

func (s *GameServer) handleGetProfile(sess *session.Session, packet *network.Packet) {
	player, ok := s.boundPlayer(sess, network.MsgTypeGetProfile)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext()
	defer cancel()
	stats, err := s.profileService.GetProfileWithStats(ctx, player.Wallet())
	if err != nil {
		s.replyError(sess, network.MsgTypeGetProfile, err)
		return
	}
	s.reply(sess, network.MsgTypeGetProfile, stats)
}

func (s *GameServer) handleGetLeaderboard(sess *session.Session, packet *network.Packet) {
	var req struct {
		PeriodType string `json:"period_type"`
		PeriodID   string `json:"period_id"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.replyError(sess, network.MsgTypeGetLeaderboard, err)
		return
	}
	t, err := period.ParseType(req.PeriodType)
	if err != nil {
		s.replyError(sess, network.MsgTypeGetLeaderboard, err)
		return
	}
	id := req.PeriodID
	if id == "" {
		id = s.periods.Current(t)
	}

	ctx, cancel := s.requestContext()
	defer cancel()
	lb, err := s.profileService.GetLeaderboard(ctx, t, id)
	if err != nil {
		s.replyError(sess, network.MsgTypeGetLeaderboard, err)
		return
	}
	s.reply(sess, network.MsgTypeGetLeaderboard, map[string]interface{}{
		"period_type":   t.String(),
		"period_id":     lb.PeriodID,
		"entries":       lb.Entries,
		"total_players": lb.TotalPlayers,
		"prize_pool":    lb.PrizePool,
		"finalized":     lb.Finalized,
	})
}

func (s *GameServer) handleGetState(sess *session.Session, packet *network.Packet) {
	player, ok := s.boundPlayer(sess, network.MsgTypeGetState)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext()
	defer cancel()
	state, err := player.Refresh(ctx)
	if err != nil {
		s.replyError(sess, network.MsgTypeGetState, err)
		return
	}
	s.reply(sess, network.MsgTypeGetState, map[string]interface{}{
		"state": state.String(),
	})
}
