package rpc

import (
	"context"
	"net"
	"net/rpc"
	"time"

	"github.com/voblegame/voble/logger"
	"github.com/voblegame/voble/period"
	"github.com/voblegame/voble/settle"
)

// Server manages the RPC listener the admin CLI talks to.
type Server struct {
	listener net.Listener
	address  string
}

func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// SettlementService exposes period settlement over net/rpc.
type SettlementService struct {
	engine  *settle.Engine
	periods *period.Generator
}

func NewSettlementService(engine *settle.Engine, periods *period.Generator) *SettlementService {
	return &SettlementService{engine: engine, periods: periods}
}

type SettleArgs struct {
	// PeriodType is daily, weekly or monthly.
	PeriodType string
	// PeriodID may be empty; the most recently closed period of the
	// given type is settled then.
	PeriodID string
}

type SettleReply struct {
	PeriodType        string
	PeriodID          string
	TotalParticipants uint32
	PrizePool         uint64
	Winners           []string
	Amounts           []uint64
	AlreadyFinalized  bool
}

// Settle finalizes one period end to end. Safe to call repeatedly; a
// settled period reports AlreadyFinalized instead of failing.
func (ss *SettlementService) Settle(args *SettleArgs, reply *SettleReply) error {
	t, err := period.ParseType(args.PeriodType)
	if err != nil {
		return err
	}
	id := args.PeriodID
	if id == "" {
		id = ss.periods.Previous(t)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	report, err := ss.engine.SettlePeriod(ctx, t, id)
	if err != nil {
		return err
	}

	reply.PeriodType = t.String()
	reply.PeriodID = report.PeriodID
	reply.TotalParticipants = report.TotalParticipants
	reply.PrizePool = report.PrizePool
	reply.Amounts = report.Amounts
	reply.AlreadyFinalized = report.AlreadyFinalized
	for _, w := range report.Winners {
		reply.Winners = append(reply.Winners, w.String())
	}
	return nil
}
