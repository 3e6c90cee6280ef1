package server

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fpsync/protocol"
)

// Run 核心循环：读空套接字 → 到点则 Tick → 否则短暂休眠。
// 直到 ctx 取消才返回
func (s *Server) Run(ctx context.Context) error {
	s.log.Infow("server loop started",
		"addr", s.Addr(),
		"tickPeriod", s.cfg.TickPeriod,
		"maxPlayers", s.cfg.MaxPlayers)
	for {
		select {
		case <-ctx.Done():
			s.log.Infow("server loop stopped", "ticks", s.tickSeq)
			return ctx.Err()
		default:
		}
		if !s.Step(s.now()) {
			time.Sleep(s.cfg.IdleSleep)
		}
	}
}

// Step 执行一次轮询；若距上次 Tick 已满一个周期则执行 Tick 并返回 true
func (s *Server) Step(now time.Time) bool {
	s.applyUpdates()
	s.drain()
	if now.Sub(s.lastTick) < s.cfg.TickPeriod {
		return false
	}
	s.Tick(now)
	s.lastTick = now
	return true
}

// Tick 同一 Tick 时间线：应用输入 → 清理超时 → 广播快照
func (s *Server) Tick(now time.Time) {
	start := time.Now()
	s.tickSeq++
	s.applyInputs(now)
	s.cull(now)
	s.broadcast(now)
	s.metrics.SetConnections(len(s.conns))
	s.metrics.AddTick(time.Since(start).Nanoseconds())
}

// applyInputs 按到达顺序应用本周期的所有输入，每条恰好一次
func (s *Server) applyInputs(now time.Time) {
	for _, in := range s.inputs {
		s.apply(in, now)
		s.metrics.IncApplied()
	}
	clear(s.inputs)
	s.inputs = s.inputs[:0]
}

func (s *Server) apply(in inputCommand, now time.Time) {
	switch in.cmd.Kind {
	case protocol.KindJoin:
		// 满员时静默丢弃，客户端无法区分被拒绝与丢包
		if len(s.conns) >= s.cfg.MaxPlayers {
			s.metrics.IncJoinRejected()
			s.log.Warnw("join dropped, server full", "from", in.from, "max", s.cfg.MaxPlayers)
			return
		}
		c, ok := s.conns[in.from]
		if !ok {
			c = &connection{addr: in.from, state: protocol.NewPlayerState(uuid.New())}
			s.conns[in.from] = c
			delete(s.strays, in.from)
			s.record(c, SessionJoined, now)
			s.log.Infow("player joined", "addr", in.from, "player", c.state.ID, "players", len(s.conns))
		}
		c.lastSeen = now

	case protocol.KindLeave:
		delete(s.strays, in.from)
		c, ok := s.conns[in.from]
		if !ok {
			return
		}
		delete(s.conns, in.from)
		s.record(c, SessionLeft, now)
		s.log.Infow("player left", "addr", in.from, "player", c.state.ID, "players", len(s.conns))

	case protocol.KindMove:
		c, ok := s.conns[in.from]
		if !ok {
			// 未注册的地址也会刷新活跃时间，但不产生玩家状态
			s.strays[in.from] = now
			s.metrics.IncStrayMove()
			return
		}
		c.lastSeen = now
		c.state.Apply(*in.cmd.Move)

	case protocol.KindSnapshot:
		s.log.Debugw("snapshot from client ignored", "from", in.from)
	}
}

// cull 移除静默超过超时时间的连接；UDP 上的 Leave 可能丢失，这里是唯一兜底
func (s *Server) cull(now time.Time) {
	expired := s.conns.expired(now, s.cfg.LivenessTimeout)
	for _, c := range expired {
		delete(s.conns, c.addr)
		s.metrics.IncCulled()
		s.record(c, SessionTimedOut, now)
		s.log.Infow("culling connection", "addr", c.addr, "player", c.state.ID)
	}
	for addr, seen := range s.strays {
		if now.Sub(seen) > s.cfg.LivenessTimeout {
			delete(s.strays, addr)
		}
	}
	if len(expired) > 0 {
		s.log.Infow("current connections", "players", len(s.conns))
	}
}

// broadcast 构建一份共享的玩家列表，再逐个接收方包装 Recipient 后发送。
// 单个接收方发送失败只记录日志
func (s *Server) broadcast(now time.Time) {
	players := s.conns.players()
	frame := &Frame{Tick: s.tickSeq, At: now, Players: players}
	s.latest.Store(frame)

	for addr, c := range s.conns {
		b, err := protocol.Encode(protocol.NewSnapshot(now, c.state.ID, players))
		if err != nil {
			s.log.Errorw("encode snapshot failed", "to", addr, "err", err)
			continue
		}
		if err := s.transport.SendTo(b, addr); err != nil {
			s.metrics.IncSendError()
			s.log.Errorw("failed to send snapshot", "to", addr, "err", err)
		}
	}

	s.spectators.Publish(frame)
}
