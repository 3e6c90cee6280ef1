package server

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// SessionEventKind 连接生命周期事件类型
type SessionEventKind string

const (
	SessionJoined   SessionEventKind = "join"
	SessionLeft     SessionEventKind = "leave"
	SessionTimedOut SessionEventKind = "timeout"
)

// SessionEvent 玩家接入/离开/超时事件，供外部持久化
type SessionEvent struct {
	PlayerID uuid.UUID
	Addr     netip.AddrPort
	Kind     SessionEventKind
	At       time.Time
}

// SessionRecorder 在 Tick 协程中被调用，实现必须不阻塞
type SessionRecorder interface {
	RecordSession(SessionEvent)
}

// RecorderFunc 允许用普通函数作为 SessionRecorder
type RecorderFunc func(SessionEvent)

func (f RecorderFunc) RecordSession(e SessionEvent) { f(e) }

func (s *Server) record(c *connection, kind SessionEventKind, at time.Time) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordSession(SessionEvent{PlayerID: c.state.ID, Addr: c.addr, Kind: kind, At: at})
}
