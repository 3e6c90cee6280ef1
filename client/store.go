// Package client 客户端同步存储：发送本地玩家命令，接收服务端快照，
// 并维护带接收时间戳的远端玩家表，供渲染端做航位推算。
package client

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fpsync/logging"
	"fpsync/protocol"
	"fpsync/transport"
)

// Transport 客户端的收发接口，默认实现是 transport.Dial 得到的 Endpoint
type Transport interface {
	TryRecv() (transport.Datagram, bool)
	Send(b []byte) error
	Close() error
}

// TimedPlayerState 远端玩家状态及其本地接收时间，只用于显示
type TimedPlayerState struct {
	protocol.PlayerState
	ReceivedAt time.Time
}

// PositionAt 一阶航位推算：position + velocity × (now − ReceivedAt)。
// 朝向（yaw/pitch）不做推算
func (t TimedPlayerState) PositionAt(now time.Time) [3]float32 {
	dt := now.Sub(t.ReceivedAt).Seconds()
	var out [3]float32
	for i := range out {
		out[i] = float32(float64(t.Position[i]) + float64(t.Velocity[i])*dt)
	}
	return out
}

// Store 一条出站命令通道与一条入站快照通道。非并发安全，
// 由宿主的每帧循环调用
type Store struct {
	transport Transport
	log       *zap.SugaredLogger
	now       func() time.Time

	self     uuid.UUID
	hasSelf  bool
	remotes  map[uuid.UUID]TimedPlayerState
	serverAt time.Time
}

func NewStore(t Transport, log *zap.SugaredLogger) *Store {
	return &Store{
		transport: t,
		log:       logging.OrNop(log),
		now:       time.Now,
		remotes:   make(map[uuid.UUID]TimedPlayerState),
	}
}

// Dial 连接服务端地址（host:port）
func Dial(server string, log *zap.SugaredLogger) (*Store, error) {
	ep, err := transport.Dial(server)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	return NewStore(ep, log), nil
}

// SendJoin 请求加入；没有确认，丢包时由调用方自行重发
func (s *Store) SendJoin() error {
	return s.send(protocol.NewJoin(s.now()))
}

// SendLeave 正常退出时的礼貌通知，服务端最终会靠超时兜底
func (s *Store) SendLeave() error {
	return s.send(protocol.NewLeave(s.now()))
}

// SendMove 上报本地玩家的运动学状态
func (s *Store) SendMove(position, velocity [3]float32, yaw, pitch float32) error {
	return s.send(protocol.NewMove(s.now(), position, velocity, yaw, pitch))
}

func (s *Store) send(cmd protocol.Command) error {
	b, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}
	if err := s.transport.Send(b); err != nil {
		return fmt.Errorf("client: send %s: %w", cmd.Kind, err)
	}
	return nil
}

// Poll 每次调用最多读取一个报文。收到快照时清空并重建远端玩家表，
// 返回 true；没有数据或数据无效时返回 false
func (s *Store) Poll() (bool, error) {
	d, ok := s.transport.TryRecv()
	if !ok {
		return false, nil
	}
	if d.Err != nil {
		return false, fmt.Errorf("client: receive: %w", d.Err)
	}
	cmd, err := protocol.Decode(d.Data)
	if err != nil {
		s.log.Warnw("invalid datagram from server", "bytes", len(d.Data), "err", err)
		return false, nil
	}
	if cmd.Kind != protocol.KindSnapshot {
		s.log.Debugw("unexpected command from server", "kind", cmd.Kind)
		return false, nil
	}
	s.ingest(cmd.Snapshot, cmd.SentAt)
	return true, nil
}

func (s *Store) ingest(snap *protocol.Snapshot, sentAt protocol.Millis) {
	now := s.now()
	clear(s.remotes)
	for _, p := range snap.Players {
		if p.ID == snap.Recipient {
			continue
		}
		s.remotes[p.ID] = TimedPlayerState{PlayerState: p, ReceivedAt: now}
	}
	if !s.hasSelf || s.self != snap.Recipient {
		s.log.Infow("assigned player id", "player", snap.Recipient)
	}
	s.self, s.hasSelf = snap.Recipient, true
	s.serverAt = sentAt.Time()
}

// Remotes 当前远端玩家表的副本
func (s *Store) Remotes() map[uuid.UUID]TimedPlayerState {
	return maps.Clone(s.remotes)
}

// Remote 查询单个远端玩家
func (s *Store) Remote(id uuid.UUID) (TimedPlayerState, bool) {
	p, ok := s.remotes[id]
	return p, ok
}

// Self 服务端分配给本客户端的玩家 ID，收到第一份快照前为 false
func (s *Store) Self() (uuid.UUID, bool) {
	return s.self, s.hasSelf
}

// ServerTime 最近一份快照在服务端的发送时间
func (s *Store) ServerTime() time.Time {
	return s.serverAt
}

// Close 关闭底层套接字
func (s *Store) Close() error {
	return s.transport.Close()
}
