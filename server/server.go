// Package server 权威服务端：单协程按固定周期推进，
// 每个 Tick 依次应用输入、清理超时连接、广播快照。
package server

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fpsync/logging"
	"fpsync/protocol"
	"fpsync/transport"
)

// ErrConfigBusy 配置更新队列已满
var ErrConfigBusy = errors.New("server: config update queue full")

// Config 服务端配置
type Config struct {
	Host            string
	Port            int
	TickPeriod      time.Duration // Tick 周期
	LivenessTimeout time.Duration // 静默超过该时长的连接被移除
	MaxPlayers      int
	IdleSleep       time.Duration // 两次轮询之间的休眠，避免空转
}

// DefaultConfig 10 TPS，5 秒超时，最多 32 人
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8003,
		TickPeriod:      100 * time.Millisecond,
		LivenessTimeout: 5 * time.Second,
		MaxPlayers:      32,
		IdleSleep:       time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickPeriod <= 0 {
		c.TickPeriod = d.TickPeriod
	}
	if c.LivenessTimeout <= 0 {
		c.LivenessTimeout = d.LivenessTimeout
	}
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = d.MaxPlayers
	}
	c.MaxPlayers = min(c.MaxPlayers, protocol.MaxSnapshotPlayers)
	if c.IdleSleep <= 0 {
		c.IdleSleep = d.IdleSleep
	}
	return c
}

// ConfigPatch 运行期可调整的字段，nil 表示不修改
type ConfigPatch struct {
	TickPeriod      *time.Duration
	LivenessTimeout *time.Duration
	MaxPlayers      *int
}

// Frame 某个 Tick 广播出去的玩家列表，发布后只读
type Frame struct {
	Tick    uint64                 `json:"tick"`
	At      time.Time              `json:"at"`
	Players []protocol.PlayerState `json:"players"`
}

// Server 权威服务端。除 metrics/latest/current 外的字段只由 Run 所在协程访问
type Server struct {
	cfg       Config
	transport Transport
	log       *zap.SugaredLogger
	now       func() time.Time

	inputs   []inputCommand
	conns    connTable
	strays   map[netip.AddrPort]time.Time
	lastTick time.Time
	tickSeq  uint64

	metrics    *Metrics
	recorder   SessionRecorder
	spectators *Spectators
	updates    chan ConfigPatch
	latest     atomic.Pointer[Frame]
	current    atomic.Pointer[Config]
}

// New 使用给定的 Transport 创建服务端（测试中可以传入假实现）
func New(cfg Config, t Transport, log *zap.SugaredLogger) *Server {
	log = logging.OrNop(log)
	s := &Server{
		cfg:        cfg.withDefaults(),
		transport:  t,
		log:        log,
		now:        time.Now,
		conns:      make(connTable),
		strays:     make(map[netip.AddrPort]time.Time),
		metrics:    &Metrics{},
		spectators: NewSpectators(log),
		updates:    make(chan ConfigPatch, 8),
	}
	s.lastTick = s.now()
	s.publishConfig()
	s.latest.Store(&Frame{Players: []protocol.PlayerState{}})
	return s
}

// Listen 绑定 UDP 端口并创建服务端；绑定失败是唯一的致命错误
func Listen(cfg Config, log *zap.SugaredLogger) (*Server, error) {
	ep, err := transport.Listen(cfg.Host, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	return New(cfg, ep, log), nil
}

// SetRecorder 设置会话事件记录器，必须在 Run 之前调用
func (s *Server) SetRecorder(r SessionRecorder) {
	s.recorder = r
}

// Addr 实际监听地址；Transport 不提供时返回 nil
func (s *Server) Addr() net.Addr {
	if la, ok := s.transport.(interface{ LocalAddr() net.Addr }); ok {
		return la.LocalAddr()
	}
	return nil
}

// Metrics 运行指标，可在任意协程读取
func (s *Server) Metrics() *Metrics { return s.metrics }

// Spectators 观战 WebSocket 订阅者集合
func (s *Server) Spectators() *Spectators { return s.spectators }

// LatestFrame 最近一次广播的快照，可在任意协程读取
func (s *Server) LatestFrame() *Frame { return s.latest.Load() }

// Config 当前生效的配置，可在任意协程读取
func (s *Server) Config() Config { return *s.current.Load() }

// UpdateConfig 请求在下一次轮询时修改配置，保持玩家表只有一个所有者
func (s *Server) UpdateConfig(p ConfigPatch) error {
	select {
	case s.updates <- p:
		return nil
	default:
		return ErrConfigBusy
	}
}

// Close 关闭底层套接字
func (s *Server) Close() error {
	return s.transport.Close()
}

func (s *Server) applyUpdates() {
	for {
		select {
		case p := <-s.updates:
			s.applyPatch(p)
		default:
			return
		}
	}
}

func (s *Server) applyPatch(p ConfigPatch) {
	if p.TickPeriod != nil && *p.TickPeriod > 0 {
		s.cfg.TickPeriod = *p.TickPeriod
	}
	if p.LivenessTimeout != nil && *p.LivenessTimeout > 0 {
		s.cfg.LivenessTimeout = *p.LivenessTimeout
	}
	if p.MaxPlayers != nil && *p.MaxPlayers > 0 {
		s.cfg.MaxPlayers = min(*p.MaxPlayers, protocol.MaxSnapshotPlayers)
	}
	s.publishConfig()
	s.log.Infow("config updated",
		"tickPeriod", s.cfg.TickPeriod,
		"livenessTimeout", s.cfg.LivenessTimeout,
		"maxPlayers", s.cfg.MaxPlayers)
}

func (s *Server) publishConfig() {
	cfg := s.cfg
	s.current.Store(&cfg)
}
