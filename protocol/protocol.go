package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind 消息类型
type Kind uint8

const (
	KindJoin Kind = iota + 1
	KindLeave
	KindMove
	KindSnapshot
)

// DefaultHealth 新玩家的初始血量（当前核心不修改）
const DefaultHealth uint8 = 100

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindLeave:
		return "leave"
	case KindMove:
		return "move"
	case KindSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) valid() bool {
	return k >= KindJoin && k <= KindSnapshot
}

// Millis 128 位的 Unix 毫秒时间戳，Hi 为高 64 位
type Millis struct {
	_msgpack struct{} `msgpack:",as_array"`

	Hi uint64
	Lo uint64
}

// MillisFrom 将本地时间转换为线上时间戳，早于 1970 的时间记为 0
func MillisFrom(t time.Time) Millis {
	ms := t.UnixMilli()
	if ms < 0 {
		return Millis{}
	}
	return Millis{Lo: uint64(ms)}
}

// Time 转回 time.Time；超出 int64 范围的值截断为可表示的最大时间
func (m Millis) Time() time.Time {
	if m.Hi != 0 || m.Lo > 1<<63-1 {
		return time.UnixMilli(1<<63 - 1)
	}
	return time.UnixMilli(int64(m.Lo))
}

// PlayerState 服务端权威的玩家状态，也是快照中的单个条目
type PlayerState struct {
	_msgpack struct{} `msgpack:",as_array"`

	ID       uuid.UUID  `json:"id"`
	Position [3]float32 `json:"position"`
	Velocity [3]float32 `json:"velocity"`
	Yaw      float32    `json:"yaw"`
	Pitch    float32    `json:"pitch"`
	Health   uint8      `json:"health"`
}

// NewPlayerState 以默认运动学数值创建玩家
func NewPlayerState(id uuid.UUID) PlayerState {
	return PlayerState{ID: id, Health: DefaultHealth}
}

// Move 客户端上报的运动学状态
type Move struct {
	_msgpack struct{} `msgpack:",as_array"`

	Position [3]float32
	Velocity [3]float32
	Yaw      float32
	Pitch    float32
}

// Apply 用 Move 覆盖玩家的运动学字段，ID 与血量保持不变
func (p *PlayerState) Apply(m Move) {
	p.Position = m.Position
	p.Velocity = m.Velocity
	p.Yaw = m.Yaw
	p.Pitch = m.Pitch
}

// Snapshot 服务端 -> 客户端的全量玩家列表。Recipient 让接收方把自己排除在外
type Snapshot struct {
	_msgpack struct{} `msgpack:",as_array"`

	Recipient uuid.UUID
	Players   []PlayerState
}

// Command 线上消息信封。Move/Snapshot 只在对应 Kind 下非空
type Command struct {
	_msgpack struct{} `msgpack:",as_array"`

	Kind     Kind
	SentAt   Millis
	Move     *Move
	Snapshot *Snapshot
}

func NewJoin(at time.Time) Command {
	return Command{Kind: KindJoin, SentAt: MillisFrom(at)}
}

func NewLeave(at time.Time) Command {
	return Command{Kind: KindLeave, SentAt: MillisFrom(at)}
}

func NewMove(at time.Time, position, velocity [3]float32, yaw, pitch float32) Command {
	return Command{
		Kind:   KindMove,
		SentAt: MillisFrom(at),
		Move:   &Move{Position: position, Velocity: velocity, Yaw: yaw, Pitch: pitch},
	}
}

// NewSnapshot 构造发给 recipient 的快照；players 会被共享而不是复制
func NewSnapshot(at time.Time, recipient uuid.UUID, players []PlayerState) Command {
	if players == nil {
		players = []PlayerState{}
	}
	return Command{
		Kind:     KindSnapshot,
		SentAt:   MillisFrom(at),
		Snapshot: &Snapshot{Recipient: recipient, Players: players},
	}
}

// validate 检查 Kind 与载荷是否一致
func (c *Command) validate() error {
	if !c.Kind.valid() {
		return fmt.Errorf("unknown kind %d", uint8(c.Kind))
	}
	switch c.Kind {
	case KindJoin, KindLeave:
		if c.Move != nil || c.Snapshot != nil {
			return fmt.Errorf("%s carries a payload", c.Kind)
		}
	case KindMove:
		if c.Move == nil || c.Snapshot != nil {
			return fmt.Errorf("move without move payload")
		}
	case KindSnapshot:
		if c.Snapshot == nil || c.Move != nil {
			return fmt.Errorf("snapshot without snapshot payload")
		}
	}
	return nil
}
