package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrDecode 所有解码失败都包装该错误，调用方用 errors.Is 判断
var ErrDecode = errors.New("protocol: decode failed")

// MaxDatagramSize 单个 UDP 报文的上限
const MaxDatagramSize = 65507

// Encode 将命令编码为 MessagePack 字节；结构体以数组形式编码，字节序列确定
func Encode(c Command) ([]byte, error) {
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	b, err := msgpack.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", c.Kind, err)
	}
	return b, nil
}

// Decode 解析一个报文。截断、未知类型、多余尾部字节都会返回 ErrDecode，
// 失败时返回零值 Command
func Decode(b []byte) (Command, error) {
	if len(b) == 0 {
		return Command{}, fmt.Errorf("%w: empty datagram", ErrDecode)
	}
	if len(b) > MaxDatagramSize {
		return Command{}, fmt.Errorf("%w: %d bytes exceeds datagram limit", ErrDecode, len(b))
	}
	r := bytes.NewReader(b)
	dec := msgpack.NewDecoder(r)

	var c Command
	if err := dec.Decode(&c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if r.Len() != 0 {
		return Command{}, fmt.Errorf("%w: %d trailing bytes", ErrDecode, r.Len())
	}
	if err := c.validate(); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return c, nil
}

// DecodeMsgpack 手工解码快照。msgpack 默认按长度前缀一次性分配，
// 30 字节的报文就能声明出 4G 个玩家，所以先检查长度再分配
func (s *Snapshot) DecodeMsgpack(dec *msgpack.Decoder) error {
	if err := expectArray(dec, 2, "snapshot"); err != nil {
		return err
	}
	if err := decodeID(dec, &s.Recipient); err != nil {
		return err
	}

	count, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	switch {
	case count < 0:
		s.Players = nil
		return nil
	case count > MaxDatagramSize:
		return fmt.Errorf("snapshot: %d players cannot fit in a datagram", count)
	}
	// 按实际解出的条目增长，截断的报文不会触发大块分配
	players := make([]PlayerState, 0, min(count, 64))
	for i := 0; i < count; i++ {
		var p PlayerState
		if err := p.DecodeMsgpack(dec); err != nil {
			return err
		}
		players = append(players, p)
	}
	s.Players = players
	return nil
}

// DecodeMsgpack 同上，ID 不走 DecodeBytes 以免按 bin32 长度分配
func (p *PlayerState) DecodeMsgpack(dec *msgpack.Decoder) error {
	if err := expectArray(dec, 6, "player"); err != nil {
		return err
	}
	if err := decodeID(dec, &p.ID); err != nil {
		return err
	}
	if err := dec.Decode(&p.Position); err != nil {
		return err
	}
	if err := dec.Decode(&p.Velocity); err != nil {
		return err
	}
	var err error
	if p.Yaw, err = dec.DecodeFloat32(); err != nil {
		return err
	}
	if p.Pitch, err = dec.DecodeFloat32(); err != nil {
		return err
	}
	p.Health, err = dec.DecodeUint8()
	return err
}

func expectArray(dec *msgpack.Decoder, fields int, what string) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != fields {
		return fmt.Errorf("%s: expected %d fields, got %d", what, fields, n)
	}
	return nil
}

// decodeID 只接受恰好 16 字节的 bin
func decodeID(dec *msgpack.Decoder, id *uuid.UUID) error {
	n, err := dec.DecodeBytesLen()
	if err != nil {
		return err
	}
	if n != len(id) {
		return fmt.Errorf("player id: expected %d bytes, got %d", len(id), n)
	}
	return dec.ReadFull(id[:])
}

// MaxSnapshotPlayers 单个快照报文能容纳的最多玩家数
var MaxSnapshotPlayers = maxSnapshotPlayers()

// maxSnapshotPlayers 以各字段取最大值时的编码长度估算上限；
// 数组头从 fixarray 变为 array16 多出的 2 字节也计入
func maxSnapshotPlayers() int {
	worst := PlayerState{ID: uuid.Max, Health: math.MaxUint8}
	size := func(n int) int {
		players := make([]PlayerState, n)
		for i := range players {
			players[i] = worst
		}
		c := NewSnapshot(time.Time{}, uuid.Max, players)
		c.SentAt = Millis{Hi: math.MaxUint64, Lo: math.MaxUint64}
		b, err := msgpack.Marshal(&c)
		if err != nil {
			panic(err)
		}
		return len(b)
	}
	base := size(0) + 2
	per := size(2) - size(1)
	return (MaxDatagramSize - base) / per
}
