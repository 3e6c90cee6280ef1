package server

import (
	"bytes"
	"net/netip"
	"sort"
	"time"

	"fpsync/protocol"
)

// connection 一个已接入的客户端：玩家状态与活跃时间放在同一条目里，
// 插入和删除总是一起发生
type connection struct {
	addr     netip.AddrPort
	state    protocol.PlayerState
	lastSeen time.Time
}

// connTable 以来源地址为键的权威玩家表，只由 tick 所在协程访问
type connTable map[netip.AddrPort]*connection

// players 按 ID 排序的玩家列表，作为本 tick 所有接收方共享的快照
func (t connTable) players() []protocol.PlayerState {
	out := make([]protocol.PlayerState, 0, len(t))
	for _, c := range t {
		out = append(out, c.state)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

// expired 返回静默超过 timeout 的连接
func (t connTable) expired(now time.Time, timeout time.Duration) []*connection {
	var out []*connection
	for _, c := range t {
		if now.Sub(c.lastSeen) > timeout {
			out = append(out, c)
		}
	}
	return out
}
