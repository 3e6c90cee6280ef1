package server

import (
	"sync/atomic"
)

// Metrics 记录服务端运行期的关键指标（用于监控与调试）
type Metrics struct {
	TickCount       int64 // 统计的 Tick 次数
	CommandsApplied int64 // 在 Tick 中被应用的命令数
	DecodeErrors    int64 // 解码失败被丢弃的报文数
	JoinsRejected   int64 // 因人数上限被丢弃的 Join
	StrayMoves      int64 // 来自未注册地址的 Move
	Culled          int64 // 因超时被移除的连接数
	SendErrors      int64 // 广播时发送失败次数
	RecvErrors      int64 // 接收失败次数
	TotalTickNs     int64 // Tick 累计耗时（纳秒）
	Connections     int64 // 最近一次 Tick 后的在线连接数
}

func (m *Metrics) IncApplied()      { atomic.AddInt64(&m.CommandsApplied, 1) }
func (m *Metrics) IncDecodeError()  { atomic.AddInt64(&m.DecodeErrors, 1) }
func (m *Metrics) IncJoinRejected() { atomic.AddInt64(&m.JoinsRejected, 1) }
func (m *Metrics) IncStrayMove()    { atomic.AddInt64(&m.StrayMoves, 1) }
func (m *Metrics) IncCulled()       { atomic.AddInt64(&m.Culled, 1) }
func (m *Metrics) IncSendError()    { atomic.AddInt64(&m.SendErrors, 1) }
func (m *Metrics) IncRecvError()    { atomic.AddInt64(&m.RecvErrors, 1) }
func (m *Metrics) SetConnections(n int) {
	atomic.StoreInt64(&m.Connections, int64(n))
}
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":       tick,
		"commands_applied": atomic.LoadInt64(&m.CommandsApplied),
		"decode_errors":    atomic.LoadInt64(&m.DecodeErrors),
		"joins_rejected":   atomic.LoadInt64(&m.JoinsRejected),
		"stray_moves":      atomic.LoadInt64(&m.StrayMoves),
		"culled":           atomic.LoadInt64(&m.Culled),
		"send_errors":      atomic.LoadInt64(&m.SendErrors),
		"recv_errors":      atomic.LoadInt64(&m.RecvErrors),
		"connections":      atomic.LoadInt64(&m.Connections),
		"avg_tick_ms":      avgMs,
	}
}
