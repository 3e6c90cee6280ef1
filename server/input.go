package server

import (
	"net/netip"

	"fpsync/protocol"
	"fpsync/transport"
)

// inputCommand 已解码的客户端命令，带来源地址，等下一次 Tick 处理
type inputCommand struct {
	cmd  protocol.Command
	from netip.AddrPort
}

// Transport 服务端的收发接口。默认实现是 transport.Endpoint；
// 将来的可靠层（序号、确认、重传）可以包在这个接口外面，无需改动 tick
type Transport interface {
	TryRecv() (transport.Datagram, bool)
	SendTo(b []byte, to netip.AddrPort) error
	Close() error
}

// drain 非阻塞地读空套接字，解码后追加到输入队列
func (s *Server) drain() {
	for {
		d, ok := s.transport.TryRecv()
		if !ok {
			return
		}
		if d.Err != nil {
			s.metrics.IncRecvError()
			s.log.Errorw("receive failed", "err", d.Err)
			return
		}
		cmd, err := protocol.Decode(d.Data)
		if err != nil {
			s.metrics.IncDecodeError()
			s.log.Warnw("invalid command", "from", d.From, "bytes", len(d.Data), "err", err)
			continue
		}
		if cmd.Kind != protocol.KindMove {
			s.log.Infow("command received", "from", d.From, "kind", cmd.Kind)
		}
		s.inputs = append(s.inputs, inputCommand{cmd: cmd, from: d.From})
	}
}
