// Package transport 封装 UDP 套接字：读协程把报文推入有界通道，
// 上层通过 TryRecv 以非阻塞方式取出，等价于非阻塞套接字的 would-block 语义。
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"

	"fpsync/protocol"
)

// InboxSize 读协程与消费方之间的缓冲报文数
const InboxSize = 1024

// Datagram 一个入站报文；Err 非空表示一次接收失败
type Datagram struct {
	Data []byte
	From netip.AddrPort
	Err  error
}

// Endpoint 一个 UDP 端点（服务端监听或客户端已连接）
type Endpoint struct {
	conn    *net.UDPConn
	inbox   chan Datagram
	dropped int64

	closeOnce sync.Once
	closeErr  error
}

// Listen 绑定 host:port。绑定失败是唯一的致命错误，直接返回给调用方
func Listen(host string, port int) (*Endpoint, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s:%d: %w", host, port, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return newEndpoint(conn), nil
}

// Dial 绑定临时端口并关联到服务端地址，之后 Send/TryRecv 都隐式指向该对端
func Dial(server string) (*Endpoint, error) {
	raddr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", server, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", raddr, err)
	}
	return newEndpoint(conn), nil
}

func newEndpoint(conn *net.UDPConn) *Endpoint {
	e := &Endpoint{
		conn:  conn,
		inbox: make(chan Datagram, InboxSize),
	}
	go e.readPump()
	return e
}

// readPump 独立协程，持续读取报文；通道满时丢弃（只有最新快照有意义）
func (e *Endpoint) readPump() {
	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		n, from, err := e.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			e.push(Datagram{From: from, Err: err})
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		e.push(Datagram{Data: data, From: from})
	}
}

func (e *Endpoint) push(d Datagram) {
	select {
	case e.inbox <- d:
	default:
		atomic.AddInt64(&e.dropped, 1)
	}
}

// TryRecv 取出一个报文；没有数据时立即返回 false
func (e *Endpoint) TryRecv() (Datagram, bool) {
	select {
	case d := <-e.inbox:
		return d, true
	default:
		return Datagram{}, false
	}
}

// SendTo 发往指定地址（仅用于监听端点）
func (e *Endpoint) SendTo(b []byte, to netip.AddrPort) error {
	_, err := e.conn.WriteToUDPAddrPort(b, to)
	return err
}

// Send 发往已关联的对端（仅用于 Dial 得到的端点）
func (e *Endpoint) Send(b []byte) error {
	_, err := e.conn.Write(b)
	return err
}

// LocalAddr 本地绑定地址，端口为 0 时可用于取回实际端口
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// Dropped 因缓冲区满而被丢弃的报文数
func (e *Endpoint) Dropped() int64 {
	return atomic.LoadInt64(&e.dropped)
}

// Close 关闭套接字，读协程随之退出；可重复调用
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.conn.Close()
	})
	return e.closeErr
}
