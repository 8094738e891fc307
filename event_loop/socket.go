package mnet

import (
	"fmt"

	"github.com/nyan233/mnet/event_loop/internal/sockets"
	"golang.org/x/sys/unix"
)

// Socket 持有一个socket fd
type Socket struct {
	fd int
}

func NewSocket(fd int) *Socket {
	return &Socket{fd: fd}
}

// NewNonblockingSocket 创建失败没有退路，直接panic
func NewNonblockingSocket(family int) *Socket {
	fd, err := sockets.CreateNonblocking(family)
	if err != nil {
		logger.PanicFromString(fmt.Sprintf("create nonblocking socket error: %v", err))
	}
	return &Socket{fd: fd}
}

func (s *Socket) Fd() int { return s.fd }

func (s *Socket) BindAddress(addr *InetAddress) {
	if err := sockets.Bind(s.fd, addr.Sockaddr()); err != nil {
		logger.PanicFromString(fmt.Sprintf("bind %s error: %v", addr.IPPort(), err))
	}
}

func (s *Socket) Listen() {
	if err := sockets.Listen(s.fd); err != nil {
		logger.PanicFromString(fmt.Sprintf("listen fd=%d error: %v", s.fd, err))
	}
}

func (s *Socket) Accept() (int, unix.Sockaddr, error) {
	return sockets.Accept(s.fd)
}

func (s *Socket) ShutdownWrite() {
	if err := sockets.ShutdownWrite(s.fd); err != nil {
		logger.ErrorFromString(fmt.Sprintf("shutdown write fd=%d error: %v", s.fd, err))
	}
}

func (s *Socket) SetReuseAddr(on bool) {
	if err := sockets.SetReuseAddr(s.fd, on); err != nil {
		logger.ErrorFromString(fmt.Sprintf("set SO_REUSEADDR error: %v", err))
	}
}

func (s *Socket) SetReusePort(on bool) {
	if err := sockets.SetReusePort(s.fd, on); err != nil {
		logger.ErrorFromString(fmt.Sprintf("set SO_REUSEPORT error: %v", err))
	}
}

func (s *Socket) SetKeepAlive(on bool) {
	if err := sockets.SetKeepAlive(s.fd, on); err != nil {
		logger.ErrorFromString(fmt.Sprintf("set SO_KEEPALIVE error: %v", err))
	}
}

func (s *Socket) SetTCPNoDelay(on bool) {
	if err := sockets.SetTCPNoDelay(s.fd, on); err != nil {
		logger.ErrorFromString(fmt.Sprintf("set TCP_NODELAY error: %v", err))
	}
}

// LocalAddress 查询socket绑定的本端地址
func (s *Socket) LocalAddress() *InetAddress {
	sa, err := sockets.GetLocalAddr(s.fd)
	if err != nil {
		logger.ErrorFromString(fmt.Sprintf("getsockname fd=%d error: %v", s.fd, err))
		return &InetAddress{}
	}
	return NewInetAddressFromSockaddr(sa)
}

func (s *Socket) Close() {
	sockets.Close(s.fd)
}
