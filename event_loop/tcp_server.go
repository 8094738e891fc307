package mnet

import (
	"fmt"
	"sync/atomic"

	"github.com/nyan233/mnet/event_loop/internal/sockets"
)

// Option 监听socket的端口复用选项
type Option int

const (
	NoReusePort Option = iota
	ReusePort
)

// TCPServer 对外的服务器门面
// 拥有acceptor、工作loop池和以连接名为键的连接表；
// 连接表只在base loop的线程里被修改
type TCPServer struct {
	loop   *EventLoop
	ipPort string
	name   string

	acceptor   *Acceptor
	threadPool *EventLoopThreadPool

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	threadInitCallback    ThreadInitCallback

	started    int32
	nextConnId int
	// 连接名 -> 连接
	connections map[string]*TCPConnection
}

func NewTCPServer(loop *EventLoop, listenAddr *InetAddress, name string, option Option) *TCPServer {
	if loop == nil {
		logger.PanicFromString("TCPServer base loop is nil")
	}
	s := &TCPServer{
		loop:        loop,
		ipPort:      listenAddr.IPPort(),
		name:        name,
		acceptor:    NewAcceptor(loop, listenAddr, option == ReusePort),
		threadPool:  NewEventLoopThreadPool(loop, name),
		nextConnId:  1,
		connections: make(map[string]*TCPConnection),
	}
	s.acceptor.SetNewConnectionCallback(s.newConnection)
	return s
}

func (s *TCPServer) Name() string   { return s.name }
func (s *TCPServer) IPPort() string { return s.ipPort }

// ListenAddress 实际监听的地址，绑定端口0时由这里拿真实端口
func (s *TCPServer) ListenAddress() *InetAddress {
	return s.acceptor.ListenAddress()
}

// SetThreadNum 设置工作loop的数量，0表示base loop兼任
func (s *TCPServer) SetThreadNum(numThreads int) {
	s.threadPool.SetThreadNum(numThreads)
}

func (s *TCPServer) SetThreadInitCallback(cb ThreadInitCallback)       { s.threadInitCallback = cb }
func (s *TCPServer) SetConnectionCallback(cb ConnectionCallback)       { s.connectionCallback = cb }
func (s *TCPServer) SetMessageCallback(cb MessageCallback)             { s.messageCallback = cb }
func (s *TCPServer) SetWriteCompleteCallback(cb WriteCompleteCallback) { s.writeCompleteCallback = cb }

// Start 启动loop池并在base loop上开启监听，重复调用只生效一次
func (s *TCPServer) Start() {
	if atomic.AddInt32(&s.started, 1) == 1 {
		s.threadPool.Start(s.threadInitCallback)
		s.loop.RunInLoop(s.acceptor.Listen)
	}
}

// acceptor接到新连接后的回调，在base loop的线程里运行
func (s *TCPServer) newConnection(connFd int, peerAddr *InetAddress) {
	ioLoop := s.threadPool.GetNextLoop()
	connName := fmt.Sprintf("%s-%s#%d", s.name, s.ipPort, s.nextConnId)
	s.nextConnId++

	logger.Debug(fmt.Sprintf("TCPServer [%s] new connection [%s] from %s", s.name, connName, peerAddr.IPPort()))

	var localAddr *InetAddress
	if sa, err := sockets.GetLocalAddr(connFd); err == nil {
		localAddr = NewInetAddressFromSockaddr(sa)
	} else {
		logger.ErrorFromString(fmt.Sprintf("getsockname fd=%d error: %v", connFd, err))
		localAddr = &InetAddress{}
	}

	conn := NewTCPConnection(ioLoop, connName, connFd, localAddr, peerAddr)
	s.connections[connName] = conn
	conn.SetConnectionCallback(s.connectionCallback)
	conn.SetMessageCallback(s.messageCallback)
	conn.SetWriteCompleteCallback(s.writeCompleteCallback)
	conn.SetCloseCallback(s.removeConnection)
	ioLoop.RunInLoop(conn.ConnectEstablished)
}

// 连接关闭的回调，从工作loop转回base loop摘表
func (s *TCPServer) removeConnection(conn *TCPConnection) {
	s.loop.RunInLoop(func() {
		s.removeConnectionInLoop(conn)
	})
}

func (s *TCPServer) removeConnectionInLoop(conn *TCPConnection) {
	logger.Debug(fmt.Sprintf("TCPServer [%s] remove connection [%s]", s.name, conn.Name()))
	delete(s.connections, conn.Name())
	ioLoop := conn.GetLoop()
	// 用QueueInLoop推迟到工作loop本轮分发结束之后再摘channel
	ioLoop.QueueInLoop(conn.ConnectDestroyed)
}

// Stop 销毁所有存活的连接并停掉工作线程池
// 每条连接恰好收到一次断开回调；base loop归调用者管，
// 必须在base loop正在运行时调用
func (s *TCPServer) Stop() {
	done := make(chan struct{})
	s.loop.RunInLoop(func() {
		for name, conn := range s.connections {
			delete(s.connections, name)
			c := conn
			c.GetLoop().RunInLoop(c.ConnectDestroyed)
		}
		s.acceptor.close()
		close(done)
	})
	<-done
	s.threadPool.Stop()
}
