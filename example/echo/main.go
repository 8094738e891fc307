package main

import (
	"fmt"
	"os"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/zbh255/bilog"

	mnet "github.com/nyan233/mnet/event_loop"
)

// echo服务器示例
// 消息处理交给ants协程池，处理完成后从池里的goroutine跨线程回写，
// Send自己会把写操作转交回连接所属的loop

type EchoServer struct {
	loop   *mnet.EventLoop
	server *mnet.TCPServer
	pool   *ants.Pool
	logger bilog.Logger
}

func NewEchoServer(loop *mnet.EventLoop, addr *mnet.InetAddress, name string) *EchoServer {
	s := &EchoServer{
		loop:   loop,
		server: mnet.NewTCPServer(loop, addr, name, mnet.NoReusePort),
		logger: bilog.NewLogger(os.Stdout, bilog.PANIC, bilog.WithTimes(), bilog.WithCaller()),
	}
	pool, err := ants.NewPool(128)
	if err != nil {
		s.logger.PanicFromErr(err)
	}
	s.pool = pool
	s.server.SetConnectionCallback(s.onConnection)
	s.server.SetMessageCallback(s.onMessage)
	s.server.SetThreadNum(3)
	return s
}

func (s *EchoServer) Start() {
	s.server.Start()
}

func (s *EchoServer) onConnection(conn *mnet.TCPConnection) {
	if conn.Connected() {
		s.logger.Debug(fmt.Sprintf("conn UP: %s", conn.PeerAddress().IPPort()))
	} else {
		s.logger.Debug(fmt.Sprintf("conn DOWN: %s", conn.PeerAddress().IPPort()))
	}
}

func (s *EchoServer) onMessage(conn *mnet.TCPConnection, buf *mnet.Buffer, _ time.Time) {
	msg := buf.RetrieveAllAsString()
	err := s.pool.Submit(func() {
		conn.SendString(msg)
	})
	if err != nil {
		s.logger.ErrorFromErr(err)
	}
}

func main() {
	loop := mnet.NewEventLoop()
	addr := mnet.NewInetAddress("0.0.0.0", 8000)
	server := NewEchoServer(loop, addr, "EchoServer-01")
	server.Start()
	loop.Loop()
}
