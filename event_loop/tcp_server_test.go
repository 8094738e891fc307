package mnet

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

type testServer struct {
	loop   *EventLoop
	server *TCPServer
	addr   string
}

// 起一个监听127.0.0.1随机端口的服务器，base loop跑在独立goroutine上
func newTestServer(t *testing.T, numThreads int, setup func(*TCPServer)) *testServer {
	t.Helper()
	loop := startLoopInBackground()
	server := NewTCPServer(loop, NewInetAddress("127.0.0.1", 0), "TestServer", NoReusePort)
	server.SetThreadNum(numThreads)
	if setup != nil {
		setup(server)
	}
	server.Start()
	// Start把Listen投递到base loop上异步执行，等它执行完再去连接
	listening := make(chan struct{})
	loop.RunInLoop(func() { close(listening) })
	<-listening
	return &testServer{
		loop:   loop,
		server: server,
		addr:   server.ListenAddress().IPPort(),
	}
}

func (s *testServer) close() {
	s.server.Stop()
	s.loop.Quit()
}

func recvEvent(t *testing.T, ch chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("event order error: want %q got %q", want, got)
		}
	case <-time.After(time.Second * 3):
		t.Fatalf("timeout waiting for event %q", want)
	}
}

func TestEchoRoundTrip(t *testing.T) {
	events := make(chan string, 16)
	writeDone := make(chan struct{}, 16)
	srv := newTestServer(t, 3, func(server *TCPServer) {
		server.SetConnectionCallback(func(conn *TCPConnection) {
			if conn.Connected() {
				events <- "up"
			} else {
				events <- "down"
			}
		})
		server.SetMessageCallback(func(conn *TCPConnection, buf *Buffer, _ time.Time) {
			conn.SendString(buf.RetrieveAllAsString())
		})
		server.SetWriteCompleteCallback(func(conn *TCPConnection) {
			writeDone <- struct{}{}
		})
	})
	defer srv.close()

	client, err := net.Dial("tcp", srv.addr)
	if err != nil {
		t.Fatal(err)
	}
	recvEvent(t, events, "up")

	if _, err = client.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	client.SetReadDeadline(time.Now().Add(time.Second * 3))
	reply := make([]byte, 5)
	if _, err = io.ReadFull(client, reply); err != nil {
		t.Fatal(err)
	}
	if string(reply) != "hello" {
		t.Fatalf("echo mismatch: %q", reply)
	}

	// 输出缓冲走过一次空->非空->空，回调恰好一次
	select {
	case <-writeDone:
	case <-time.After(time.Second * 3):
		t.Fatal("write complete callback not fired")
	}
	select {
	case <-writeDone:
		t.Fatal("write complete callback fired twice")
	case <-time.After(time.Millisecond * 100):
	}

	client.Close()
	recvEvent(t, events, "down")
}

func TestConnectionDispatchRoundRobin(t *testing.T) {
	var mu sync.Mutex
	var initLoops []*EventLoop
	connLoops := make(chan *EventLoop, 8)
	srv := newTestServer(t, 3, func(server *TCPServer) {
		server.SetThreadInitCallback(func(loop *EventLoop) {
			mu.Lock()
			initLoops = append(initLoops, loop)
			mu.Unlock()
		})
		server.SetConnectionCallback(func(conn *TCPConnection) {
			if conn.Connected() {
				connLoops <- conn.GetLoop()
			}
		})
	})
	defer srv.close()

	mu.Lock()
	// 前3个是工作loop，最后一个是base loop
	workers := append([]*EventLoop(nil), initLoops[:3]...)
	mu.Unlock()

	var clients []net.Conn
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()
	// 顺序建立6条连接，应该依次落在w0 w1 w2 w0 w1 w2上
	for i := 0; i < 6; i++ {
		client, err := net.Dial("tcp", srv.addr)
		if err != nil {
			t.Fatal(err)
		}
		clients = append(clients, client)
		select {
		case loop := <-connLoops:
			if loop != workers[i%3] {
				t.Fatalf("connection %d dispatched to the wrong loop", i)
			}
		case <-time.After(time.Second * 3):
			t.Fatal("connection callback not fired")
		}
	}
}

func TestSendFromOtherGoroutine(t *testing.T) {
	connCh := make(chan *TCPConnection, 1)
	srv := newTestServer(t, 2, func(server *TCPServer) {
		server.SetConnectionCallback(func(conn *TCPConnection) {
			if conn.Connected() {
				connCh <- conn
			}
		})
	})
	defer srv.close()

	client, err := net.Dial("tcp", srv.addr)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	var conn *TCPConnection
	select {
	case conn = <-connCh:
	case <-time.After(time.Second * 3):
		t.Fatal("connection callback not fired")
	}

	// 测试goroutine既不是base loop也不是工作loop
	if conn.GetLoop().IsInLoopThread() {
		t.Fatal("test goroutine must not own the worker loop")
	}
	conn.Send([]byte("X"))

	client.SetReadDeadline(time.Now().Add(time.Second * 3))
	got := make([]byte, 1)
	if _, err = io.ReadFull(client, got); err != nil {
		t.Fatal(err)
	}
	if got[0] != 'X' {
		t.Fatalf("cross goroutine send got %q", got)
	}
}

func TestHighWaterMark(t *testing.T) {
	loop := startLoopInBackground()
	defer loop.Quit()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err = unix.SetNonblock(fds[0], true); err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[1])

	conn := NewTCPConnection(loop, "hwm#1", fds[0], &InetAddress{}, &InetAddress{})
	marks := make(chan int, 8)
	conn.SetHighWaterMarkCallback(func(_ *TCPConnection, currentBytes int) {
		marks <- currentBytes
	}, 1024)

	runInLoop := func(fn func()) {
		done := make(chan struct{})
		loop.RunInLoop(func() {
			fn()
			close(done)
		})
		<-done
	}
	runInLoop(conn.ConnectEstablished)

	// 把内核发送缓冲灌满，之后的Send只能进输出缓冲
	junk := make([]byte, 32*1024)
	for chunk := len(junk); chunk > 0; chunk /= 2 {
		for {
			if _, err := unix.Write(fds[0], junk[:chunk]); err != nil {
				break
			}
		}
	}

	send := func(n int) {
		runInLoop(func() {
			conn.Send(make([]byte, n))
		})
	}
	send(512) // 512 < 1024，不触发
	send(600) // 512 -> 1112 向上越线，触发一次
	send(200) // 已在线上，不触发

	select {
	case got := <-marks:
		if got != 1112 {
			t.Fatalf("high water mark callback got %d, want 1112", got)
		}
	case <-time.After(time.Second * 3):
		t.Fatal("high water mark callback not fired")
	}
	select {
	case got := <-marks:
		t.Fatalf("high water mark callback fired again with %d", got)
	case <-time.After(time.Millisecond * 100):
	}

	runInLoop(conn.ConnectDestroyed)
}

func TestHalfClose(t *testing.T) {
	srv := newTestServer(t, 1, func(server *TCPServer) {
		server.SetMessageCallback(func(conn *TCPConnection, buf *Buffer, _ time.Time) {
			buf.RetrieveAll()
			conn.Send([]byte("ok"))
			conn.Shutdown()
		})
	})
	defer srv.close()

	client, err := net.Dial("tcp", srv.addr)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if _, err = client.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	client.SetReadDeadline(time.Now().Add(time.Second * 3))
	// 应答之后紧跟EOF，数据不能被截断
	got, err := io.ReadAll(client)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ok" {
		t.Fatalf("half close got %q", got)
	}
}

func TestGracefulShutdown(t *testing.T) {
	const numConns = 100
	var ups, downs int32
	allUp := make(chan struct{})
	allDown := make(chan struct{})
	srv := newTestServer(t, 3, func(server *TCPServer) {
		server.SetConnectionCallback(func(conn *TCPConnection) {
			if conn.Connected() {
				if atomic.AddInt32(&ups, 1) == numConns {
					close(allUp)
				}
			} else {
				if atomic.AddInt32(&downs, 1) == numConns {
					close(allDown)
				}
			}
		})
	})

	clients := make([]net.Conn, 0, numConns)
	for i := 0; i < numConns; i++ {
		client, err := net.Dial("tcp", srv.addr)
		if err != nil {
			t.Fatal(err)
		}
		clients = append(clients, client)
	}
	select {
	case <-allUp:
	case <-time.After(time.Second * 5):
		t.Fatalf("only %d connections established", atomic.LoadInt32(&ups))
	}

	srv.server.Stop()
	select {
	case <-allDown:
	case <-time.After(time.Second * 5):
		t.Fatalf("only %d down callbacks fired", atomic.LoadInt32(&downs))
	}
	time.Sleep(time.Millisecond * 100)
	if got := atomic.LoadInt32(&downs); got != numConns {
		t.Fatalf("down callback fired %d times", got)
	}

	// 每个客户端都应该读到EOF
	for _, client := range clients {
		client.SetReadDeadline(time.Now().Add(time.Second * 3))
		if _, err := client.Read(make([]byte, 1)); err != io.EOF {
			t.Fatalf("client read %v, want EOF", err)
		}
		client.Close()
	}
	srv.loop.Quit()
}

func TestServerStartIdempotent(t *testing.T) {
	srv := newTestServer(t, 1, nil)
	defer srv.close()

	// 重复Start不应该有任何效果
	srv.server.Start()
	srv.server.Start()

	client, err := net.Dial("tcp", srv.addr)
	if err != nil {
		t.Fatal(err)
	}
	client.Close()
}
