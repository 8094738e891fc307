package mnet

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Acceptor 绑在base loop上的监听socket
// 读就绪代表有新连接，accept出来的fd交给newConnectionCallback
type Acceptor struct {
	loop                  *EventLoop
	acceptSocket          *Socket
	acceptChannel         *Channel
	newConnectionCallback NewConnectionCallback
	listenning            bool
	// 提前占住的一个fd，EMFILE时用来腾出配额把
	// 接不进来的连接收下再关掉，避免accept在错误上空转
	idleFd int
}

func NewAcceptor(loop *EventLoop, listenAddr *InetAddress, reusePort bool) *Acceptor {
	a := &Acceptor{
		loop:         loop,
		acceptSocket: NewNonblockingSocket(listenAddr.family()),
		idleFd:       openIdleFd(),
	}
	a.acceptSocket.SetReuseAddr(true)
	a.acceptSocket.SetReusePort(reusePort)
	a.acceptSocket.BindAddress(listenAddr)
	a.acceptChannel = NewChannel(loop, a.acceptSocket.Fd())
	a.acceptChannel.SetReadCallback(func(time.Time) {
		a.handleRead()
	})
	return a
}

func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) {
	a.newConnectionCallback = cb
}

func (a *Acceptor) Listenning() bool { return a.listenning }

// Listen 只在base loop的线程里调用
func (a *Acceptor) Listen() {
	a.listenning = true
	a.acceptSocket.Listen()
	a.acceptChannel.EnableReading()
}

// ListenAddress 监听socket实际绑定的地址
func (a *Acceptor) ListenAddress() *InetAddress {
	return a.acceptSocket.LocalAddress()
}

func (a *Acceptor) handleRead() {
	connFd, sa, err := a.acceptSocket.Accept()
	if err == nil {
		if a.newConnectionCallback != nil {
			a.newConnectionCallback(connFd, NewInetAddressFromSockaddr(sa))
		} else {
			unix.Close(connFd)
		}
		return
	}

	switch err {
	case unix.EAGAIN, unix.ECONNABORTED, unix.EINTR:
		// 瞬时错误，回到poll
		return
	case unix.EMFILE:
		logger.ErrorFromString("accept error: EMFILE, recovering with reserved fd")
		unix.Close(a.idleFd)
		if fd, _, e := a.acceptSocket.Accept(); e == nil {
			unix.Close(fd)
		}
		a.idleFd = openIdleFd()
	default:
		logger.ErrorFromString(fmt.Sprintf("accept error: %v", err))
	}
}

// close 摘掉channel并释放fd，只在base loop的线程里调用
func (a *Acceptor) close() {
	a.listenning = false
	a.acceptChannel.DisableAll()
	a.acceptChannel.Remove()
	a.acceptSocket.Close()
	if a.idleFd >= 0 {
		unix.Close(a.idleFd)
		a.idleFd = -1
	}
}

func openIdleFd() int {
	fd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		logger.ErrorFromString(fmt.Sprintf("open /dev/null error: %v", err))
		return -1
	}
	return fd
}
