package mnet

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nyan233/mnet/event_loop/internal/sockets"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"
)

// 连接的四个状态
const (
	sTATE_DISCONNECTED int32 = iota
	sTATE_CONNECTING
	sTATE_CONNECTED
	sTATE_DISCONNECTING
)

// TCPConnection 一条已接受连接的状态机
// 除了Send和Shutdown，其余方法都只在所属工作loop的线程里运行；
// channel上tie着本对象，关闭和I/O事件赛跑时不会回调到已销毁的连接
type TCPConnection struct {
	loop  *EventLoop
	name  string
	state int32
	// fd只关闭一次
	sockClosed uint32

	socket  *Socket
	channel *Channel

	localAddr *InetAddress
	peerAddr  *InetAddress

	inputBuffer  *Buffer
	outputBuffer *Buffer

	highWaterMark int

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	closeCallback         CloseCallback
}

func NewTCPConnection(loop *EventLoop, name string, sockFd int, localAddr, peerAddr *InetAddress) *TCPConnection {
	if loop == nil {
		logger.PanicFromString("TCPConnection loop is nil")
	}
	c := &TCPConnection{
		loop:          loop,
		name:          name,
		state:         sTATE_CONNECTING,
		socket:        NewSocket(sockFd),
		channel:       NewChannel(loop, sockFd),
		localAddr:     localAddr,
		peerAddr:      peerAddr,
		inputBuffer:   NewBuffer(),
		outputBuffer:  NewBuffer(),
		highWaterMark: hIGH_WATER_MARK,
	}
	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)
	c.socket.SetKeepAlive(true)
	logger.Debug(fmt.Sprintf("TCPConnection [%s] at fd=%d", name, sockFd))
	return c
}

func (c *TCPConnection) GetLoop() *EventLoop        { return c.loop }
func (c *TCPConnection) Name() string               { return c.name }
func (c *TCPConnection) LocalAddress() *InetAddress { return c.localAddr }
func (c *TCPConnection) PeerAddress() *InetAddress  { return c.peerAddr }

func (c *TCPConnection) Connected() bool {
	return atomic.LoadInt32(&c.state) == sTATE_CONNECTED
}

func (c *TCPConnection) Disconnected() bool {
	return atomic.LoadInt32(&c.state) == sTATE_DISCONNECTED
}

func (c *TCPConnection) SetConnectionCallback(cb ConnectionCallback)       { c.connectionCallback = cb }
func (c *TCPConnection) SetMessageCallback(cb MessageCallback)             { c.messageCallback = cb }
func (c *TCPConnection) SetWriteCompleteCallback(cb WriteCompleteCallback) { c.writeCompleteCallback = cb }
func (c *TCPConnection) SetCloseCallback(cb CloseCallback)                 { c.closeCallback = cb }

func (c *TCPConnection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, mark int) {
	c.highWaterMarkCallback = cb
	c.highWaterMark = mark
}

// SetTCPNoDelay 关闭Nagle算法
func (c *TCPConnection) SetTCPNoDelay(on bool) {
	c.socket.SetTCPNoDelay(on)
}

// Send 在任意线程上都可以调用
// 不在属主线程时要先拷贝一份数据再投递，调用者的切片
// 不能假定活得比这次异步写还久
func (c *TCPConnection) Send(data []byte) {
	if atomic.LoadInt32(&c.state) != sTATE_CONNECTED {
		return
	}
	if c.loop.IsInLoopThread() {
		c.sendInLoop(data)
		return
	}
	bb := bytebufferpool.Get()
	bb.Write(data)
	c.loop.RunInLoop(func() {
		c.sendInLoop(bb.B)
		bytebufferpool.Put(bb)
	})
}

func (c *TCPConnection) SendString(s string) {
	if atomic.LoadInt32(&c.state) != sTATE_CONNECTED {
		return
	}
	if c.loop.IsInLoopThread() {
		c.sendInLoop([]byte(s))
		return
	}
	bb := bytebufferpool.Get()
	bb.WriteString(s)
	c.loop.RunInLoop(func() {
		c.sendInLoop(bb.B)
		bytebufferpool.Put(bb)
	})
}

// 发送的主路径
// 没有关注写事件且输出缓冲为空时先尝试直接写，写不完的部分
// 进输出缓冲并打开写关注，由handleWrite接着排空
func (c *TCPConnection) sendInLoop(data []byte) {
	var nwrote int
	remaining := len(data)
	faultError := false

	if atomic.LoadInt32(&c.state) == sTATE_DISCONNECTED {
		logger.ErrorFromString(fmt.Sprintf("TCPConnection [%s] disconnected, give up writing", c.name))
		return
	}

	if !c.channel.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := unix.Write(c.socket.Fd(), data)
		if n >= 0 && err == nil {
			nwrote = n
			remaining = len(data) - nwrote
			if remaining == 0 && c.writeCompleteCallback != nil {
				c.loop.QueueInLoop(func() {
					c.writeCompleteCallback(c)
				})
			}
		} else {
			// EAGAIN当作本次没有任何进展，剩余的全部进缓冲
			nwrote = 0
			if err != unix.EAGAIN {
				logger.ErrorFromString(fmt.Sprintf("TCPConnection [%s] sendInLoop error: %v", c.name, err))
				if err == unix.EPIPE || err == unix.ECONNRESET {
					faultError = true
				}
			}
		}
	}

	if !faultError && remaining > 0 {
		oldLen := c.outputBuffer.ReadableBytes()
		if oldLen < c.highWaterMark && oldLen+remaining >= c.highWaterMark && c.highWaterMarkCallback != nil {
			currentBytes := oldLen + remaining
			c.loop.QueueInLoop(func() {
				c.highWaterMarkCallback(c, currentBytes)
			})
		}
		c.outputBuffer.Append(data[nwrote:])
		if !c.channel.IsWriting() {
			c.channel.EnableWriting()
		}
	}
}

// Shutdown 关闭写方向，读方向保持打开
// 输出缓冲还有数据时推迟到排空后再半关
func (c *TCPConnection) Shutdown() {
	if atomic.CompareAndSwapInt32(&c.state, sTATE_CONNECTED, sTATE_DISCONNECTING) {
		c.loop.RunInLoop(c.shutdownInLoop)
	}
}

func (c *TCPConnection) shutdownInLoop() {
	if !c.channel.IsWriting() {
		// 输出缓冲已经排空
		c.socket.ShutdownWrite()
	}
}

// ConnectEstablished 连接就绪，只在所属loop的线程里执行一次
func (c *TCPConnection) ConnectEstablished() {
	atomic.StoreInt32(&c.state, sTATE_CONNECTED)
	c.channel.Tie(c)
	c.channel.EnableReading()
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
}

// ConnectDestroyed 从server的表里摘除后的最后一步
// 没走过handleClose的连接在这里补上断开回调
func (c *TCPConnection) ConnectDestroyed() {
	if atomic.CompareAndSwapInt32(&c.state, sTATE_CONNECTED, sTATE_DISCONNECTED) ||
		atomic.CompareAndSwapInt32(&c.state, sTATE_DISCONNECTING, sTATE_DISCONNECTED) {
		c.channel.DisableAll()
		if c.connectionCallback != nil {
			c.connectionCallback(c)
		}
	}
	c.channel.Remove()
	if atomic.CompareAndSwapUint32(&c.sockClosed, 0, 1) {
		c.socket.Close()
	}
}

func (c *TCPConnection) handleRead(receiveTime time.Time) {
	n, err := c.inputBuffer.ReadFd(c.channel.Fd())
	switch {
	case n > 0:
		if c.messageCallback != nil {
			c.messageCallback(c, c.inputBuffer, receiveTime)
		}
	case n == 0:
		c.handleClose()
	default:
		if err == unix.EAGAIN {
			return
		}
		logger.ErrorFromString(fmt.Sprintf("TCPConnection [%s] handleRead error: %v", c.name, err))
		c.handleError()
	}
}

func (c *TCPConnection) handleWrite() {
	if !c.channel.IsWriting() {
		logger.ErrorFromString(fmt.Sprintf("TCPConnection [%s] fd=%d is down, no more writing", c.name, c.channel.Fd()))
		return
	}
	n, err := c.outputBuffer.WriteFd(c.channel.Fd())
	if n > 0 {
		c.outputBuffer.Retrieve(n)
		if c.outputBuffer.ReadableBytes() == 0 {
			c.channel.DisableWriting()
			if c.writeCompleteCallback != nil {
				c.loop.QueueInLoop(func() {
					c.writeCompleteCallback(c)
				})
			}
			if atomic.LoadInt32(&c.state) == sTATE_DISCONNECTING {
				c.shutdownInLoop()
			}
		}
	} else if err != nil && err != unix.EAGAIN {
		logger.ErrorFromString(fmt.Sprintf("TCPConnection [%s] handleWrite error: %v", c.name, err))
	}
}

// 对端关闭或者出错后的统一收尾
// closeCallback由server接到removeConnection上，回调期间
// server和正在执行的任务都还持有本对象
func (c *TCPConnection) handleClose() {
	logger.Debug(fmt.Sprintf("TCPConnection [%s] fd=%d handleClose", c.name, c.channel.Fd()))
	atomic.StoreInt32(&c.state, sTATE_DISCONNECTED)
	c.channel.DisableAll()

	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
	if c.closeCallback != nil {
		c.closeCallback(c)
	}
}

func (c *TCPConnection) handleError() {
	err := sockets.GetSocketError(c.channel.Fd())
	logger.ErrorFromString(fmt.Sprintf("TCPConnection [%s] SO_ERROR=%d", c.name, err))
}
