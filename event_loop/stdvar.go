package mnet

import (
	"time"
)

// 这里描述了一些通用的提示值

// EventFlags 通用的事件掩码
// 各个底层Poller负责与自己的原生事件相互转换
type EventFlags uint32

const (
	EVENT_NONE  EventFlags = 0
	EVENT_READ  EventFlags = 0x01 // 可读事件
	EVENT_PRI   EventFlags = 0x02 // 紧急可读事件
	EVENT_WRITE EventFlags = 0x04 // 可写事件
	EVENT_HUP   EventFlags = 0x08 // 对端挂断事件
	EVENT_ERROR EventFlags = 0x10 // 错误事件
)

// channel在poller中的登记状态
const (
	iNDEX_NEW     = -1 // 从未添加进poller
	iNDEX_ADDED   = 1  // 已添加
	iNDEX_DELETED = 2  // 添加过但已被注销
)

const (
	// pOLL_TIME_MS Poller阻塞等待的固定超时时间
	pOLL_TIME_MS = 10000
	// iNIT_EVENT_LIST_SIZE 就绪事件列表的初始槽数，装满后翻倍
	iNIT_EVENT_LIST_SIZE = 16
	// eXTRA_BUF_SIZE ReadFd分散读时第二段暂存区的大小
	eXTRA_BUF_SIZE = 64 * 1024
	// hIGH_WATER_MARK 输出缓冲区默认的高水位
	hIGH_WATER_MARK = 64 * 1024 * 1024
)

// uSE_POLL_ENV Linux上置为非空值时强制使用poll(2)后端；BSD/Darwin上不读取
const uSE_POLL_ENV = "MNET_USE_POLL"

// Functor 投递到事件循环中执行的任务
type Functor func()

type EventCallback func()
type ReadEventCallback func(receiveTime time.Time)

// NewConnectionCallback Acceptor接收到新连接时的回调
type NewConnectionCallback func(connFd int, peerAddr *InetAddress)

// ConnectionCallback 连接建立/断开时的回调，用Connected()区分
type ConnectionCallback func(conn *TCPConnection)

// MessageCallback 每次成功读到数据时的回调
type MessageCallback func(conn *TCPConnection, buf *Buffer, receiveTime time.Time)

// WriteCompleteCallback 输出缓冲区由非空变空时的回调
type WriteCompleteCallback func(conn *TCPConnection)

// HighWaterMarkCallback 输出缓冲区向上越过高水位时的回调
type HighWaterMarkCallback func(conn *TCPConnection, currentBytes int)

// CloseCallback 内部使用，由TCPServer接到removeConnection上
type CloseCallback func(conn *TCPConnection)

// ThreadInitCallback 每个loop线程启动时的回调
type ThreadInitCallback func(loop *EventLoop)
