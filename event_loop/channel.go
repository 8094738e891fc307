package mnet

import (
	"time"
)

// Channel 把一个fd、它关注的事件和就绪后的回调绑定到一个EventLoop上
// 一个Channel终生只属于一个loop；创建时是游离态，第一次
// EnableReading/EnableWriting才会注册进poller
type Channel struct {
	loop *EventLoop
	fd   int
	// 关注的事件
	events EventFlags
	// poller返回的就绪事件
	revents EventFlags
	// poller的私有登记项，见iNDEX_*
	index int

	// tie持有fd属主的引用，分发事件期间防止属主被提前销毁
	tie  interface{}
	tied bool

	readCallback  ReadEventCallback
	writeCallback EventCallback
	closeCallback EventCallback
	errorCallback EventCallback
}

func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{
		loop:  loop,
		fd:    fd,
		index: iNDEX_NEW,
	}
}

func (c *Channel) Fd() int                { return c.fd }
func (c *Channel) Events() EventFlags     { return c.events }
func (c *Channel) OwnerLoop() *EventLoop  { return c.loop }
func (c *Channel) setRevents(e EventFlags) { c.revents = e }

func (c *Channel) SetReadCallback(cb ReadEventCallback) { c.readCallback = cb }
func (c *Channel) SetWriteCallback(cb EventCallback)    { c.writeCallback = cb }
func (c *Channel) SetCloseCallback(cb EventCallback)    { c.closeCallback = cb }
func (c *Channel) SetErrorCallback(cb EventCallback)    { c.errorCallback = cb }

// Tie 记下fd的属主，之后的每次分发都要先确认属主还在
// 关闭与I/O事件在同一轮poll里赛跑时，靠它避免对已销毁对象的回调
func (c *Channel) Tie(owner interface{}) {
	c.tie = owner
	c.tied = true
}

// untie只清掉属主引用，tied保持不变，之后HandleEvent据此丢弃事件
func (c *Channel) untie() {
	c.tie = nil
}

func (c *Channel) EnableReading() {
	c.events |= EVENT_READ | EVENT_PRI
	c.update()
}

func (c *Channel) DisableReading() {
	c.events &^= EVENT_READ | EVENT_PRI
	c.update()
}

func (c *Channel) EnableWriting() {
	c.events |= EVENT_WRITE
	c.update()
}

func (c *Channel) DisableWriting() {
	c.events &^= EVENT_WRITE
	c.update()
}

func (c *Channel) DisableAll() {
	c.events = EVENT_NONE
	c.update()
}

func (c *Channel) IsNoneEvent() bool { return c.events == EVENT_NONE }
func (c *Channel) IsWriting() bool   { return c.events&EVENT_WRITE != 0 }
func (c *Channel) IsReading() bool   { return c.events&EVENT_READ != 0 }

func (c *Channel) update() {
	c.loop.UpdateChannel(c)
}

// Remove 让所属的loop把自己从poller中摘除
func (c *Channel) Remove() {
	c.untie()
	c.loop.RemoveChannel(c)
}

// HandleEvent 事件分发的唯一入口
// tie过的channel要先确认属主仍然存活，属主已亡则静默丢弃这次事件
func (c *Channel) HandleEvent(receiveTime time.Time) {
	if c.tied && c.tie == nil {
		return
	}
	c.handleEventWithGuard(receiveTime)
}

// 按优先级检查就绪事件并触发回调:
// 对端挂断且无数据可读 > 错误 > 可读 > 可写
func (c *Channel) handleEventWithGuard(receiveTime time.Time) {
	if c.revents&EVENT_HUP != 0 && c.revents&EVENT_READ == 0 {
		if c.closeCallback != nil {
			c.closeCallback()
		}
		return
	}
	if c.revents&EVENT_ERROR != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}
	if c.revents&(EVENT_READ|EVENT_PRI) != 0 {
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
	}
	if c.revents&EVENT_WRITE != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
