//go:build linux

package mnet

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// EpollPoller 基于epoll的默认后端，工作在水平触发模式
type EpollPoller struct {
	ownerLoop *EventLoop
	ep        *epoll
	// 就绪事件的接收列表，与fd->channel的映射分离，
	// 这样反复poll同一批channel不需要重新分配
	events   []unix.EpollEvent
	channels channelMap
}

func NewEpollPoller(loop *EventLoop) *EpollPoller {
	ep, err := newEpoll()
	if err != nil {
		logger.PanicFromString(fmt.Sprintf("epoll create error: %v", err))
	}
	return &EpollPoller{
		ownerLoop: loop,
		ep:        ep,
		events:    make([]unix.EpollEvent, iNIT_EVENT_LIST_SIZE),
		channels:  make(channelMap),
	}
}

func (p *EpollPoller) Poll(timeoutMs int, activeChannels *[]*Channel) time.Time {
	numEvents, err := p.ep.wait(p.events, timeoutMs)
	now := time.Now()
	if err != nil {
		if err != unix.EINTR {
			logger.ErrorFromString(fmt.Sprintf("EpollPoller::Poll error: %v", err))
		}
		return now
	}
	if numEvents > 0 {
		p.fillActiveChannels(numEvents, activeChannels)
		// 接收列表装满说明可能还有更多就绪事件，下一轮前翻倍
		if numEvents == len(p.events) {
			p.events = make([]unix.EpollEvent, len(p.events)*2)
		}
	}
	return now
}

func (p *EpollPoller) fillActiveChannels(numEvents int, activeChannels *[]*Channel) {
	for i := 0; i < numEvents; i++ {
		ev := p.events[i]
		channel, ok := p.channels[int(ev.Fd)]
		if !ok {
			continue
		}
		channel.setRevents(epollToEvent(ev.Events))
		*activeChannels = append(*activeChannels, channel)
	}
}

func (p *EpollPoller) UpdateChannel(channel *Channel) {
	index := channel.index
	if index == iNDEX_NEW || index == iNDEX_DELETED {
		if channel.IsNoneEvent() {
			return
		}
		if index == iNDEX_NEW {
			p.channels[channel.Fd()] = channel
		}
		channel.index = iNDEX_ADDED
		p.update(unix.EPOLL_CTL_ADD, channel)
	} else {
		if channel.IsNoneEvent() {
			p.update(unix.EPOLL_CTL_DEL, channel)
			channel.index = iNDEX_DELETED
		} else {
			p.update(unix.EPOLL_CTL_MOD, channel)
		}
	}
}

func (p *EpollPoller) RemoveChannel(channel *Channel) {
	delete(p.channels, channel.Fd())
	if channel.index == iNDEX_ADDED {
		p.update(unix.EPOLL_CTL_DEL, channel)
	}
	channel.index = iNDEX_NEW
}

func (p *EpollPoller) HasChannel(channel *Channel) bool {
	return p.channels.has(channel)
}

func (p *EpollPoller) update(operation int, channel *Channel) {
	var err error
	switch operation {
	case unix.EPOLL_CTL_ADD:
		err = p.ep.addEvent(channel.Fd(), eventToEpoll(channel.Events()))
	case unix.EPOLL_CTL_MOD:
		err = p.ep.modEvent(channel.Fd(), eventToEpoll(channel.Events()))
	case unix.EPOLL_CTL_DEL:
		err = p.ep.delEvent(channel.Fd())
	}
	if err != nil {
		if operation == unix.EPOLL_CTL_DEL {
			// channel可能已经随fd一起消失了
			logger.ErrorFromString(fmt.Sprintf("epoll_ctl del fd=%d error: %v", channel.Fd(), err))
		} else {
			logger.PanicFromString(fmt.Sprintf("epoll_ctl add/mod fd=%d error: %v", channel.Fd(), err))
		}
	}
}
