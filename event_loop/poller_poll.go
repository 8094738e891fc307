//go:build linux

package mnet

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// PollPoller 基于poll(2)的备用后端
// 这里channel的index是它的pollfd在列表中的下标；被暂时取消关注的
// 条目把fd翻转成负数，内核会忽略它们
type PollPoller struct {
	ownerLoop *EventLoop
	pollFds   []unix.PollFd
	channels  channelMap
}

func NewPollPoller(loop *EventLoop) *PollPoller {
	return &PollPoller{
		ownerLoop: loop,
		pollFds:   make([]unix.PollFd, 0, iNIT_EVENT_LIST_SIZE),
		channels:  make(channelMap),
	}
}

func (p *PollPoller) Poll(timeoutMs int, activeChannels *[]*Channel) time.Time {
	numEvents, err := unix.Poll(p.pollFds, timeoutMs)
	now := time.Now()
	if err != nil {
		if err != unix.EINTR {
			logger.ErrorFromString(fmt.Sprintf("PollPoller::Poll error: %v", err))
		}
		return now
	}
	if numEvents > 0 {
		p.fillActiveChannels(numEvents, activeChannels)
	}
	return now
}

func (p *PollPoller) fillActiveChannels(numEvents int, activeChannels *[]*Channel) {
	for i := 0; i < len(p.pollFds) && numEvents > 0; i++ {
		pfd := &p.pollFds[i]
		if pfd.Revents == 0 {
			continue
		}
		numEvents--
		channel, ok := p.channels[int(pfd.Fd)]
		if !ok {
			continue
		}
		channel.setRevents(pollToEvent(pfd.Revents))
		*activeChannels = append(*activeChannels, channel)
	}
}

func (p *PollPoller) UpdateChannel(channel *Channel) {
	if channel.index < 0 {
		// 新channel，追加一个pollfd
		p.pollFds = append(p.pollFds, unix.PollFd{
			Fd:     int32(channel.Fd()),
			Events: eventToPoll(channel.Events()),
		})
		channel.index = len(p.pollFds) - 1
		p.channels[channel.Fd()] = channel
		if channel.IsNoneEvent() {
			p.pollFds[channel.index].Fd = ignoredFd(channel.Fd())
		}
	} else {
		pfd := &p.pollFds[channel.index]
		pfd.Fd = int32(channel.Fd())
		pfd.Events = eventToPoll(channel.Events())
		pfd.Revents = 0
		if channel.IsNoneEvent() {
			pfd.Fd = ignoredFd(channel.Fd())
		}
	}
}

func (p *PollPoller) RemoveChannel(channel *Channel) {
	idx := channel.index
	if idx < 0 || idx >= len(p.pollFds) {
		return
	}
	delete(p.channels, channel.Fd())
	last := len(p.pollFds) - 1
	if idx != last {
		movedFd := int(p.pollFds[last].Fd)
		if movedFd < 0 {
			movedFd = -movedFd - 1
		}
		p.pollFds[idx] = p.pollFds[last]
		if moved, ok := p.channels[movedFd]; ok {
			moved.index = idx
		}
	}
	p.pollFds = p.pollFds[:last]
	channel.index = iNDEX_NEW
}

func (p *PollPoller) HasChannel(channel *Channel) bool {
	return p.channels.has(channel)
}

// 被忽略的pollfd条目，poll(2)跳过负的fd
func ignoredFd(fd int) int32 {
	return int32(-fd - 1)
}

func eventToPoll(flags EventFlags) int16 {
	var pFlags int16
	if flags&EVENT_READ != 0 {
		pFlags |= unix.POLLIN
	}
	if flags&EVENT_PRI != 0 {
		pFlags |= unix.POLLPRI
	}
	if flags&EVENT_WRITE != 0 {
		pFlags |= unix.POLLOUT
	}
	return pFlags
}

func pollToEvent(pFlags int16) EventFlags {
	var flags EventFlags
	if pFlags&unix.POLLIN != 0 {
		flags |= EVENT_READ
	}
	if pFlags&unix.POLLPRI != 0 {
		flags |= EVENT_PRI
	}
	if pFlags&unix.POLLOUT != 0 {
		flags |= EVENT_WRITE
	}
	if pFlags&unix.POLLHUP != 0 {
		flags |= EVENT_HUP
	}
	if pFlags&(unix.POLLERR|unix.POLLNVAL) != 0 {
		flags |= EVENT_ERROR
	}
	return flags
}
