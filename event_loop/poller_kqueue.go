//go:build darwin || freebsd

package mnet

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// KQueuePoller BSD平台的默认后端
// kqueue的读写是两个独立的filter，这里负责把通用掩码翻译成
// 对应的EV_ADD/EV_DELETE变更
type KQueuePoller struct {
	ownerLoop *EventLoop
	kq        *kqueue
	events    []unix.Kevent_t
	channels  channelMap
	// fd当前已登记进内核的掩码
	registered map[int]EventFlags
}

func NewKQueuePoller(loop *EventLoop) *KQueuePoller {
	kq, err := newKqueue()
	if err != nil {
		logger.PanicFromString(fmt.Sprintf("kqueue create error: %v", err))
	}
	return &KQueuePoller{
		ownerLoop:  loop,
		kq:         kq,
		events:     make([]unix.Kevent_t, iNIT_EVENT_LIST_SIZE),
		channels:   make(channelMap),
		registered: make(map[int]EventFlags),
	}
}

func (p *KQueuePoller) Poll(timeoutMs int, activeChannels *[]*Channel) time.Time {
	numEvents, err := p.kq.wait(p.events, timeoutMs)
	now := time.Now()
	if err != nil {
		if err != unix.EINTR {
			logger.ErrorFromString(fmt.Sprintf("KQueuePoller::Poll error: %v", err))
		}
		return now
	}
	if numEvents > 0 {
		p.fillActiveChannels(numEvents, activeChannels)
		if numEvents == len(p.events) {
			p.events = make([]unix.Kevent_t, len(p.events)*2)
		}
	}
	return now
}

// 同一个fd的读写filter会各占一个kevent，合并进一个channel的revents
func (p *KQueuePoller) fillActiveChannels(numEvents int, activeChannels *[]*Channel) {
	touched := make(map[int]struct{}, numEvents)
	for i := 0; i < numEvents; i++ {
		kev := &p.events[i]
		fd := int(kev.Ident)
		channel, ok := p.channels[fd]
		if !ok {
			continue
		}
		var flags EventFlags
		switch kev.Filter {
		case unix.EVFILT_READ:
			flags |= EVENT_READ
			if kev.Flags&unix.EV_EOF != 0 {
				flags |= EVENT_HUP
			}
		case unix.EVFILT_WRITE:
			flags |= EVENT_WRITE
		}
		if kev.Flags&unix.EV_ERROR != 0 {
			flags |= EVENT_ERROR
		}
		if _, seen := touched[fd]; seen {
			channel.setRevents(channel.revents | flags)
			continue
		}
		touched[fd] = struct{}{}
		channel.setRevents(flags)
		*activeChannels = append(*activeChannels, channel)
	}
}

func (p *KQueuePoller) UpdateChannel(channel *Channel) {
	index := channel.index
	if index == iNDEX_NEW || index == iNDEX_DELETED {
		if channel.IsNoneEvent() {
			return
		}
		if index == iNDEX_NEW {
			p.channels[channel.Fd()] = channel
		}
		channel.index = iNDEX_ADDED
		p.applyInterest(channel, EVENT_NONE, channel.Events())
	} else {
		old := p.registered[channel.Fd()]
		if channel.IsNoneEvent() {
			p.applyInterest(channel, old, EVENT_NONE)
			channel.index = iNDEX_DELETED
		} else {
			p.applyInterest(channel, old, channel.Events())
		}
	}
	p.registered[channel.Fd()] = channel.Events()
}

func (p *KQueuePoller) RemoveChannel(channel *Channel) {
	if channel.index == iNDEX_ADDED {
		p.applyInterest(channel, p.registered[channel.Fd()], EVENT_NONE)
	}
	delete(p.channels, channel.Fd())
	delete(p.registered, channel.Fd())
	channel.index = iNDEX_NEW
}

func (p *KQueuePoller) HasChannel(channel *Channel) bool {
	return p.channels.has(channel)
}

func (p *KQueuePoller) applyInterest(channel *Channel, old, want EventFlags) {
	fd := channel.Fd()
	changes := make([]unix.Kevent_t, 0, 2)
	oldRead := old&(EVENT_READ|EVENT_PRI) != 0
	wantRead := want&(EVENT_READ|EVENT_PRI) != 0
	if wantRead != oldRead {
		flags := uint16(unix.EV_ADD)
		if !wantRead {
			flags = unix.EV_DELETE
		}
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  flags,
		})
	}
	oldWrite := old&EVENT_WRITE != 0
	wantWrite := want&EVENT_WRITE != 0
	if wantWrite != oldWrite {
		flags := uint16(unix.EV_ADD)
		if !wantWrite {
			flags = unix.EV_DELETE
		}
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  flags,
		})
	}
	if len(changes) == 0 {
		return
	}
	if err := p.kq.apply(changes); err != nil {
		if want == EVENT_NONE {
			logger.ErrorFromString(fmt.Sprintf("kevent del fd=%d error: %v", fd, err))
		} else {
			logger.PanicFromString(fmt.Sprintf("kevent add/mod fd=%d error: %v", fd, err))
		}
	}
}
