//go:build linux

package mnet

import (
	"golang.org/x/sys/unix"
)

const (
	eV_READ  = unix.EPOLLIN
	eV_PRI   = unix.EPOLLPRI
	eV_WRITE = unix.EPOLLOUT
	eV_HUP   = unix.EPOLLHUP
	eV_ERROR = unix.EPOLLERR
)

type epoll struct {
	epFd int
}

func newEpoll() (*epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epoll{epFd: fd}, nil
}

func (e *epoll) addEvent(fd int, events uint32) error {
	return unix.EpollCtl(e.epFd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
}

func (e *epoll) modEvent(fd int, events uint32) error {
	return unix.EpollCtl(e.epFd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
}

func (e *epoll) delEvent(fd int) error {
	return unix.EpollCtl(e.epFd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{
		Fd: int32(fd),
	})
}

func (e *epoll) wait(events []unix.EpollEvent, msec int) (int, error) {
	return unix.EpollWait(e.epFd, events, msec)
}

func (e *epoll) close() error {
	return unix.Close(e.epFd)
}

func eventToEpoll(flags EventFlags) uint32 {
	var epFlags uint32
	if flags&EVENT_READ != 0 {
		epFlags |= eV_READ
	}
	if flags&EVENT_PRI != 0 {
		epFlags |= eV_PRI
	}
	if flags&EVENT_WRITE != 0 {
		epFlags |= eV_WRITE
	}
	return epFlags
}

func epollToEvent(epFlags uint32) EventFlags {
	var flags EventFlags
	if epFlags&eV_READ != 0 {
		flags |= EVENT_READ
	}
	if epFlags&eV_PRI != 0 {
		flags |= EVENT_PRI
	}
	if epFlags&eV_WRITE != 0 {
		flags |= EVENT_WRITE
	}
	if epFlags&eV_HUP != 0 {
		flags |= EVENT_HUP
	}
	if epFlags&eV_ERROR != 0 {
		flags |= EVENT_ERROR
	}
	return flags
}
