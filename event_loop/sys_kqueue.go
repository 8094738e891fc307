//go:build darwin || freebsd

package mnet

import (
	"golang.org/x/sys/unix"
)

type kqueue struct {
	kqFd int
}

func newKqueue() (*kqueue, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)
	return &kqueue{kqFd: fd}, nil
}

func (k *kqueue) apply(changes []unix.Kevent_t) error {
	_, err := unix.Kevent(k.kqFd, changes, nil, nil)
	return err
}

func (k *kqueue) wait(events []unix.Kevent_t, msec int) (int, error) {
	ts := unix.NsecToTimespec(int64(msec) * 1e6)
	return unix.Kevent(k.kqFd, nil, events, &ts)
}

func (k *kqueue) close() error {
	return unix.Close(k.kqFd)
}
