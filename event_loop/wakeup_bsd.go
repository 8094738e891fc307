//go:build darwin || freebsd

package mnet

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// 没有eventfd的平台用一对非阻塞管道实现同样的契约:
// 写一个字节唤醒，读端一次性排空
func createWakeupFd() (readFd, writeFd int) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		logger.PanicFromString(fmt.Sprintf("pipe error: %v", err))
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			logger.PanicFromString(fmt.Sprintf("pipe set nonblock error: %v", err))
		}
		unix.CloseOnExec(fd)
	}
	return fds[0], fds[1]
}

func writeWakeup(fd int) {
	one := [1]byte{1}
	n, err := unix.Write(fd, one[:])
	if n != 1 && err != unix.EAGAIN {
		logger.ErrorFromString(fmt.Sprintf("wakeup write error: %v", err))
	}
}

func drainWakeup(fd int) {
	var buf [64]byte
	for {
		n, _ := unix.Read(fd, buf[:])
		if n < len(buf) {
			return
		}
	}
}
