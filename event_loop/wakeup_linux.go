//go:build linux

package mnet

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// 用eventfd在loop间传递唤醒通知，读端写端是同一个fd
func createWakeupFd() (readFd, writeFd int) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		logger.PanicFromString(fmt.Sprintf("eventfd error: %v", err))
	}
	return fd, fd
}

// 写入的值无关紧要，只是为了让阻塞在poll里的loop醒过来
func writeWakeup(fd int) {
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	n, err := unix.Write(fd, one[:])
	if n != 8 {
		logger.ErrorFromString(fmt.Sprintf("wakeup write %d bytes instead of 8: %v", n, err))
	}
}

func drainWakeup(fd int) {
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if n != 8 {
		logger.ErrorFromString(fmt.Sprintf("wakeup read %d bytes instead of 8: %v", n, err))
	}
}
