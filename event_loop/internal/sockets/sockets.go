//go:build linux || darwin || freebsd

// Package sockets 对宿主socket系统调用的一层薄封装
package sockets

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// CreateNonblocking 创建非阻塞、执行时关闭的TCP socket
func CreateNonblocking(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err = SetNonblockCloexec(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func SetNonblockCloexec(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	unix.CloseOnExec(fd)
	return nil
}

func Bind(fd int, sa unix.Sockaddr) error {
	return unix.Bind(fd, sa)
}

func Listen(fd int) error {
	return unix.Listen(fd, unix.SOMAXCONN)
}

// Accept 接受的连接同样置为非阻塞、执行时关闭
func Accept(fd int) (int, unix.Sockaddr, error) {
	connFd, sa, err := unix.Accept(fd)
	if err != nil {
		return -1, nil, err
	}
	if err = SetNonblockCloexec(connFd); err != nil {
		unix.Close(connFd)
		return -1, nil, err
	}
	return connFd, sa, nil
}

func GetLocalAddr(fd int) (unix.Sockaddr, error) {
	return unix.Getsockname(fd)
}

func GetPeerAddr(fd int) (unix.Sockaddr, error) {
	return unix.Getpeername(fd)
}

func ShutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}

func SetReuseAddr(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on))
}

func SetReusePort(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on))
}

func SetKeepAlive(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on))
}

func SetTCPNoDelay(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on))
}

// GetSocketError 取出并清除挂在socket上的错误码
func GetSocketError(fd int) int {
	optval, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return int(errno)
		}
		return -1
	}
	return optval
}

func Close(fd int) error {
	return unix.Close(fd)
}

func boolToInt(on bool) int {
	if on {
		return 1
	}
	return 0
}
