package mnet

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// InetAddress 监听/对端地址的值类型
type InetAddress struct {
	ip   net.IP
	port int
}

// NewInetAddress ip传空串时绑定所有接口
func NewInetAddress(ip string, port int) *InetAddress {
	if ip == "" {
		ip = "0.0.0.0"
	}
	return &InetAddress{
		ip:   net.ParseIP(ip),
		port: port,
	}
}

func NewInetAddressFromSockaddr(sa unix.Sockaddr) *InetAddress {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return &InetAddress{ip: net.IP(addr.Addr[:]), port: addr.Port}
	case *unix.SockaddrInet6:
		return &InetAddress{ip: net.IP(addr.Addr[:]), port: addr.Port}
	case *unix.SockaddrUnix:
		return &InetAddress{ip: nil, port: 0}
	default:
		return &InetAddress{}
	}
}

func (a *InetAddress) IP() string {
	if a.ip == nil {
		return ""
	}
	return a.ip.String()
}

func (a *InetAddress) Port() int {
	return a.port
}

func (a *InetAddress) IPPort() string {
	return net.JoinHostPort(a.IP(), strconv.Itoa(a.port))
}

// Sockaddr 转换成syscall需要的原生地址
func (a *InetAddress) Sockaddr() unix.Sockaddr {
	if ip4 := a.ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: a.port}
		copy(sa.Addr[:], ip4)
		return sa
	}
	sa := &unix.SockaddrInet6{Port: a.port}
	copy(sa.Addr[:], a.ip.To16())
	return sa
}

// 地址族，创建socket时要保持一致
func (a *InetAddress) family() int {
	if a.ip.To4() != nil {
		return unix.AF_INET
	}
	return unix.AF_INET6
}
