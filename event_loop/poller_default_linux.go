//go:build linux

package mnet

import (
	"os"
)

// newDefaultPoller 挑选平台上最高效的后端
// 环境变量MNET_USE_POLL为非空值时强制使用poll(2)后端
func newDefaultPoller(loop *EventLoop) Poller {
	if os.Getenv(uSE_POLL_ENV) != "" {
		return NewPollPoller(loop)
	}
	return NewEpollPoller(loop)
}
