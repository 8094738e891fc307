package mnet

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
)

var numCreatedThread int32

// Thread 工作线程的生命周期包装
// Start会阻塞到新goroutine的id被观察到为止
type Thread struct {
	started bool
	joined  bool
	gid     int64
	fn      func()
	name    string
	done    chan struct{}
}

func NewThread(fn func(), name string) *Thread {
	n := atomic.AddInt32(&numCreatedThread, 1)
	if name == "" {
		name = fmt.Sprintf("Thread%d", n)
	}
	return &Thread{
		fn:   fn,
		name: name,
		done: make(chan struct{}),
	}
}

func (t *Thread) Start() {
	t.started = true
	ready := make(chan struct{})
	go func() {
		// 事件循环要独占一个OS线程
		runtime.LockOSThread()
		t.gid = currentGoroutineID()
		close(ready)
		t.fn()
		close(t.done)
	}()
	<-ready
}

func (t *Thread) Join() {
	t.joined = true
	<-t.done
}

func (t *Thread) Started() bool { return t.started }
func (t *Thread) Tid() int64    { return t.gid }
func (t *Thread) Name() string  { return t.name }

func NumCreatedThreads() int32 {
	return atomic.LoadInt32(&numCreatedThread)
}

// 从runtime.Stack的首行"goroutine N [...]"里解析出当前goroutine id
func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		logger.PanicFromString("unexpected runtime.Stack header")
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		logger.PanicFromErr(err)
	}
	return id
}
