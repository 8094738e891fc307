package mnet

import (
	"sync"
)

// EventLoopThread 拥有一个线程和线程上唯一的EventLoop
// loop在新线程的栈上构造，地址发布出来之前StartLoop一直等着
type EventLoopThread struct {
	loop     *EventLoop
	mu       sync.Mutex
	cond     *sync.Cond
	thread   *Thread
	callback ThreadInitCallback
}

func NewEventLoopThread(cb ThreadInitCallback, name string) *EventLoopThread {
	t := &EventLoopThread{callback: cb}
	t.cond = sync.NewCond(&t.mu)
	t.thread = NewThread(t.threadFunc, name)
	return t
}

// StartLoop 启动线程并等到loop就绪后返回它
func (t *EventLoopThread) StartLoop() *EventLoop {
	t.thread.Start()

	t.mu.Lock()
	for t.loop == nil {
		t.cond.Wait()
	}
	loop := t.loop
	t.mu.Unlock()
	return loop
}

// Join 等待loop线程结束
func (t *EventLoopThread) Join() {
	t.thread.Join()
}

func (t *EventLoopThread) threadFunc() {
	loop := NewEventLoop()
	if t.callback != nil {
		t.callback(loop)
	}

	t.mu.Lock()
	t.loop = loop
	t.cond.Signal()
	t.mu.Unlock()

	loop.Loop()

	t.mu.Lock()
	t.loop = nil
	t.mu.Unlock()
}
