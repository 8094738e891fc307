package mnet

import (
	"fmt"
)

// EventLoopThreadPool 固定数量的工作loop池
// numThreads为0时base loop兼任唯一的工作loop
type EventLoopThreadPool struct {
	baseLoop   *EventLoop
	name       string
	started    bool
	numThreads int
	// 轮转下标
	next    int
	threads []*EventLoopThread
	loops   []*EventLoop
}

func NewEventLoopThreadPool(baseLoop *EventLoop, name string) *EventLoopThreadPool {
	return &EventLoopThreadPool{
		baseLoop: baseLoop,
		name:     name,
	}
}

func (p *EventLoopThreadPool) SetThreadNum(numThreads int) {
	p.numThreads = numThreads
}

// Start 构造并启动全部工作线程
// 初始化回调在每个工作loop的线程里各跑一次，最后在base loop上跑一次
func (p *EventLoopThreadPool) Start(cb ThreadInitCallback) {
	p.started = true

	for i := 0; i < p.numThreads; i++ {
		name := fmt.Sprintf("%s%d", p.name, i)
		t := NewEventLoopThread(cb, name)
		p.threads = append(p.threads, t)
		p.loops = append(p.loops, t.StartLoop())
	}
	if cb != nil {
		cb(p.baseLoop)
	}
}

// GetNextLoop 轮转地取下一个工作loop，没有工作线程时返回base loop
// 只会在base loop的线程里被调用
func (p *EventLoopThreadPool) GetNextLoop() *EventLoop {
	loop := p.baseLoop
	if len(p.loops) > 0 {
		loop = p.loops[p.next]
		p.next++
		if p.next >= len(p.loops) {
			p.next = 0
		}
	}
	return loop
}

func (p *EventLoopThreadPool) GetAllLoops() []*EventLoop {
	if len(p.loops) == 0 {
		return []*EventLoop{p.baseLoop}
	}
	return p.loops
}

func (p *EventLoopThreadPool) Started() bool { return p.started }
func (p *EventLoopThreadPool) Name() string  { return p.name }

// Stop 退出并收齐所有工作loop，base loop归属调用者，这里不碰
func (p *EventLoopThreadPool) Stop() {
	for _, loop := range p.loops {
		loop.Quit()
	}
	for _, t := range p.threads {
		t.Join()
	}
}
