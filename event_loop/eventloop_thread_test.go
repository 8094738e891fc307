package mnet

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestThreadStartCapturesTid(t *testing.T) {
	ran := make(chan struct{})
	th := NewThread(func() {
		close(ran)
	}, "")
	th.Start()
	if th.Tid() == 0 {
		t.Fatal("Start should block until tid is observed")
	}
	if !strings.HasPrefix(th.Name(), "Thread") {
		t.Fatalf("unnamed thread got name %q", th.Name())
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("thread func not executed")
	}
	th.Join()
}

func TestEventLoopThread(t *testing.T) {
	var initLoop *EventLoop
	var mu sync.Mutex
	lt := NewEventLoopThread(func(loop *EventLoop) {
		mu.Lock()
		initLoop = loop
		mu.Unlock()
	}, "test-loop")

	loop := lt.StartLoop()
	if loop == nil {
		t.Fatal("StartLoop returned nil")
	}
	mu.Lock()
	if initLoop != loop {
		t.Fatal("init callback should run on the created loop")
	}
	mu.Unlock()

	inLoop := make(chan bool, 1)
	loop.RunInLoop(func() {
		inLoop <- loop.IsInLoopThread()
	})
	select {
	case ok := <-inLoop:
		if !ok {
			t.Fatal("task should run on the loop thread")
		}
	case <-time.After(time.Second * 3):
		t.Fatal("task not executed")
	}

	loop.Quit()
	lt.Join()
}

func TestThreadPoolRoundRobin(t *testing.T) {
	base := startLoopInBackground()
	defer base.Quit()

	pool := NewEventLoopThreadPool(base, "pool")
	pool.SetThreadNum(3)

	var mu sync.Mutex
	var initLoops []*EventLoop
	pool.Start(func(loop *EventLoop) {
		mu.Lock()
		initLoops = append(initLoops, loop)
		mu.Unlock()
	})

	// 初始化回调: 3个工作loop各一次，最后base loop一次
	mu.Lock()
	if len(initLoops) != 4 || initLoops[3] != base {
		mu.Unlock()
		t.Fatalf("thread init callback ran %d times", len(initLoops))
	}
	mu.Unlock()

	loops := pool.GetAllLoops()
	if len(loops) != 3 {
		t.Fatalf("pool should own 3 loops, got %d", len(loops))
	}
	for i := 0; i < 6; i++ {
		if pool.GetNextLoop() != loops[i%3] {
			t.Fatalf("round robin broken at %d", i)
		}
	}
	pool.Stop()
}

func TestThreadPoolZeroThreads(t *testing.T) {
	base := startLoopInBackground()
	defer base.Quit()

	pool := NewEventLoopThreadPool(base, "pool")
	called := 0
	pool.Start(func(loop *EventLoop) {
		called++
		if loop != base {
			t.Error("init callback should see the base loop")
		}
	})
	if called != 1 {
		t.Fatalf("init callback ran %d times", called)
	}
	if pool.GetNextLoop() != base {
		t.Fatal("zero threads should fall back to the base loop")
	}
	all := pool.GetAllLoops()
	if len(all) != 1 || all[0] != base {
		t.Fatal("GetAllLoops should contain the base loop")
	}
	pool.Stop()
}
