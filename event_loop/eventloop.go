package mnet

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

var (
	loopMu sync.Mutex
	// 每个goroutine至多拥有一个EventLoop
	// goroutine没有栈上的thread local，用gid做键的注册表代替
	loopInGoroutine = make(map[int64]*EventLoop)
)

// CurrentLoop 返回调用者goroutine上的EventLoop，没有则为nil
func CurrentLoop() *EventLoop {
	loopMu.Lock()
	defer loopMu.Unlock()
	return loopInGoroutine[currentGoroutineID()]
}

// EventLoop 单线程的事件循环
// poller、登记在本loop上的channel和就绪列表都只允许在属主
// goroutine上操作，唯一跨线程的入口是任务队列
type EventLoop struct {
	looping uint32
	quit    uint32
	// 正在执行队列中的任务
	callingPendingFunctors uint32

	goroutineId    int64
	pollReturnTime time.Time
	poller         Poller

	wakeupReadFd  int
	wakeupWriteFd int
	wakeupChannel *Channel

	activeChannels []*Channel

	// 任务队列，唯一需要加锁的共享状态
	mu      sync.Mutex
	pending *queue.Queue
}

// NewEventLoop 必须在将要运行Loop的goroutine上构造
// 同一goroutine上构造第二个loop是致命错误
func NewEventLoop() *EventLoop {
	gid := currentGoroutineID()
	loopMu.Lock()
	if other, ok := loopInGoroutine[gid]; ok {
		loopMu.Unlock()
		logger.PanicFromString(fmt.Sprintf("another EventLoop %p exists in goroutine %d", other, gid))
	}
	loop := &EventLoop{
		goroutineId:    gid,
		activeChannels: make([]*Channel, 0, iNIT_EVENT_LIST_SIZE),
		pending:        queue.New(),
	}
	loopInGoroutine[gid] = loop
	loopMu.Unlock()

	loop.poller = newDefaultPoller(loop)
	loop.wakeupReadFd, loop.wakeupWriteFd = createWakeupFd()
	loop.wakeupChannel = NewChannel(loop, loop.wakeupReadFd)
	loop.wakeupChannel.SetReadCallback(func(time.Time) {
		drainWakeup(loop.wakeupReadFd)
	})
	loop.wakeupChannel.EnableReading()
	return loop
}

// Loop 开启事件循环，直到Quit被观察到
// 每一轮: poll -> 分发就绪channel -> 执行跨线程任务
func (el *EventLoop) Loop() {
	atomic.StoreUint32(&el.looping, 1)
	atomic.StoreUint32(&el.quit, 0)
	logger.Debug(fmt.Sprintf("EventLoop %p start looping", el))

	for atomic.LoadUint32(&el.quit) == 0 {
		el.activeChannels = el.activeChannels[:0]
		el.pollReturnTime = el.poller.Poll(pOLL_TIME_MS, &el.activeChannels)
		for _, channel := range el.activeChannels {
			channel.HandleEvent(el.pollReturnTime)
		}
		el.doPendingFunctors()
	}
	// Quit之前已经排进队列的任务在退出前执行完，不会丢掉
	el.doPendingFunctors()

	logger.Debug(fmt.Sprintf("EventLoop %p stop looping", el))
	atomic.StoreUint32(&el.looping, 0)
	el.wakeupChannel.DisableAll()
	el.wakeupChannel.Remove()
	unix.Close(el.wakeupReadFd)
	if el.wakeupWriteFd != el.wakeupReadFd {
		unix.Close(el.wakeupWriteFd)
	}
	loopMu.Lock()
	delete(loopInGoroutine, el.goroutineId)
	loopMu.Unlock()
}

// Quit 在下一个循环边界退出
// 从别的线程调用时要唤醒可能阻塞在poll里的loop
func (el *EventLoop) Quit() {
	atomic.StoreUint32(&el.quit, 1)
	if !el.IsInLoopThread() {
		el.Wakeup()
	}
}

// RunInLoop 在属主线程上时就地执行，否则排队
func (el *EventLoop) RunInLoop(cb Functor) {
	if el.IsInLoopThread() {
		cb()
	} else {
		el.QueueInLoop(cb)
	}
}

// QueueInLoop 把任务加入队列
// 调用者不在属主线程，或者loop正忙着执行上一批任务时都要唤醒，
// 否则新任务会错过本轮然后卡在下一次poll里
func (el *EventLoop) QueueInLoop(cb Functor) {
	el.mu.Lock()
	el.pending.Add(cb)
	el.mu.Unlock()

	if !el.IsInLoopThread() || atomic.LoadUint32(&el.callingPendingFunctors) == 1 {
		el.Wakeup()
	}
}

// Wakeup 解除loop在poll上的阻塞
func (el *EventLoop) Wakeup() {
	writeWakeup(el.wakeupWriteFd)
}

func (el *EventLoop) UpdateChannel(channel *Channel) {
	el.assertInLoopThread()
	el.poller.UpdateChannel(channel)
}

func (el *EventLoop) RemoveChannel(channel *Channel) {
	el.assertInLoopThread()
	el.poller.RemoveChannel(channel)
}

func (el *EventLoop) HasChannel(channel *Channel) bool {
	return el.poller.HasChannel(channel)
}

func (el *EventLoop) IsInLoopThread() bool {
	return el.goroutineId == currentGoroutineID()
}

func (el *EventLoop) PollReturnTime() time.Time {
	return el.pollReturnTime
}

func (el *EventLoop) assertInLoopThread() {
	if !el.IsInLoopThread() {
		logger.PanicFromString(fmt.Sprintf(
			"EventLoop %p was created in goroutine %d, current goroutine %d",
			el, el.goroutineId, currentGoroutineID()))
	}
}

// 把队列在锁内整体换出来再执行
// 锁只护住交换本身，任务在锁外运行，任务里再排任务也不会死锁，
// 新任务留到下一轮
func (el *EventLoop) doPendingFunctors() {
	atomic.StoreUint32(&el.callingPendingFunctors, 1)

	el.mu.Lock()
	functors := make([]Functor, 0, el.pending.Length())
	for el.pending.Length() > 0 {
		functors = append(functors, el.pending.Remove().(Functor))
	}
	el.mu.Unlock()

	for _, functor := range functors {
		functor()
	}
	atomic.StoreUint32(&el.callingPendingFunctors, 0)
}
