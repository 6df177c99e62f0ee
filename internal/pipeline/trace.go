package pipeline

import (
	"fmt"
	"sync"

	"evidence-rag-go/pkg/log"
)

// stepBuffer 是待推送步骤的队列长度，队列满时新步骤只记录不推送。
const stepBuffer = 32

// Trace 收集一次请求中流水线做了什么，作为响应中的 steps 返回。
// 并发检索分支会同时写入，因此需要加锁。
type Trace struct {
	mu      sync.Mutex
	steps   []string
	pending chan string
	done    chan struct{}
	closed  bool
	dropped int
}

// NewTrace 创建 Trace。onStep 可为 nil，非 nil 时步骤由单独的 goroutine 按追加顺序回调（用于流式推送进度）。
// Addf 从不等待回调；回调慢时队列写满，多出的步骤只保留在 Steps 中。
// 使用回调时必须调用 Close。
func NewTrace(onStep func(string)) *Trace {
	t := &Trace{}
	if onStep != nil {
		t.pending = make(chan string, stepBuffer)
		t.done = make(chan struct{})
		go func() {
			defer close(t.done)
			for step := range t.pending {
				onStep(step)
			}
		}()
	}
	return t
}

// Addf 追加一条步骤记录。
func (t *Trace) Addf(format string, args ...any) {
	if t == nil {
		return
	}
	step := fmt.Sprintf(format, args...)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, step)
	if t.pending == nil || t.closed {
		return
	}
	select {
	case t.pending <- step:
	default:
		t.dropped++
	}
}

// Close 停止接收新的推送，并等待已排队的步骤回调完毕。可重复调用。
func (t *Trace) Close() {
	if t == nil || t.pending == nil {
		return
	}
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.pending)
	}
	dropped := t.dropped
	t.mu.Unlock()

	<-t.done
	if dropped > 0 {
		log.Warnw("[Trace] 推送队列已满, 部分进度未推送", "dropped", dropped)
	}
}

// Dropped 返回因队列已满而未推送的步骤数。
func (t *Trace) Dropped() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Steps 返回当前所有步骤的副本。
func (t *Trace) Steps() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.steps...)
}
