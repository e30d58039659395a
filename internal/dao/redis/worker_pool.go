package redis

import (
	"sync"

	"go.uber.org/zap"
)

// workerPool 异步缓存任务池（纯闭包模式）
// 队列满时降级为同步执行，关闭后提交的任务同样同步执行
type workerPool struct {
	taskChan chan func()
	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
}

func newWorkerPool(workerNum, taskChanSize int) *workerPool {
	p := &workerPool{taskChan: make(chan func(), taskChanSize)}
	for i := 0; i < workerNum; i++ {
		p.wg.Add(1)
		go p.startWorker()
	}
	zap.L().Info("Cache Workers started", zap.Int("workers", workerNum), zap.Int("buffer", taskChanSize))
	return p
}

// startWorker 单个 Worker 消费循环，panic 后自动重启
func (p *workerPool) startWorker() {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("Cache Worker panic", zap.Any("recover", rec))
			go p.startWorker()
			return
		}
		p.wg.Done()
	}()

	for task := range p.taskChan {
		if task != nil {
			task()
		}
	}
}

// SubmitTask 提交异步任务
func (p *workerPool) SubmitTask(action func()) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		action()
		return
	}
	select {
	case p.taskChan <- action:
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		zap.L().Warn("Cache task channel full, executing synchronously")
		action()
	}
}

// Close 停止接收任务，等待队列中的任务执行完毕
func (p *workerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.taskChan)
	p.mu.Unlock()
	p.wg.Wait()
}
