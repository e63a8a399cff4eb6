package pool

import (
	"sync"

	"go.uber.org/zap"

	"outbox/backend/internal/monitoring"
)

// WorkerPool 协程池
//
// 限制单批次投递的并发度：同一批认领下来的消息由固定数量的
// 协程消化，避免一批大邮件把连接数打满。
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	wg         sync.WaitGroup
	metrics    *monitoring.Metrics
	log        *zap.Logger
}

// NewWorkerPool 创建协程池
func NewWorkerPool(maxWorkers, queueSize int, metrics *monitoring.Metrics, log *zap.Logger) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
		metrics:    metrics,
		log:        log,
	}
}

// Start 启动协程池
func (p *WorkerPool) Start() {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit 提交任务
//
// 队列已满时阻塞直到有空位。
func (p *WorkerPool) Submit(task func()) {
	p.taskQueue <- task
}

// Stop 停止协程池，等待在跑的任务结束
func (p *WorkerPool) Stop() {
	close(p.taskQueue)
	p.wg.Wait()
}

// worker 工作协程
//
// 消化任务直到队列关闭。停机时不允许半途退场：每个已提交的
// 任务都对应一条已认领的消息，必须执行到回写完成，否则提交方
// 等待的 WaitGroup 永远不会归零。
func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for task := range p.taskQueue {
		p.run(task)
	}
}

// run 执行任务并捕获 panic；一次投递崩溃不拖垮整个 worker
func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.PanicsTotal.Inc()
			p.log.Error("delivery task panicked", zap.Any("panic", r))
		}
	}()
	task()
}
