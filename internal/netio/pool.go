package netio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"manifest-watch/internal/alerterr"
	"manifest-watch/internal/logger"
	"manifest-watch/internal/models"
)

// LoadFunc 表示一次共享目录读取
type LoadFunc func() (interface{}, error)

// ResultFunc 接收放弃等待后才完成的迟到结果
type ResultFunc func(value interface{}, err error)

type result struct {
	value interface{}
	err   error
}

type job struct {
	run  LoadFunc
	done chan result
}

// Pool 在后台协程中执行共享目录 I/O 调用方等待结果但不超过给定超时
type Pool struct {
	jobs    chan job
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	executedTotal uint64
	timeoutTotal  uint64
}

// NewPool 创建后台读取池
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 2 // 默认2个读取协程
	}
	if queueSize <= 0 {
		queueSize = 16 // 默认队列大小16
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := &Pool{
		jobs:    make(chan job, queueSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	logger.Info("后台读取池已启动，读取协程数: %d, 队列大小: %d", workers, queueSize)
	return pool
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			value, err := j.run()
			atomic.AddUint64(&p.executedTotal, 1)
			j.done <- result{value: value, err: err}
		case <-p.ctx.Done():
			logger.Debug("后台读取协程 %d 已停止", id)
			return
		}
	}
}

// Execute 提交一次读取并等待结果 超时后放弃等待并返回存储不可用
// 迟到结果不会丢弃 由 late 回调接收 供调用方回填缓存
func (p *Pool) Execute(run LoadFunc, timeout time.Duration, late ResultFunc) (interface{}, error) {
	done := make(chan result, 1)
	select {
	case p.jobs <- job{run: run, done: done}:
	default:
		return nil, fmt.Errorf("%w: 共享读取队列已满", alerterr.ErrStorageUnavailable)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.value, res.err
	case <-timer.C:
		atomic.AddUint64(&p.timeoutTotal, 1)
		if late != nil {
			go p.deliverLate(done, late)
		}
		return nil, fmt.Errorf("%w: 共享读取超时（%v）", alerterr.ErrStorageUnavailable, timeout)
	}
}

// deliverLate 等待被放弃的读取完成并转交结果 池关闭时退出
func (p *Pool) deliverLate(done chan result, late ResultFunc) {
	select {
	case res := <-done:
		late(res.value, res.err)
	case <-p.ctx.Done():
	}
}

// Shutdown 停止全部读取协程并等待退出
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
	logger.Info("后台读取池已关闭")
}

// Stats 返回读取池运行指标
func (p *Pool) Stats() models.NetIOStats {
	return models.NetIOStats{
		Workers:       p.workers,
		Pending:       len(p.jobs),
		ExecutedTotal: atomic.LoadUint64(&p.executedTotal),
		TimeoutTotal:  atomic.LoadUint64(&p.timeoutTotal),
	}
}
