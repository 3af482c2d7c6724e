package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"k8s.io/klog/v2"
)

// -----------------------------
// Job 定义
// -----------------------------

// JobFunc 一个独立的扇出任务，必须遵守 ctx 的截止时间
type JobFunc func(ctx context.Context) error

type Job struct {
	Key        string
	Timeout    time.Duration
	MaxRetries int
	Fn         JobFunc
}

// JobResult 单个任务的终态
type JobResult struct {
	Key      string
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// TimedOut 任务是否因截止时间结束
func (r JobResult) TimedOut() bool {
	return errors.Is(r.Err, context.DeadlineExceeded)
}

// -----------------------------
// 错误定义
// -----------------------------
var (
	ErrOrchestratorStopped = errors.New("orchestrator is stopped")
	ErrJobPanicked         = errors.New("job panicked")
)

const (
	defaultJobTimeout = 30 * time.Second
	maxBackoff        = 2 * time.Second
)

// -----------------------------
// Orchestrator
// -----------------------------

// Orchestrator 在 ants 协程池上并发执行一组互不依赖的任务
type Orchestrator struct {
	pool *ants.Pool

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	activeCancellations map[string]context.CancelFunc
	cancelMutex         sync.Mutex
}

// NewOrchestrator 创建编排器
func NewOrchestrator(maxWorkers int) (*Orchestrator, error) {
	if maxWorkers <= 0 {
		maxWorkers = 16
	}
	ctx, cancel := context.WithCancel(context.Background())

	pool, err := ants.NewPool(maxWorkers,
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(1000),
		ants.WithExpiryDuration(5*time.Minute),
	)
	if err != nil {
		cancel()
		klog.Errorf("ants pool initialization failed: %v", err)
		return nil, err
	}

	return &Orchestrator{
		pool:                pool,
		activeCancellations: make(map[string]context.CancelFunc),
		ctx:                 ctx,
		cancel:              cancel,
	}, nil
}

// -----------------------------
// 停止
// -----------------------------
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		klog.V(6).Infof("Orchestrator stopping...")
		o.cancel()

		runningTasks := o.pool.Running()
		if runningTasks > 0 {
			klog.V(6).Infof("Waiting for %d running jobs to complete", runningTasks)
		}
		timeout := 10 * time.Second
		if err := o.pool.ReleaseTimeout(timeout); err != nil {
			klog.Warningf("Timeout after %v: some running jobs may be forced to stop", timeout)
		}
		klog.V(6).Infof("Orchestrator stopped completely")
	})
}

// -----------------------------
// 扇出执行
// -----------------------------

// Run 并发执行所有任务并等待每个任务结束或超时
// 结果顺序与 jobs 一致；单个任务失败不影响其它任务
func (o *Orchestrator) Run(ctx context.Context, jobs []Job) []JobResult {
	results := make([]JobResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}
	select {
	case <-o.ctx.Done():
		for i, job := range jobs {
			results[i] = JobResult{Key: job.Key, Err: ErrOrchestratorStopped}
		}
		return results
	default:
	}

	type slot struct {
		ctx    context.Context
		cancel context.CancelFunc
		done   chan JobResult
	}
	start := time.Now()
	slots := make([]slot, len(jobs))
	for i, job := range jobs {
		timeout := job.Timeout
		if timeout <= 0 {
			timeout = defaultJobTimeout
		}
		jobCtx, cancel := context.WithTimeout(ctx, timeout)
		slots[i] = slot{ctx: jobCtx, cancel: cancel, done: make(chan JobResult, 1)}

		job := job
		done := slots[i].done
		if err := o.pool.Submit(func() {
			done <- o.executeJob(jobCtx, job)
		}); err != nil {
			klog.Errorf("提交任务到协程池失败: key=%s, err=%v", job.Key, err)
			done <- JobResult{Key: job.Key, Err: fmt.Errorf("submit job %s: %w", job.Key, err)}
		}
	}

	for i, job := range jobs {
		results[i] = wait(job.Key, slots[i].ctx, slots[i].done, start)
		slots[i].cancel()
	}
	return results
}

// wait 已完成的结果优先于超时
func wait(key string, ctx context.Context, done <-chan JobResult, start time.Time) JobResult {
	select {
	case r := <-done:
		return r
	default:
	}
	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		// 任务没有及时响应取消，按超时处理，协程在池中自行结束
		klog.Warningf("任务超时: key=%s", key)
		return JobResult{Key: key, Err: ctx.Err(), Attempts: 1, Elapsed: time.Since(start)}
	}
}

// executeJob 统一控制重试与 panic 防护
func (o *Orchestrator) executeJob(ctx context.Context, job Job) (result JobResult) {
	start := time.Now()
	result.Key = job.Key

	runCtx, manualCancel := context.WithCancel(ctx)
	defer manualCancel()
	stopOnShutdown := context.AfterFunc(o.ctx, manualCancel)
	defer stopOnShutdown()

	o.registerCancel(job.Key, manualCancel)
	defer o.unregisterCancel(job.Key)

	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Job panic recovered: key=%s, err=%v", job.Key, r)
			result.Err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
		result.Elapsed = time.Since(start)
	}()

	for i := 0; i <= job.MaxRetries; i++ {
		result.Attempts = i + 1
		err := job.Fn(runCtx)
		if err == nil {
			result.Err = nil
			klog.V(6).Infof("Job completed: key=%s, attempts=%d", job.Key, result.Attempts)
			return result
		}
		result.Err = err
		if i == job.MaxRetries {
			break
		}

		backoff := 100 * time.Millisecond << i
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		klog.Warningf("任务重试失败: key=%s, retry=%d/%d, err=%v, backoff=%v",
			job.Key, i+1, job.MaxRetries, err, backoff)

		select {
		case <-runCtx.Done():
			klog.Warningf("任务被取消或超时: key=%s", job.Key)
			return result
		case <-time.After(backoff):
		}
	}
	return result
}

// -----------------------------
// 取消任务
// -----------------------------
func (o *Orchestrator) registerCancel(key string, cancel context.CancelFunc) {
	o.cancelMutex.Lock()
	defer o.cancelMutex.Unlock()
	o.activeCancellations[key] = cancel
}

func (o *Orchestrator) unregisterCancel(key string) {
	o.cancelMutex.Lock()
	defer o.cancelMutex.Unlock()
	delete(o.activeCancellations, key)
}

// Cancel 取消正在执行的任务
func (o *Orchestrator) Cancel(key string) bool {
	o.cancelMutex.Lock()
	cancel, ok := o.activeCancellations[key]
	o.cancelMutex.Unlock()
	if !ok {
		return false
	}
	klog.V(6).Infof("Cancelling job: key=%s", key)
	cancel()
	return true
}

// -----------------------------
// Status
// -----------------------------
type Status struct {
	ActiveWorkers int `json:"active_workers"`
	Capacity      int `json:"capacity"`
	ActiveJobs    int `json:"active_jobs"`
}

func (o *Orchestrator) GetStatus() *Status {
	o.cancelMutex.Lock()
	active := len(o.activeCancellations)
	o.cancelMutex.Unlock()
	return &Status{
		ActiveWorkers: o.pool.Running(),
		Capacity:      o.pool.Cap(),
		ActiveJobs:    active,
	}
}
