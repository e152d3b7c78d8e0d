// Package jobs 使用 cron 调度后台任务，例如过期分享清理和签署提醒。
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CaseForAI/backend/go/internal/metrics"
	"CaseForAI/backend/go/pkg/logger"

	"github.com/robfig/cron/v3"
)

// 任务名称
const (
	ExpireShares     = "jobs.expireShares"
	RemindSignatures = "jobs.remindSignatures"
)

// Func 执行一次任务，返回处理的记录数。错误可以是多个错误的聚合。
type Func func(ctx context.Context) (int, error)

// Job 是一个带 cron 表达式的任务。
type Job struct {
	Name    string
	Spec    string
	Run     Func
	Timeout time.Duration
}

// Scheduler 包装 cron.Cron，负责记录每次执行的结果。
type Scheduler struct {
	cron   *cron.Cron
	logger *logger.Logger
	jobs   map[string]Job
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler 创建调度器。cron 表达式使用标准 5 段格式，同时支持 @hourly 这类描述符。
func NewScheduler(log *logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: log,
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add 注册一个任务。
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has no run function", job.Name)
	}
	if job.Timeout <= 0 {
		job.Timeout = 10 * time.Minute
	}
	if _, err := s.cron.AddFunc(job.Spec, func() { _ = s.execute(s.ctx, job) }); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", job.Spec, job.Name, err)
	}
	s.mu.Lock()
	s.jobs[job.Name] = job
	s.mu.Unlock()
	return nil
}

// RunNow 立即执行一次指定任务，供 CLI 和测试使用。
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	return s.execute(ctx, job)
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	start := time.Now()
	n, err := job.Run(ctx)
	metrics.ObserveJob(job.Name, err)

	entry := s.logger.WithPayload(map[string]interface{}{
		"job":         job.Name,
		"processed":   n,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithErr(err).Error("Scheduled job finished with errors")
		return err
	}
	entry.Info("Scheduled job finished")
	return nil
}

// Start 启动调度。
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束，或者 ctx 到期。
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.cancel()
}
