package job

import (
	"context"
	"log/slog"
	"time"

	"kidbank/internal/config"
	"kidbank/internal/infrastructure/lock"
	"kidbank/internal/model"
	"kidbank/internal/repository"
	"kidbank/internal/service"

	"gorm.io/gorm"
)

// PolicySweepJob 定期为所有被监护账户评估零花钱与利息。
// 它只是策略评估的一个外部调用方，多实例部署时靠 Redis 锁保证同一时刻只有一个实例在巡检。
type PolicySweepJob struct {
	accountRepo *repository.AccountRepository
	policy      *service.PolicyService
	lock        *lock.DistributedLock
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
}

type sweepStats struct {
	evaluated int
	paid      int
	failed    int
}

// NewPolicySweepJob locker 为 nil 时不加锁（单实例部署）
func NewPolicySweepJob(db *gorm.DB, cfg *config.Config, policy *service.PolicyService, locker *lock.DistributedLock) *PolicySweepJob {
	return &PolicySweepJob{
		accountRepo: repository.NewAccountRepository(db),
		policy:      policy,
		lock:        locker,
		stopCh:      make(chan struct{}),
		interval:    cfg.Job.PolicySweepInterval,
		batchSize:   cfg.Job.PolicySweepBatch,
	}
}

func (j *PolicySweepJob) Start(ctx context.Context) {
	slog.Info("策略巡检任务启动", "component", "sweep", "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("收到停止信号，任务退出", "component", "sweep")
			return
		case <-j.stopCh:
			slog.Info("任务停止", "component", "sweep")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *PolicySweepJob) Stop() {
	close(j.stopCh)
}

func (j *PolicySweepJob) sweep(ctx context.Context) sweepStats {
	var stats sweepStats

	if j.lock != nil {
		ok, err := j.lock.TryLock(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "获取巡检锁失败", "component", "sweep", "error", err)
			return stats
		}
		if !ok {
			slog.DebugContext(ctx, "其他实例正在巡检，本轮跳过", "component", "sweep")
			return stats
		}
		defer func() {
			if err := j.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				slog.WarnContext(ctx, "释放巡检锁失败", "component", "sweep", "error", err)
			}
		}()
	}

	afterID := ""
	for {
		ids, err := j.accountRepo.ListIDsByRole(ctx, model.RoleDependent, afterID, j.batchSize)
		if err != nil {
			slog.ErrorContext(ctx, "查询账户失败", "component", "sweep", "error", err)
			return stats
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			results, err := j.policy.Evaluate(ctx, id)
			stats.evaluated++
			if err != nil {
				stats.failed++
				slog.WarnContext(ctx, "策略评估失败", "component", "sweep", "account_id", id, "error", err)
			}
			for _, r := range results {
				if r.Outcome == service.OutcomePaid {
					stats.paid++
				}
			}
		}
		afterID = ids[len(ids)-1]

		if j.lock != nil {
			if err := j.lock.Refresh(ctx); err != nil {
				slog.WarnContext(ctx, "巡检锁已丢失，停止本轮巡检", "component", "sweep", "error", err)
				return stats
			}
		}
		if ctx.Err() != nil {
			return stats
		}
	}

	slog.InfoContext(ctx, "本轮巡检完成",
		"component", "sweep", "evaluated", stats.evaluated, "paid", stats.paid, "failed", stats.failed)
	return stats
}
