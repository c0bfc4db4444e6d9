package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"settlecore/internal/config"
	"settlecore/internal/service"

	"gorm.io/gorm"
)

// SubsidyJob 周补贴发放与荣誉董事审核定时任务
//
// 每小时醒来一次，周一凌晨触发本周的发放。同一周只发一次，
// 以上次成功发放的时间为准
type SubsidyJob struct {
	subsidyService *service.SubsidyService
	stopCh         chan struct{}
	interval       time.Duration
	lastRunWeek    string
}

func NewSubsidyJob(db *gorm.DB, cfg *config.Config) *SubsidyJob {
	return &SubsidyJob{
		subsidyService: service.NewSubsidyService(db, cfg),
		stopCh:         make(chan struct{}),
		interval:       time.Hour,
	}
}

func (j *SubsidyJob) Start(ctx context.Context) {
	log.Println("[SubsidyJob] 周补贴任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SubsidyJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[SubsidyJob] 任务停止")
			return
		case <-ticker.C:
			j.runIfDue(ctx)
		}
	}
}

func (j *SubsidyJob) Stop() {
	close(j.stopCh)
}

func (j *SubsidyJob) runIfDue(ctx context.Context) {
	now := time.Now()
	if now.Weekday() != time.Monday || now.Hour() != 2 {
		return
	}
	j.RunOnce(ctx)
}

// RunOnce 立即执行一轮周补贴加荣誉董事审核，同一自然周内重复调用不生效
func (j *SubsidyJob) RunOnce(ctx context.Context) {
	year, week := time.Now().ISOWeek()
	weekKey := fmt.Sprintf("%d-W%02d", year, week)
	if j.lastRunWeek == weekKey {
		return
	}

	total, err := j.subsidyService.DistributeWeeklySubsidy(ctx)
	if err != nil {
		log.Printf("[SubsidyJob] 周补贴发放失败: %v", err)
		return
	}
	log.Printf("[SubsidyJob] 周补贴发放完成，合计 ¥%s", total.StringFixed(4))

	promoted, err := j.subsidyService.CheckDirectorPromotion(ctx)
	if err != nil {
		log.Printf("[SubsidyJob] 荣誉董事审核失败: %v", err)
		return
	}
	log.Printf("[SubsidyJob] 荣誉董事审核完成，晋升 %d 人", promoted)

	j.lastRunWeek = weekKey
}
