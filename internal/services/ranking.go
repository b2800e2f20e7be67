package services

import (
	"context"
	"sync"
	"time"

	"port42/internal/metrics"
	"port42/internal/models"
	"port42/internal/utils"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RankingService 异步计算并更新资源热度
type RankingService struct {
	db      *gorm.DB
	log     *zap.SugaredLogger
	queue   chan uint // 待更新的资源 ID 队列
	pending map[uint]bool
	mu      sync.Mutex
	now     func() time.Time
}

func NewRankingService(db *gorm.DB, log *zap.SugaredLogger) *RankingService {
	return &RankingService{
		db:      db,
		log:     log,
		queue:   make(chan uint, 1000), // 缓冲队列，防止阻塞
		pending: make(map[uint]bool),
		now:     time.Now,
	}
}

// Start 启动后台 worker，ctx 结束时退出
func (s *RankingService) Start(ctx context.Context) {
	go s.worker(ctx)
}

// ScheduleUpdate 将资源加入更新队列（异步）
// 使用去重机制避免短时间内重复计算同一资源
func (s *RankingService) ScheduleUpdate(resourceID uint) {
	if resourceID == 0 {
		return
	}
	s.mu.Lock()
	if s.pending[resourceID] {
		// 已在队列中，跳过
		s.mu.Unlock()
		return
	}
	s.pending[resourceID] = true
	s.mu.Unlock()

	// 非阻塞发送到队列
	select {
	case s.queue <- resourceID:
	default:
		// 队列满了，移除 pending 标记
		s.mu.Lock()
		delete(s.pending, resourceID)
		s.mu.Unlock()
		s.log.Warnw("Ranking queue full, skipping", "resource_id", resourceID)
	}
}

// worker 收集一批请求后统一处理
func (s *RankingService) worker(ctx context.Context) {
	batch := make([]uint, 0, 50)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			batch = append(batch, id)
			if len(batch) >= 50 {
				s.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.processBatch(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *RankingService) processBatch(ctx context.Context, ids []uint) {
	for _, id := range ids {
		if err := s.UpdateResourceScore(ctx, id); err != nil {
			s.log.Warnw("Update hot score failed", "resource_id", id, "error", err)
		}

		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}
}

// UpdateResourceScore 同步计算并写入单个资源的热度
func (s *RankingService) UpdateResourceScore(ctx context.Context, resourceID uint) error {
	var r models.Resource
	if err := s.db.WithContext(ctx).
		Select("id, upvotes, views, clicks, created_at").
		Where("id = ?", resourceID).
		Take(&r).Error; err != nil {
		return err
	}

	score := utils.PopularityScore(r.CreatedAt, s.now(), r.Upvotes, r.Views, r.Clicks)
	if err := s.db.WithContext(ctx).Model(&models.Resource{}).
		Where("id = ?", resourceID).
		UpdateColumn("hot_score", score).Error; err != nil {
		return err
	}
	metrics.RankingUpdates.Inc()
	return nil
}

// RefreshHot 重算最近 7 天的资源和热度最高的 30 个资源
func (s *RankingService) RefreshHot(ctx context.Context) int {
	processed := make(map[uint]bool)
	count := 0

	var recent []models.Resource
	s.db.WithContext(ctx).Select("id").
		Where("is_active = ? AND created_at >= ?", true, s.now().AddDate(0, 0, -7)).
		Find(&recent)

	var top []models.Resource
	s.db.WithContext(ctx).Select("id").
		Where("is_active = ?", true).
		Order("hot_score DESC").Limit(30).
		Find(&top)

	for _, r := range append(recent, top...) {
		if processed[r.ID] {
			continue
		}
		processed[r.ID] = true
		if err := s.UpdateResourceScore(ctx, r.ID); err != nil {
			s.log.Warnw("Update hot score failed", "resource_id", r.ID, "error", err)
			continue
		}
		count++
	}

	s.log.Infow("Hot scores refreshed", "count", count)
	return count
}

// StartCron 按 cron 表达式定时刷新热度，返回的 Cron 由调用方 Stop
func (s *RankingService) StartCron(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		s.RefreshHot(ctx)
	}); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
