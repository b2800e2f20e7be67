package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"port42/internal/models"
	"port42/internal/utils"

	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxPageSize = 5 << 20

// CrawlerService 抓取资源链接的标题、摘要等元信息
type CrawlerService struct {
	client *http.Client
	db     *gorm.DB
	log    *zap.SugaredLogger
	queue  chan metadataJob
}

type metadataJob struct {
	resourceID uint
	link       string
}

func NewCrawlerService(db *gorm.DB, log *zap.SugaredLogger) *CrawlerService {
	return &CrawlerService{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		db:    db,
		log:   log,
		queue: make(chan metadataJob, 200),
	}
}

// FetchMetadata 请求页面并用 go-readability 提取元信息
func (s *CrawlerService) FetchMetadata(ctx context.Context, link string) (*models.ResourceMetadata, error) {
	pageURL, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("解析链接失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Port42Bot/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP 状态码: %d", resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxPageSize), pageURL)
	if err != nil {
		return nil, fmt.Errorf("解析页面失败: %w", err)
	}

	now := time.Now()
	return &models.ResourceMetadata{
		Title:       truncate(utils.StripHTML(article.Title), 300),
		Description: truncate(utils.StripHTML(article.Excerpt), 1000),
		Image:       article.Image,
		SiteName:    truncate(utils.StripHTML(article.SiteName), 200),
		Author:      truncate(utils.StripHTML(article.Byline), 200),
		FetchedAt:   &now,
	}, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Enqueue 提交异步抓取任务，队列满时直接放弃
func (s *CrawlerService) Enqueue(resourceID uint, link string) {
	select {
	case s.queue <- metadataJob{resourceID: resourceID, link: link}:
	default:
		s.log.Warnw("Metadata queue full, skipping", "resource_id", resourceID)
	}
}

// Start 启动 n 个抓取 worker
func (s *CrawlerService) Start(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-s.queue:
					s.process(ctx, job)
				}
			}
		}()
	}
}

func (s *CrawlerService) process(ctx context.Context, job metadataJob) {
	fetchCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	meta, err := s.FetchMetadata(fetchCtx, job.link)
	if err != nil {
		s.log.Debugw("Fetch metadata failed", "resource_id", job.resourceID, "url", job.link, "error", err)
		return
	}
	if err := s.SaveMetadata(ctx, job.resourceID, meta); err != nil {
		s.log.Warnw("Save metadata failed", "resource_id", job.resourceID, "error", err)
	}
}

// SaveMetadata 写入抓取结果
func (s *CrawlerService) SaveMetadata(ctx context.Context, resourceID uint, meta *models.ResourceMetadata) error {
	return s.db.WithContext(ctx).Model(&models.Resource{}).
		Where("id = ?", resourceID).
		Updates(map[string]interface{}{
			"meta_title":       meta.Title,
			"meta_description": meta.Description,
			"meta_image":       meta.Image,
			"meta_site_name":   meta.SiteName,
			"meta_author":      meta.Author,
			"meta_fetched_at":  meta.FetchedAt,
		}).Error
}
