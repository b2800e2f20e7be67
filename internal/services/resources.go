package services

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"unicode/utf8"

	"port42/internal/apperr"
	"port42/internal/models"
	"port42/internal/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ResourceSortNewest = "newest"
	ResourceSortTop    = "top"
	ResourceSortHot    = "hot"

	maxTags      = 10
	maxTagLength = 30
)

type SubmitResourceInput struct {
	UserID      uint
	CommunityID uint
	Title       string
	URL         string
	Description string
	Type        string
	Difficulty  string
	Tags        []string
}

type UpdateResourceInput struct {
	Title       *string
	Description *string
	Type        *string
	Difficulty  *string
	Tags        []string
}

type ResourceQuery struct {
	CommunitySlug string
	CommunityID   uint
	Sort          string
	Tag           string
	Q             string
	Page          int
	Limit         int
	ViewerID      uint
}

// ResourceView 带得分和当前用户投票的资源
type ResourceView struct {
	*models.Resource
	Score           int               `json:"score"`
	UserVote        models.VoteChoice `json:"userVote,omitempty"`
	DescriptionHTML string            `json:"descriptionHtml"`
}

func newResourceView(r *models.Resource, vote models.VoteChoice) ResourceView {
	return ResourceView{
		Resource:        r,
		Score:           r.Score(),
		UserVote:        vote,
		DescriptionHTML: utils.RenderMarkdown(r.Description),
	}
}

type ResourcePage struct {
	Items   []ResourceView `json:"items"`
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
	Total   int64          `json:"total"`
	HasMore bool           `json:"hasMore"`
}

type ResourceService struct {
	db      *gorm.DB
	log     *zap.SugaredLogger
	votes   *VoteService
	ranking *RankingService
	crawler *CrawlerService
}

func NewResourceService(db *gorm.DB, log *zap.SugaredLogger, votes *VoteService, ranking *RankingService, crawler *CrawlerService) *ResourceService {
	return &ResourceService{db: db, log: log, votes: votes, ranking: ranking, crawler: crawler}
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	if n < 5 || n > 200 {
		return "", apperr.InvalidArgument("title must be between 5 and 200 characters")
	}
	return title, nil
}

func validateDescription(desc string) (string, error) {
	desc = strings.TrimSpace(desc)
	if utf8.RuneCountInString(desc) > 1000 {
		return "", apperr.InvalidArgument("description must be at most 1000 characters")
	}
	return desc, nil
}

func validateLink(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperr.InvalidArgument("url must be a valid http(s) URL")
	}
	return u.String(), nil
}

func validateEnum(value, def string, allowed []string, field string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return def, nil
	}
	if !slices.Contains(allowed, value) {
		return "", apperr.InvalidArgument(fmt.Sprintf("%s must be one of %s", field, strings.Join(allowed, ", ")))
	}
	return value, nil
}

// normalizeTags 小写去重，最多 10 个
func normalizeTags(tags []string) (models.StringList, error) {
	out := models.StringList{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || slices.Contains(out, t) {
			continue
		}
		if utf8.RuneCountInString(t) > maxTagLength {
			return nil, apperr.InvalidArgument(fmt.Sprintf("tags must be at most %d characters", maxTagLength))
		}
		out = append(out, t)
	}
	if len(out) > maxTags {
		return nil, apperr.InvalidArgument(fmt.Sprintf("at most %d tags are allowed", maxTags))
	}
	return out, nil
}

// Submit 提交资源，同一 URL 只能提交一次
func (s *ResourceService) Submit(ctx context.Context, in SubmitResourceInput) (*models.Resource, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	link, err := validateLink(in.URL)
	if err != nil {
		return nil, err
	}
	desc, err := validateDescription(in.Description)
	if err != nil {
		return nil, err
	}
	typ, err := validateEnum(in.Type, "article", models.ResourceTypes, "type")
	if err != nil {
		return nil, err
	}
	difficulty, err := validateEnum(in.Difficulty, "beginner", models.ResourceDifficulties, "difficulty")
	if err != nil {
		return nil, err
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}
	if in.CommunityID == 0 {
		return nil, apperr.InvalidArgument("community is required")
	}

	resource := models.Resource{
		CommunityID: in.CommunityID,
		UserID:      in.UserID,
		Title:       title,
		URL:         link,
		Description: desc,
		Type:        typ,
		Difficulty:  difficulty,
		Tags:        tags,
		IsActive:    true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var community models.Community
		if err := tx.Select("id").Where("id = ?", in.CommunityID).Take(&community).Error; err != nil {
			return apperr.FromDB(err, "community not found")
		}

		var count int64
		if err := tx.Model(&models.Resource{}).Where("url = ?", link).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperr.Conflict("a resource with this URL already exists")
		}

		if err := tx.Omit(clause.Associations).Create(&resource).Error; err != nil {
			if apperr.IsUniqueViolation(err) {
				return apperr.Wrap(apperr.KindConflict, "a resource with this URL already exists", err)
			}
			return err
		}
		if err := tx.Model(&models.Community{}).Where("id = ?", in.CommunityID).
			UpdateColumn("resource_count", gorm.Expr("resource_count + ?", 1)).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", in.UserID).
			UpdateColumn("resources_submitted", gorm.Expr("resources_submitted + ?", 1)).Error
	})
	if err != nil {
		return nil, apperr.FromDB(err, "")
	}

	if s.crawler != nil {
		s.crawler.Enqueue(resource.ID, resource.URL)
	}
	if s.ranking != nil {
		s.ranking.ScheduleUpdate(resource.ID)
	}
	return &resource, nil
}

// Get 读取资源并增加浏览数
func (s *ResourceService) Get(ctx context.Context, id, viewerID uint) (*ResourceView, error) {
	var resource models.Resource
	err := readWithRetry(ctx, s.log, "resources.get", func() error {
		return apperr.FromDB(s.db.WithContext(ctx).
			Preload("User").Preload("Community").
			Where("id = ? AND is_active = ?", id, true).
			Take(&resource).Error, "resource not found")
	})
	if err != nil {
		return nil, err
	}

	// 浏览数失败不影响读取
	if err := s.db.WithContext(ctx).Model(&models.Resource{}).Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1)).Error; err != nil {
		s.log.Warnw("Increment views failed", "resource_id", id, "error", err)
	} else {
		resource.Views++
		if s.ranking != nil {
			s.ranking.ScheduleUpdate(id)
		}
	}

	view := newResourceView(&resource, "")
	if viewerID != 0 && s.votes != nil {
		choices, err := s.votes.UserChoices(ctx, models.EntityResource, []uint{id}, viewerID)
		if err != nil {
			return nil, err
		}
		view.UserVote = choices[id]
	}
	return &view, nil
}

func resourceOrder(sort string) (string, error) {
	switch sort {
	case "", ResourceSortNewest:
		return "resources.created_at DESC, resources.id DESC", nil
	case ResourceSortTop:
		return "(resources.upvotes - resources.downvotes) DESC, resources.created_at DESC, resources.id DESC", nil
	case ResourceSortHot:
		return "resources.hot_score DESC, resources.created_at DESC, resources.id DESC", nil
	}
	return "", apperr.InvalidArgument("sort must be newest, top or hot")
}

// List 按社区、标签、关键字过滤资源
func (s *ResourceService) List(ctx context.Context, q ResourceQuery) (*ResourcePage, error) {
	order, err := resourceOrder(q.Sort)
	if err != nil {
		return nil, err
	}
	page, limit := utils.Pagination(q.Page, q.Limit, 20, 100)
	out := &ResourcePage{Page: page, Limit: limit, Items: []ResourceView{}}

	var resources []models.Resource
	err = readWithRetry(ctx, s.log, "resources.list", func() error {
		db := s.db.WithContext(ctx)
		query := db.Model(&models.Resource{}).Where("resources.is_active = ?", true)

		communityID := q.CommunityID
		if q.CommunitySlug != "" {
			var community models.Community
			if err := db.Select("id").Where("slug = ?", q.CommunitySlug).Take(&community).Error; err != nil {
				return apperr.FromDB(err, "community not found")
			}
			communityID = community.ID
		}
		if communityID != 0 {
			query = query.Where("resources.community_id = ?", communityID)
		}
		if tag := strings.ToLower(strings.TrimSpace(q.Tag)); tag != "" {
			query = query.Where("resources.tags LIKE ?", fmt.Sprintf("%%%q%%", tag))
		}
		if kw := strings.ToLower(strings.TrimSpace(q.Q)); kw != "" {
			like := "%" + kw + "%"
			query = query.Where("LOWER(resources.title) LIKE ? OR LOWER(resources.description) LIKE ?", like, like)
		}

		if err := query.Count(&out.Total).Error; err != nil {
			return apperr.FromDB(err, "")
		}
		return apperr.FromDB(query.Preload("User").Preload("Community").
			Order(order).
			Offset((page - 1) * limit).
			Limit(limit).
			Find(&resources).Error, "")
	})
	if err != nil {
		return nil, err
	}
	out.HasMore = int64(page*limit) < out.Total

	var choices map[uint]models.VoteChoice
	if q.ViewerID != 0 && s.votes != nil && len(resources) > 0 {
		ids := make([]uint, len(resources))
		for i := range resources {
			ids[i] = resources[i].ID
		}
		if choices, err = s.votes.UserChoices(ctx, models.EntityResource, ids, q.ViewerID); err != nil {
			return nil, err
		}
	}
	for i := range resources {
		r := &resources[i]
		out.Items = append(out.Items, newResourceView(r, choices[r.ID]))
	}
	return out, nil
}

// Click 记录一次外链点击
func (s *ResourceService) Click(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.Resource{}).
		Where("id = ? AND is_active = ?", id, true).
		UpdateColumn("clicks", gorm.Expr("clicks + ?", 1))
	if res.Error != nil {
		return apperr.FromDB(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("resource not found")
	}
	if s.ranking != nil {
		s.ranking.ScheduleUpdate(id)
	}
	return nil
}

// Update 只有提交者可以修改，URL 不可修改
func (s *ResourceService) Update(ctx context.Context, id, userID uint, in UpdateResourceInput) (*models.Resource, error) {
	updates := map[string]interface{}{}
	if in.Title != nil {
		title, err := validateTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		updates["title"] = title
	}
	if in.Description != nil {
		desc, err := validateDescription(*in.Description)
		if err != nil {
			return nil, err
		}
		updates["description"] = desc
	}
	if in.Type != nil {
		typ, err := validateEnum(*in.Type, "article", models.ResourceTypes, "type")
		if err != nil {
			return nil, err
		}
		updates["type"] = typ
	}
	if in.Difficulty != nil {
		d, err := validateEnum(*in.Difficulty, "beginner", models.ResourceDifficulties, "difficulty")
		if err != nil {
			return nil, err
		}
		updates["difficulty"] = d
	}
	if in.Tags != nil {
		tags, err := normalizeTags(in.Tags)
		if err != nil {
			return nil, err
		}
		updates["tags"] = tags
	}

	var resource models.Resource
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND is_active = ?", id, true).Take(&resource).Error; err != nil {
			return apperr.FromDB(err, "resource not found")
		}
		if resource.UserID != userID {
			return apperr.PermissionDenied("only the submitter can edit this resource")
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.Resource{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Take(&resource).Error
	})
	if err != nil {
		return nil, apperr.FromDB(err, "")
	}
	return &resource, nil
}

// Delete 软删除，提交者或版主可操作
func (s *ResourceService) Delete(ctx context.Context, id, userID uint) error {
	return apperr.FromDB(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var resource models.Resource
		if err := tx.Select("id, user_id, community_id, is_active").Where("id = ?", id).Take(&resource).Error; err != nil {
			return apperr.FromDB(err, "resource not found")
		}
		if !resource.IsActive {
			return apperr.NotFound("resource not found")
		}
		if resource.UserID != userID {
			var requester models.User
			if err := tx.Select("id, role").Where("id = ?", userID).Take(&requester).Error; err != nil {
				return apperr.FromDB(err, "user not found")
			}
			if !requester.IsModerator() {
				return apperr.PermissionDenied("only the submitter or a moderator can delete this resource")
			}
		}

		res := tx.Model(&models.Resource{}).Where("id = ? AND is_active = ?", id, true).Update("is_active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}
		return tx.Model(&models.Community{}).Where("id = ?", resource.CommunityID).
			UpdateColumn("resource_count", gorm.Expr("CASE WHEN resource_count > 0 THEN resource_count - 1 ELSE 0 END")).Error
	}), "")
}

type ReportInput struct {
	ResourceID  uint
	UserID      uint
	Reason      string
	Description string
}

// Report 每个用户对同一资源只能举报一次
func (s *ResourceService) Report(ctx context.Context, in ReportInput) error {
	reason, err := validateEnum(in.Reason, "", models.ReportReasons, "reason")
	if err != nil {
		return err
	}
	if reason == "" {
		return apperr.InvalidArgument("reason is required")
	}
	desc := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(desc) > 500 {
		return apperr.InvalidArgument("description must be at most 500 characters")
	}

	return apperr.FromDB(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var resource models.Resource
		if err := tx.Select("id").Where("id = ? AND is_active = ?", in.ResourceID, true).Take(&resource).Error; err != nil {
			return apperr.FromDB(err, "resource not found")
		}

		report := models.Report{
			UserID:      in.UserID,
			ItemType:    models.EntityResource,
			ItemID:      in.ResourceID,
			Reason:      reason,
			Description: desc,
		}
		if err := tx.Create(&report).Error; err != nil {
			if apperr.IsUniqueViolation(err) {
				return apperr.Wrap(apperr.KindConflict, "you have already reported this resource", err)
			}
			return err
		}
		return tx.Model(&models.Resource{}).Where("id = ?", in.ResourceID).Update("is_reported", true).Error
	}), "")
}
