package services

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"port42/internal/apperr"
	"port42/internal/metrics"
	"port42/internal/models"
	"port42/internal/realtime"
	"port42/internal/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MaxCommentLength    = 2000
	DefaultThreadLimit  = 50
	MaxThreadLimit      = 100
	SortNewest          = "newest"
	SortOldest          = "oldest"
	SortMostVoted       = "mostVoted"
	sortPopularAlias    = "popular"
	deletedCommentLabel = models.DeletedCommentContent
)

// CommentAuthor 评论里展示的作者信息
type CommentAuthor struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
	Reputation  int    `json:"reputation"`
}

// CommentNode 线程中的一条评论及其回复
type CommentNode struct {
	ID          uint              `json:"id"`
	ResourceID  uint              `json:"resourceId"`
	ParentID    *uint             `json:"parentId"`
	RootID      *uint             `json:"rootId"`
	Depth       int               `json:"depth"`
	Content     string            `json:"content"`
	ContentHTML string            `json:"contentHtml"`
	Author      CommentAuthor     `json:"author"`
	Upvotes     int               `json:"upvotes"`
	Downvotes   int               `json:"downvotes"`
	Score       int               `json:"score"`
	UserVote    models.VoteChoice `json:"userVote,omitempty"`
	IsEdited    bool              `json:"isEdited"`
	IsDeleted   bool              `json:"isDeleted"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Replies     []*CommentNode    `json:"replies"`
}

// ThreadPage 一页顶层评论，每条带完整回复树
type ThreadPage struct {
	Comments []*CommentNode `json:"comments"`
	Sort     string         `json:"sort"`
	Page     int            `json:"page"`
	Limit    int            `json:"limit"`
	Total    int64          `json:"total"`
	HasMore  bool           `json:"hasMore"`
}

type CreateCommentInput struct {
	ResourceID uint
	AuthorID   uint
	Content    string
	ParentID   *uint
}

type ThreadQuery struct {
	ResourceID uint
	Sort       string
	Page       int
	Limit      int
	ViewerID   uint
}

// CommentService 维护带深度上限的评论树
type CommentService struct {
	db       *gorm.DB
	log      *zap.SugaredLogger
	notifier realtime.Notifier
	votes    *VoteService
	ranking  *RankingService
	threads  *ThreadCache
}

func NewCommentService(db *gorm.DB, log *zap.SugaredLogger, notifier realtime.Notifier, votes *VoteService, ranking *RankingService, threads *ThreadCache) *CommentService {
	if notifier == nil {
		notifier = realtime.Nop{}
	}
	return &CommentService{
		db:       db,
		log:      log,
		notifier: notifier,
		votes:    votes,
		ranking:  ranking,
		threads:  threads,
	}
}

func normalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.InvalidArgument("content is required")
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return "", apperr.InvalidArgument(fmt.Sprintf("content must be at most %d characters", MaxCommentLength))
	}
	return content, nil
}

// childDepth 回复深度为父评论深度加一，最多 MaxCommentDepth
func childDepth(parent *models.Comment) int {
	if parent == nil {
		return 0
	}
	return min(parent.Depth+1, models.MaxCommentDepth)
}

// CreateComment 插入评论和计数更新在同一事务中，提交后推送 commentAdded
func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*CommentNode, error) {
	content, err := normalizeContent(in.Content)
	if err != nil {
		return nil, err
	}
	if in.ResourceID == 0 {
		return nil, apperr.InvalidArgument("resourceId is required")
	}

	comment := models.Comment{
		ResourceID: in.ResourceID,
		UserID:     in.AuthorID,
		Content:    content,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var resource models.Resource
		if err := tx.Select("id, user_id, title, is_active").Where("id = ?", in.ResourceID).Take(&resource).Error; err != nil {
			return apperr.FromDB(err, "resource not found")
		}
		if !resource.IsActive {
			return apperr.NotFound("resource not found")
		}

		var parent *models.Comment
		if in.ParentID != nil {
			parent = &models.Comment{}
			if err := tx.Where("id = ?", *in.ParentID).Take(parent).Error; err != nil {
				return apperr.FromDB(err, "parent comment not found")
			}
			if parent.ResourceID != in.ResourceID {
				return apperr.InvalidArgument("parent comment belongs to a different resource")
			}
			comment.ParentID = &parent.ID
			rootID := parent.ID
			if parent.RootID != nil {
				rootID = *parent.RootID
			}
			comment.RootID = &rootID
		}
		comment.Depth = childDepth(parent)

		if err := tx.Omit(clause.Associations).Create(&comment).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Resource{}).Where("id = ?", in.ResourceID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + ?", 1)).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", in.AuthorID).
			UpdateColumn("comments_count", gorm.Expr("comments_count + ?", 1)).Error; err != nil {
			return err
		}
		return notifyComment(tx, &comment, &resource, parent)
	})
	if err != nil {
		return nil, apperr.FromDB(err, "")
	}

	// 提交后再查作者，推送失败不影响结果
	if err := s.db.WithContext(ctx).Take(&comment.User, comment.UserID).Error; err != nil {
		s.log.Warnw("Load comment author failed", "comment_id", comment.ID, "error", err)
	}
	node := toNode(&comment)

	metrics.CommentsCreated.Inc()
	s.threads.Invalidate(in.ResourceID)
	if s.ranking != nil {
		s.ranking.ScheduleUpdate(in.ResourceID)
	}
	s.notifier.Publish(ctx, in.ResourceID, realtime.EventCommentAdded, realtime.CommentAdded{Comment: node}, realtime.OriginFrom(ctx))

	return node, nil
}

// EditComment 只有作者可以编辑，旧内容追加到编辑历史
func (s *CommentService) EditComment(ctx context.Context, commentID, editorID uint, content string) (*CommentNode, error) {
	content, err := normalizeContent(content)
	if err != nil {
		return nil, err
	}

	var comment models.Comment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", commentID).Take(&comment).Error; err != nil {
			return apperr.FromDB(err, "comment not found")
		}
		if comment.UserID != editorID {
			return apperr.PermissionDenied("only the author can edit this comment")
		}
		if comment.IsDeleted {
			return apperr.InvalidArgument("deleted comments cannot be edited")
		}
		if comment.Content == content {
			return nil
		}

		edit := models.CommentEdit{
			CommentID:    comment.ID,
			PriorContent: comment.Content,
			EditedAt:     time.Now(),
		}
		if err := tx.Create(&edit).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Comment{}).
			Where("id = ? AND is_deleted = ?", comment.ID, false).
			Updates(map[string]interface{}{"content": content, "is_edited": true})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidArgument("deleted comments cannot be edited")
		}
		comment.Content = content
		comment.IsEdited = true
		return nil
	})
	if err != nil {
		return nil, apperr.FromDB(err, "")
	}

	if err := s.db.WithContext(ctx).Take(&comment.User, comment.UserID).Error; err != nil {
		s.log.Warnw("Load comment author failed", "comment_id", comment.ID, "error", err)
	}
	s.threads.Invalidate(comment.ResourceID)
	return toNode(&comment), nil
}

// SoftDelete 作者或版主可删除。节点和回复保留，内容替换为 [deleted]，
// 资源评论数只减一次，重复删除不做任何事。
func (s *CommentService) SoftDelete(ctx context.Context, commentID, requesterID uint) error {
	var comment models.Comment
	deleted := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", commentID).Take(&comment).Error; err != nil {
			return apperr.FromDB(err, "comment not found")
		}
		if comment.UserID != requesterID {
			var requester models.User
			if err := tx.Select("id, role").Where("id = ?", requesterID).Take(&requester).Error; err != nil {
				return apperr.FromDB(err, "user not found")
			}
			if !requester.IsModerator() {
				return apperr.PermissionDenied("only the author or a moderator can delete this comment")
			}
		}
		if comment.IsDeleted {
			return nil
		}

		now := time.Now()
		res := tx.Model(&models.Comment{}).
			Where("id = ? AND is_deleted = ?", comment.ID, false).
			Updates(map[string]interface{}{
				"is_deleted": true,
				"deleted_at": now,
				"content":    deletedCommentLabel,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}
		deleted = true

		if err := tx.Model(&models.Resource{}).Where("id = ?", comment.ResourceID).
			UpdateColumn("comment_count", gorm.Expr("CASE WHEN comment_count > 0 THEN comment_count - 1 ELSE 0 END")).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", comment.UserID).
			UpdateColumn("comments_count", gorm.Expr("CASE WHEN comments_count > 0 THEN comments_count - 1 ELSE 0 END")).Error; err != nil {
			return err
		}
		// 编辑历史里有原文，一起清掉
		return tx.Where("comment_id = ?", comment.ID).Delete(&models.CommentEdit{}).Error
	})
	if err != nil {
		return apperr.FromDB(err, "")
	}

	if deleted {
		metrics.CommentsDeleted.Inc()
		s.threads.Invalidate(comment.ResourceID)
		if s.ranking != nil {
			s.ranking.ScheduleUpdate(comment.ResourceID)
		}
	}
	return nil
}

// EditHistory 按编辑时间排列的历史内容
func (s *CommentService) EditHistory(ctx context.Context, commentID uint) ([]models.CommentEdit, error) {
	var edits []models.CommentEdit
	err := readWithRetry(ctx, s.log, "comments.history", func() error {
		var comment models.Comment
		if err := s.db.WithContext(ctx).Select("id").Where("id = ?", commentID).Take(&comment).Error; err != nil {
			return apperr.FromDB(err, "comment not found")
		}
		return apperr.FromDB(s.db.WithContext(ctx).
			Where("comment_id = ?", commentID).
			Order("edited_at ASC, id ASC").
			Find(&edits).Error, "")
	})
	if err != nil {
		return nil, err
	}
	return edits, nil
}

func normalizeSort(sort string) (string, error) {
	switch sort {
	case "", SortNewest:
		return SortNewest, nil
	case SortOldest:
		return SortOldest, nil
	case SortMostVoted, sortPopularAlias:
		return SortMostVoted, nil
	}
	return "", apperr.InvalidArgument("sort must be newest, oldest or mostVoted")
}

func threadOrder(sort string) string {
	switch sort {
	case SortOldest:
		return "created_at ASC, id ASC"
	case SortMostVoted:
		return "upvotes DESC, created_at DESC, id DESC"
	default:
		return "created_at DESC, id DESC"
	}
}

// ListThread 顶层评论分页，回复按 root_id 一次查出后在内存里组装，
// 每一层回复都按时间正序
func (s *CommentService) ListThread(ctx context.Context, q ThreadQuery) (*ThreadPage, error) {
	sort, err := normalizeSort(q.Sort)
	if err != nil {
		return nil, err
	}
	page, limit := utils.Pagination(q.Page, q.Limit, DefaultThreadLimit, MaxThreadLimit)

	key := threadKey(q.ResourceID, sort, page, limit)
	cached, ok := s.threads.get(key)
	if !ok {
		ver := s.threads.version(q.ResourceID)
		cached, err = s.loadThread(ctx, q.ResourceID, sort, page, limit)
		if err != nil {
			return nil, err
		}
		s.threads.set(q.ResourceID, ver, key, cached)
	}

	out := cloneThreadPage(cached)
	if q.ViewerID != 0 && s.votes != nil {
		if err := s.annotate(ctx, out, q.ViewerID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *CommentService) loadThread(ctx context.Context, resourceID uint, sort string, page, limit int) (*ThreadPage, error) {
	out := &ThreadPage{Sort: sort, Page: page, Limit: limit, Comments: []*CommentNode{}}

	err := readWithRetry(ctx, s.log, "comments.thread", func() error {
		db := s.db.WithContext(ctx)

		var resource models.Resource
		if err := db.Select("id, is_active").Where("id = ?", resourceID).Take(&resource).Error; err != nil {
			return apperr.FromDB(err, "resource not found")
		}
		if !resource.IsActive {
			return apperr.NotFound("resource not found")
		}

		if err := db.Model(&models.Comment{}).
			Where("resource_id = ? AND parent_id IS NULL", resourceID).
			Count(&out.Total).Error; err != nil {
			return apperr.FromDB(err, "")
		}

		var roots []models.Comment
		if err := db.Preload("User").
			Where("resource_id = ? AND parent_id IS NULL", resourceID).
			Order(threadOrder(sort)).
			Offset((page - 1) * limit).
			Limit(limit).
			Find(&roots).Error; err != nil {
			return apperr.FromDB(err, "")
		}
		out.HasMore = int64(page*limit) < out.Total
		if len(roots) == 0 {
			return nil
		}

		rootIDs := make([]uint, len(roots))
		for i := range roots {
			rootIDs[i] = roots[i].ID
		}
		var replies []models.Comment
		if err := db.Preload("User").
			Where("root_id IN ?", rootIDs).
			Order("created_at ASC, id ASC").
			Find(&replies).Error; err != nil {
			return apperr.FromDB(err, "")
		}

		out.Comments = assembleThread(roots, replies)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// assembleThread 回复按创建顺序排列，父节点总在子节点之前
func assembleThread(roots, replies []models.Comment) []*CommentNode {
	byID := make(map[uint]*CommentNode, len(roots)+len(replies))
	out := make([]*CommentNode, 0, len(roots))
	for i := range roots {
		n := toNode(&roots[i])
		byID[n.ID] = n
		out = append(out, n)
	}
	for i := range replies {
		n := toNode(&replies[i])
		byID[n.ID] = n

		var parent *CommentNode
		if n.ParentID != nil {
			parent = byID[*n.ParentID]
		}
		if parent == nil && n.RootID != nil {
			parent = byID[*n.RootID]
		}
		if parent != nil {
			parent.Replies = append(parent.Replies, n)
		}
	}
	return out
}

func toNode(c *models.Comment) *CommentNode {
	n := &CommentNode{
		ID:         c.ID,
		ResourceID: c.ResourceID,
		ParentID:   c.ParentID,
		RootID:     c.RootID,
		Depth:      c.Depth,
		Content:    c.Content,
		Author: CommentAuthor{
			ID:          c.User.ID,
			Username:    c.User.Username,
			DisplayName: c.User.DisplayName,
			Avatar:      c.User.Avatar,
			Reputation:  c.User.Reputation,
		},
		Upvotes:   c.Upvotes,
		Downvotes: c.Downvotes,
		Score:     c.Score(),
		IsEdited:  c.IsEdited,
		IsDeleted: c.IsDeleted,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Replies:   []*CommentNode{},
	}
	if c.IsDeleted {
		n.Content = deletedCommentLabel
		n.ContentHTML = ""
	} else {
		n.ContentHTML = utils.RenderMarkdown(c.Content)
	}
	return n
}

func cloneNode(n *CommentNode) *CommentNode {
	cp := *n
	cp.Replies = make([]*CommentNode, len(n.Replies))
	for i, r := range n.Replies {
		cp.Replies[i] = cloneNode(r)
	}
	return &cp
}

func cloneThreadPage(p *ThreadPage) *ThreadPage {
	cp := *p
	cp.Comments = make([]*CommentNode, len(p.Comments))
	for i, n := range p.Comments {
		cp.Comments[i] = cloneNode(n)
	}
	return &cp
}

func walk(nodes []*CommentNode, fn func(*CommentNode)) {
	for _, n := range nodes {
		fn(n)
		walk(n.Replies, fn)
	}
}

// annotate 填充当前用户对每条评论的投票
func (s *CommentService) annotate(ctx context.Context, page *ThreadPage, viewerID uint) error {
	var ids []uint
	walk(page.Comments, func(n *CommentNode) { ids = append(ids, n.ID) })
	if len(ids) == 0 {
		return nil
	}
	choices, err := s.votes.UserChoices(ctx, models.EntityComment, ids, viewerID)
	if err != nil {
		return err
	}
	walk(page.Comments, func(n *CommentNode) { n.UserVote = choices[n.ID] })
	return nil
}

// Threads 按页惰性遍历顶层评论，消费到下一页时才去查询
func (s *CommentService) Threads(ctx context.Context, resourceID uint, sort string, pageSize int) iter.Seq2[*CommentNode, error] {
	return func(yield func(*CommentNode, error) bool) {
		for page := 1; ; page++ {
			p, err := s.ListThread(ctx, ThreadQuery{ResourceID: resourceID, Sort: sort, Page: page, Limit: pageSize})
			if err != nil {
				yield(nil, err)
				return
			}
			for _, n := range p.Comments {
				if !yield(n, nil) {
					return
				}
			}
			if !p.HasMore || len(p.Comments) == 0 {
				return
			}
		}
	}
}
