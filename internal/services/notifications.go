package services

import (
	"context"
	"fmt"

	"port42/internal/apperr"
	"port42/internal/models"
	"port42/internal/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type NotificationService struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewNotificationService(db *gorm.DB, log *zap.SugaredLogger) *NotificationService {
	return &NotificationService{db: db, log: log}
}

type NotificationPage struct {
	Items       []models.Notification `json:"items"`
	UnreadCount int64                 `json:"unread_count"`
	Page        int                   `json:"page"`
	Limit       int                   `json:"limit"`
}

func (s *NotificationService) List(ctx context.Context, userID uint, page, limit int) (*NotificationPage, error) {
	page, limit = utils.Pagination(page, limit, 20, 100)
	out := &NotificationPage{Page: page, Limit: limit}

	err := readWithRetry(ctx, s.log, "notifications.list", func() error {
		q := s.db.WithContext(ctx)
		if err := q.Preload("Actor").
			Where("user_id = ?", userID).
			Order("created_at DESC, id DESC").
			Offset((page - 1) * limit).
			Limit(limit).
			Find(&out.Items).Error; err != nil {
			return apperr.FromDB(err, "")
		}
		return apperr.FromDB(q.Model(&models.Notification{}).
			Where("user_id = ? AND is_read = ?", userID, false).
			Count(&out.UnreadCount).Error, "")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, apperr.FromDB(err, "")
}

// MarkRead 只能标记自己的通知
func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return apperr.FromDB(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("notification not found")
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, apperr.FromDB(res.Error, "")
}

// notifyComment 在评论事务内创建通知：回复通知父评论作者，顶层评论通知资源作者，不通知自己
func notifyComment(tx *gorm.DB, comment *models.Comment, resource *models.Resource, parent *models.Comment) error {
	n := models.Notification{
		ActorID:    &comment.UserID,
		ResourceID: &resource.ID,
		CommentID:  &comment.ID,
	}
	if parent != nil {
		n.UserID = parent.UserID
		n.Type = models.NotificationTypeReplyComment
		n.Reason = fmt.Sprintf("replied to your comment on %q", resource.Title)
	} else {
		n.UserID = resource.UserID
		n.Type = models.NotificationTypeCommentResource
		n.Reason = fmt.Sprintf("commented on your resource %q", resource.Title)
	}
	if n.UserID == comment.UserID {
		return nil
	}
	return tx.Create(&n).Error
}

// Delete 删除自己的一条通知
func (s *NotificationService) Delete(ctx context.Context, id, userID uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Notification{})
	if res.Error != nil {
		return apperr.FromDB(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("notification not found")
	}
	return nil
}
