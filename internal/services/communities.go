package services

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"port42/internal/apperr"
	"port42/internal/models"
	"port42/internal/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type CreateCommunityInput struct {
	Name        string
	Description string
	Icon        string
	Color       string
	CreatorID   uint
}

type CommunityService struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewCommunityService(db *gorm.DB, log *zap.SugaredLogger) *CommunityService {
	return &CommunityService{db: db, log: log}
}

// Create 创建社区，slug 由名称生成，创建者自动加入
func (s *CommunityService) Create(ctx context.Context, in CreateCommunityInput) (*models.Community, error) {
	name := strings.TrimSpace(in.Name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 50 {
		return nil, apperr.InvalidArgument("name must be between 2 and 50 characters")
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" || utf8.RuneCountInString(desc) > 500 {
		return nil, apperr.InvalidArgument("description is required and must be at most 500 characters")
	}
	slug := utils.Slugify(name)
	if slug == "" {
		return nil, apperr.InvalidArgument("name must contain letters or digits")
	}

	community := models.Community{
		Name:        name,
		Slug:        slug,
		Description: desc,
		Icon:        strings.TrimSpace(in.Icon),
		Color:       strings.TrimSpace(in.Color),
		CreatedBy:   in.CreatorID,
		MemberCount: 1,
	}
	if community.Icon == "" {
		community.Icon = "🌐"
	}
	if community.Color == "" {
		community.Color = "#00ff41"
	} else if !colorPattern.MatchString(community.Color) {
		return nil, apperr.InvalidArgument("color must be a hex color like #00ff41")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Community{}).Where("name = ? OR slug = ?", name, slug).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperr.Conflict("a community with this name already exists")
		}
		if err := tx.Create(&community).Error; err != nil {
			return err
		}
		return tx.Create(&models.CommunityMember{CommunityID: community.ID, UserID: in.CreatorID}).Error
	})
	if err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, "a community with this name already exists", err)
		}
		return nil, apperr.FromDB(err, "")
	}
	return &community, nil
}

func (s *CommunityService) List(ctx context.Context) ([]models.Community, error) {
	var communities []models.Community
	err := readWithRetry(ctx, s.log, "communities.list", func() error {
		return apperr.FromDB(s.db.WithContext(ctx).
			Order("member_count DESC, name ASC").
			Find(&communities).Error, "")
	})
	return communities, err
}

func (s *CommunityService) GetBySlug(ctx context.Context, slug string) (*models.Community, error) {
	var community models.Community
	err := readWithRetry(ctx, s.log, "communities.get", func() error {
		return apperr.FromDB(s.db.WithContext(ctx).Where("slug = ?", slug).Take(&community).Error, "community not found")
	})
	if err != nil {
		return nil, err
	}
	return &community, nil
}

// IsMember 当前用户是否已加入
func (s *CommunityService) IsMember(ctx context.Context, communityID, userID uint) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.CommunityMember{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Count(&count).Error
	return count > 0, apperr.FromDB(err, "")
}

// ToggleMembership 已加入则退出，未加入则加入
func (s *CommunityService) ToggleMembership(ctx context.Context, communityID, userID uint) (joined bool, memberCount int, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var community models.Community
		if err := tx.Select("id").Where("id = ?", communityID).Take(&community).Error; err != nil {
			return apperr.FromDB(err, "community not found")
		}

		res := tx.Where("community_id = ? AND user_id = ?", communityID, userID).Delete(&models.CommunityMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			joined = false
			if err := tx.Model(&models.Community{}).Where("id = ?", communityID).
				UpdateColumn("member_count", gorm.Expr("CASE WHEN member_count > 0 THEN member_count - 1 ELSE 0 END")).Error; err != nil {
				return err
			}
		} else {
			joined = true
			if err := tx.Create(&models.CommunityMember{CommunityID: communityID, UserID: userID}).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Community{}).Where("id = ?", communityID).
				UpdateColumn("member_count", gorm.Expr("member_count + ?", 1)).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Community{}).Select("member_count").Where("id = ?", communityID).Scan(&memberCount).Error
	})
	if err != nil {
		return false, 0, apperr.FromDB(err, "")
	}
	return joined, memberCount, nil
}
