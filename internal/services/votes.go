package services

import (
	"context"
	"errors"
	"fmt"

	"port42/internal/apperr"
	"port42/internal/metrics"
	"port42/internal/models"
	"port42/internal/realtime"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoteResult 投票后的计数和当前用户的选择
type VoteResult struct {
	EntityType models.EntityType `json:"entityType"`
	EntityID   uint              `json:"entityId"`
	ResourceID uint              `json:"resourceId"`
	Upvotes    int               `json:"upvotes"`
	Downvotes  int               `json:"downvotes"`
	Score      int               `json:"score"`
	UserChoice models.VoteChoice `json:"userChoice"`
}

// VoteService 维护每个实体的投票计数和每用户唯一的投票记录。
// votes 表是投票者集合，实体上的 upvotes/downvotes 在同一事务中随之变更。
type VoteService struct {
	db       *gorm.DB
	log      *zap.SugaredLogger
	notifier realtime.Notifier
	ranking  *RankingService
	threads  *ThreadCache
	policy   ReputationPolicy
}

func NewVoteService(db *gorm.DB, log *zap.SugaredLogger, notifier realtime.Notifier, ranking *RankingService, threads *ThreadCache) *VoteService {
	if notifier == nil {
		notifier = realtime.Nop{}
	}
	return &VoteService{
		db:       db,
		log:      log,
		notifier: notifier,
		ranking:  ranking,
		threads:  threads,
		policy:   DefaultReputationPolicy,
	}
}

// WithPolicy 替换声望策略
func (s *VoteService) WithPolicy(p ReputationPolicy) *VoteService {
	s.policy = p
	return s
}

// votable 投票事务里需要的实体信息
type votable struct {
	ID         uint
	UserID     uint
	ResourceID uint
	IsActive   bool
	IsDeleted  bool
}

func entityTable(t models.EntityType) (string, bool) {
	switch t {
	case models.EntityResource:
		return "resources", true
	case models.EntityComment:
		return "comments", true
	}
	return "", false
}

func tallyColumn(choice models.VoteChoice) string {
	if choice == models.VoteDown {
		return "downvotes"
	}
	return "upvotes"
}

// ApplyVote 应用 up / down / remove。先删掉已有的投票，再按需插入新投票，
// 计数只通过原子列表达式修改。同一选择重复提交结果不变。
func (s *VoteService) ApplyVote(ctx context.Context, entityType models.EntityType, entityID, userID uint, choice models.VoteChoice) (*VoteResult, error) {
	table, ok := entityTable(entityType)
	if !ok {
		return nil, apperr.InvalidArgument("entityType must be resource or comment")
	}
	switch choice {
	case models.VoteUp, models.VoteDown, models.VoteRemove:
	default:
		return nil, apperr.InvalidArgument("vote must be up, down or remove")
	}
	if entityID == 0 {
		return nil, apperr.InvalidArgument("entityId is required")
	}
	if userID == 0 {
		return nil, apperr.Unauthenticated("login required")
	}

	result := &VoteResult{EntityType: entityType, EntityID: entityID}
	if choice != models.VoteRemove {
		result.UserChoice = choice
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁住实体行，同一实体的投票串行执行
		var target votable
		q := tx.Table(table).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", entityID)
		if entityType == models.EntityResource {
			q = q.Select("id, user_id, id AS resource_id, is_active")
		} else {
			q = q.Select("id, user_id, resource_id, is_deleted")
		}
		if err := q.Take(&target).Error; err != nil {
			return apperr.FromDB(err, fmt.Sprintf("%s not found", entityType))
		}
		if entityType == models.EntityResource && !target.IsActive {
			return apperr.NotFound("resource not found")
		}
		if entityType == models.EntityComment && target.IsDeleted {
			return apperr.InvalidArgument("cannot vote on a deleted comment")
		}
		result.ResourceID = target.ResourceID

		var existing models.Vote
		if err := tx.Where("entity_type = ? AND entity_id = ? AND user_id = ?", entityType, entityID, userID).
			Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		prev := existing.Choice

		if existing.ID != 0 {
			res := tx.Delete(&models.Vote{}, existing.ID)
			if res.Error != nil {
				return res.Error
			}
			// 只有真正删掉了记录才回退计数
			if res.RowsAffected == 1 {
				col := tallyColumn(prev)
				if err := tx.Table(table).Where("id = ?", entityID).
					UpdateColumn(col, gorm.Expr("CASE WHEN "+col+" > 0 THEN "+col+" - 1 ELSE 0 END")).Error; err != nil {
					return err
				}
			}
		}

		if choice != models.VoteRemove {
			vote := models.Vote{
				EntityType: entityType,
				EntityID:   entityID,
				UserID:     userID,
				Choice:     choice,
			}
			if err := tx.Create(&vote).Error; err != nil {
				if apperr.IsUniqueViolation(err) {
					return apperr.Wrap(apperr.KindConflict, "a concurrent vote from this user was recorded, retry", err)
				}
				return err
			}
			col := tallyColumn(choice)
			if err := tx.Table(table).Where("id = ?", entityID).
				UpdateColumn(col, gorm.Expr(col+" + ?", 1)).Error; err != nil {
				return err
			}
		}

		var tallies struct {
			Upvotes   int
			Downvotes int
		}
		if err := tx.Table(table).Select("upvotes, downvotes").Where("id = ?", entityID).Scan(&tallies).Error; err != nil {
			return err
		}
		result.Upvotes = tallies.Upvotes
		result.Downvotes = tallies.Downvotes
		result.Score = tallies.Upvotes - tallies.Downvotes

		// 只有资源投票影响作者声望，自己给自己投票不算
		if entityType == models.EntityResource && target.UserID != userID {
			if delta := s.policy.Delta(prev, choice); delta != 0 {
				if err := addReputation(tx, target.UserID, delta, reputationAction(prev, choice)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, "a concurrent vote from this user was recorded, retry", err)
		}
		return nil, apperr.FromDB(err, "")
	}

	metrics.VotesApplied.WithLabelValues(string(entityType), string(choice)).Inc()

	if entityType == models.EntityResource {
		if s.ranking != nil {
			s.ranking.ScheduleUpdate(result.ResourceID)
		}
	} else if s.threads != nil {
		s.threads.Invalidate(result.ResourceID)
	}

	s.notifier.Publish(ctx, result.ResourceID, realtime.EventVotesUpdated, realtime.VotesUpdated{
		EntityType: string(entityType),
		EntityID:   entityID,
		Upvotes:    result.Upvotes,
		Downvotes:  result.Downvotes,
		Score:      result.Score,
	}, realtime.OriginFrom(ctx))

	return result, nil
}

// UserChoices 返回 userID 对一组实体的投票选择，未投票的不在结果中
func (s *VoteService) UserChoices(ctx context.Context, entityType models.EntityType, ids []uint, userID uint) (map[uint]models.VoteChoice, error) {
	out := make(map[uint]models.VoteChoice, len(ids))
	if userID == 0 || len(ids) == 0 {
		return out, nil
	}

	var votes []models.Vote
	err := readWithRetry(ctx, s.log, "votes.user_choices", func() error {
		return apperr.FromDB(s.db.WithContext(ctx).
			Select("entity_id, choice").
			Where("entity_type = ? AND user_id = ? AND entity_id IN ?", entityType, userID, ids).
			Find(&votes).Error, "")
	})
	if err != nil {
		return nil, err
	}
	for _, v := range votes {
		out[v.EntityID] = v.Choice
	}
	return out, nil
}
