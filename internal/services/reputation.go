package services

import (
	"port42/internal/models"

	"gorm.io/gorm"
)

// 声望动作
const (
	ActionResourceUpvoted      = "resource upvoted"
	ActionResourceUpvoteLost   = "resource upvote removed"
	ActionResourceDownvoted    = "resource downvoted"
	ActionResourceDownvoteLost = "resource downvote removed"
	ActionResourceVoteChanged  = "resource vote changed"
)

// ReputationPolicy 资源被投票时作者声望的变化值。这是产品策略，可以调整。
type ReputationPolicy struct {
	UpvoteGained   int
	UpvoteLost     int
	DownvoteGained int
	DownvoteLost   int
}

var DefaultReputationPolicy = ReputationPolicy{
	UpvoteGained:   5,
	UpvoteLost:     -5,
	DownvoteGained: -2,
	DownvoteLost:   2,
}

// Delta 比较投票前后的选择，返回作者声望的净变化
func (p ReputationPolicy) Delta(prev, next models.VoteChoice) int {
	if next == models.VoteRemove {
		next = ""
	}
	if prev == next {
		return 0
	}
	delta := 0
	switch prev {
	case models.VoteUp:
		delta += p.UpvoteLost
	case models.VoteDown:
		delta += p.DownvoteLost
	}
	switch next {
	case models.VoteUp:
		delta += p.UpvoteGained
	case models.VoteDown:
		delta += p.DownvoteGained
	}
	return delta
}

// ReputationDelta 使用默认策略计算声望变化
func ReputationDelta(prev, next models.VoteChoice) int {
	return DefaultReputationPolicy.Delta(prev, next)
}

func reputationAction(prev, next models.VoteChoice) string {
	switch {
	case prev == "" && next == models.VoteUp:
		return ActionResourceUpvoted
	case prev == "" && next == models.VoteDown:
		return ActionResourceDownvoted
	case prev == models.VoteUp && (next == "" || next == models.VoteRemove):
		return ActionResourceUpvoteLost
	case prev == models.VoteDown && (next == "" || next == models.VoteRemove):
		return ActionResourceDownvoteLost
	default:
		return ActionResourceVoteChanged
	}
}

// addReputation 在调用方事务内修改声望并记录明细，声望最低为 0
func addReputation(tx *gorm.DB, userID uint, amount int, action string) error {
	if amount == 0 {
		return nil
	}
	entry := models.ReputationLog{
		UserID: userID,
		Amount: amount,
		Action: action,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return err
	}

	return tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("reputation", gorm.Expr("CASE WHEN reputation + ? < 0 THEN 0 ELSE reputation + ? END", amount, amount)).
		Error
}
