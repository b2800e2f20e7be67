package utils

import (
	"math"
	"time"
)

type RankConfig struct {
	Gravity      float64 // 时间衰减指数 (0.8)
	WeightUpvote float64 // 1.0
	WeightView   float64 // 0.1
	WeightClick  float64 // 0.5
	MinAgeHours  float64 // 新资源按至少 1 小时计算
}

var DefaultRankConfig = RankConfig{
	Gravity:      0.8,
	WeightUpvote: 1.0,
	WeightView:   0.1,
	WeightClick:  0.5,
	MinAgeHours:  1,
}

// PopularityScore 资源热度：加权互动值除以时间衰减
func PopularityScore(createdAt, now time.Time, up, views, clicks int) float64 {
	hours := now.Sub(createdAt).Hours()
	if hours < DefaultRankConfig.MinAgeHours {
		hours = DefaultRankConfig.MinAgeHours
	}

	weightedSum := float64(up)*DefaultRankConfig.WeightUpvote +
		float64(views)*DefaultRankConfig.WeightView +
		float64(clicks)*DefaultRankConfig.WeightClick

	return weightedSum / math.Pow(hours, DefaultRankConfig.Gravity)
}
