package utils

import (
	"time"
)

// GetUserLevel 根据声望返回用户等级
func GetUserLevel(reputation int) (name string, icon string) {
	switch {
	case reputation < 100:
		return "Newbie", "🌱"
	case reputation < 500:
		return "Apprentice", "⚡"
	case reputation < 1000:
		return "Hacker", "💻"
	case reputation < 5000:
		return "Elite", "🔥"
	default:
		return "Legend", "👑"
	}
}

// GetDaysSinceJoined 计算注册天数
func GetDaysSinceJoined(createdAt time.Time) int {
	return int(time.Since(createdAt).Hours() / 24)
}
