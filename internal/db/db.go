package db

import (
	"fmt"
	"time"

	"port42/internal/models"
	"port42/internal/utils"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 连接 Postgres，debug 时打开 SQL 日志
func Open(dsn string, debug bool) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
	if debug {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}

	database, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return database, nil
}

// Migrate 建表并初始化默认社区
func Migrate(database *gorm.DB, log *zap.SugaredLogger) error {
	err := database.AutoMigrate(
		&models.User{},
		&models.Community{},
		&models.CommunityMember{},
		&models.Resource{},
		&models.Comment{},
		&models.CommentEdit{},
		&models.Vote{},
		&models.Report{},
		&models.ReputationLog{},
		&models.Notification{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log.Info("Database migration completed")

	return seedCommunities(database, log)
}

func seedCommunities(database *gorm.DB, log *zap.SugaredLogger) error {
	// 检查是否已有社区数据
	var count int64
	if err := database.Model(&models.Community{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Debug("Communities already seeded, skipping")
		return nil
	}

	communities := []models.Community{
		{Name: "Cybersecurity", Description: "Security research, CTF writeups and defensive tooling", Icon: "🛡️", Color: "#ff0040"},
		{Name: "Web Development", Description: "Frontend, backend and everything HTTP", Icon: "🌐", Color: "#00ff41"},
		{Name: "Systems Programming", Description: "Compilers, kernels, databases and low level code", Icon: "⚙️", Color: "#00d4ff"},
		{Name: "Machine Learning", Description: "Models, papers and practical ML engineering", Icon: "🧠", Color: "#ff00ff"},
	}
	for i := range communities {
		communities[i].Slug = utils.Slugify(communities[i].Name)
		if err := database.Create(&communities[i]).Error; err != nil {
			log.Warnw("Failed to create community", "name", communities[i].Name, "error", err)
		}
	}
	log.Info("Initial communities created successfully")
	return nil
}
