package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"port42/internal/db"
	"port42/internal/models"
	"port42/internal/realtime"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "port42.db")
	database, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(database, zap.NewNop().Sugar()))
	return database
}

func nopLog() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

type recordedEvent struct {
	resourceID uint
	event      realtime.EventType
	payload    any
	origin     string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeNotifier) Publish(_ context.Context, resourceID uint, event realtime.EventType, payload any, origin string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{resourceID, event, payload, origin})
}

func (f *fakeNotifier) all() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.events...)
}

type fixture struct {
	db        *gorm.DB
	notifier  *fakeNotifier
	threads   *ThreadCache
	votes     *VoteService
	comments  *CommentService
	resources *ResourceService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := newTestDB(t)
	notifier := &fakeNotifier{}
	threads, err := NewThreadCache(100, time.Minute)
	require.NoError(t, err)

	votes := NewVoteService(database, nopLog(), notifier, nil, threads)
	return &fixture{
		db:        database,
		notifier:  notifier,
		threads:   threads,
		votes:     votes,
		comments:  NewCommentService(database, nopLog(), notifier, votes, nil, threads),
		resources: NewResourceService(database, nopLog(), votes, nil, nil),
	}
}

var userSeq int

func createUser(t *testing.T, database *gorm.DB, role string) *models.User {
	t.Helper()
	userSeq++
	u := models.User{
		Username: fmt.Sprintf("user%d", userSeq),
		Email:    fmt.Sprintf("user%d@example.com", userSeq),
		Password: "x",
		Role:     role,
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	require.NoError(t, database.Create(&u).Error)
	return &u
}

var resourceSeq int

func createResource(t *testing.T, database *gorm.DB, owner *models.User) *models.Resource {
	t.Helper()
	resourceSeq++
	var community models.Community
	require.NoError(t, database.Order("id").First(&community).Error)
	r := models.Resource{
		CommunityID: community.ID,
		UserID:      owner.ID,
		Title:       fmt.Sprintf("Resource number %d", resourceSeq),
		URL:         fmt.Sprintf("https://example.com/r/%d", resourceSeq),
		Tags:        models.StringList{"go"},
		IsActive:    true,
	}
	require.NoError(t, database.Omit("User", "Community").Create(&r).Error)
	return &r
}

func reloadResource(t *testing.T, database *gorm.DB, id uint) models.Resource {
	t.Helper()
	var r models.Resource
	require.NoError(t, database.Where("id = ?", id).Take(&r).Error)
	return r
}

func reloadUser(t *testing.T, database *gorm.DB, id uint) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, database.Where("id = ?", id).Take(&u).Error)
	return u
}
