package services

import (
	"context"
	"testing"

	"port42/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationReadFlow(t *testing.T) {
	f := newFixture(t)
	svc := NewNotificationService(f.db, nopLog())
	ctx := context.Background()
	owner := createUser(t, f.db, "")
	a := createUser(t, f.db, "")
	b := createUser(t, f.db, "")
	res := createResource(t, f.db, owner)

	for _, u := range []uint{a.ID, b.ID} {
		_, err := f.comments.CreateComment(ctx, CreateCommentInput{ResourceID: res.ID, AuthorID: u, Content: "hello"})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, owner.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.EqualValues(t, 2, page.UnreadCount)
	require.NotNil(t, page.Items[0].Actor)
	assert.Equal(t, b.ID, page.Items[0].Actor.ID)

	// 不能标记别人的通知
	err = svc.MarkRead(ctx, page.Items[0].ID, a.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, svc.MarkRead(ctx, page.Items[0].ID, owner.ID))
	unread, err := svc.UnreadCount(ctx, owner.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)

	n, err := svc.MarkAllRead(ctx, owner.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	unread, err = svc.UnreadCount(ctx, owner.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestNotificationDeleteOnlyOwn(t *testing.T) {
	f := newFixture(t)
	svc := NewNotificationService(f.db, nopLog())
	ctx := context.Background()
	owner := createUser(t, f.db, "")
	other := createUser(t, f.db, "")
	res := createResource(t, f.db, owner)

	_, err := f.comments.CreateComment(ctx, CreateCommentInput{ResourceID: res.ID, AuthorID: other.ID, Content: "hi"})
	require.NoError(t, err)
	page, err := svc.List(ctx, owner.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	err = svc.Delete(ctx, page.Items[0].ID, other.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, svc.Delete(ctx, page.Items[0].ID, owner.ID))
	page, err = svc.List(ctx, owner.ID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}
