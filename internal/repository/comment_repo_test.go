package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/testutil"
)

var ctx = context.Background()

func TestCommentRepository_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommentRepository(db)
	user := testutil.TestUser(t, db)

	comment := &model.Comment{
		UserID:      user.ID,
		ContentType: model.ContentPost,
		ContentID:   "post-1",
		Body:        "first",
	}
	require.NoError(t, repo.Create(ctx, comment))
	assert.NotZero(t, comment.ID)
	assert.False(t, comment.IsReply)

	parentID := comment.ID
	reply := &model.Comment{
		UserID:          user.ID,
		ContentType:     model.ContentPost,
		ContentID:       "post-1",
		ParentCommentID: &parentID,
		Body:            "reply",
	}
	require.NoError(t, repo.Create(ctx, reply))
	assert.True(t, reply.IsReply)
	assert.NotEqual(t, comment.ID, reply.ID)
}

func TestCommentRepository_GetByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommentRepository(db)
	user := testutil.TestUser(t, db, testutil.WithUsername("alice"))
	created := testutil.TestComment(t, db, user.ID, model.ContentEvent, "ev-1", "hello")

	found, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", found.Body)
	assert.Nil(t, found.User)

	withUser, err := repo.GetByIDWithUser(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, withUser.User)
	assert.Equal(t, "alice", withUser.User.Username)

	_, err = repo.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCommentRepository_GetByID_IncludesDeleted(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommentRepository(db)
	user := testutil.TestUser(t, db)
	created := testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "x", testutil.WithDeleted())

	found, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, found.IsDeleted)
}

func TestCommentRepository_UpdateBody(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommentRepository(db)
	user := testutil.TestUser(t, db)
	comment := testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "old")

	later := time.Now().Add(time.Minute)
	require.NoError(t, repo.UpdateBody(ctx, comment.ID, "new", later))

	found, err := repo.GetByID(ctx, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", found.Body)
	assert.WithinDuration(t, later, found.UpdatedAt, time.Second)
}

func TestCommentRepository_UpdateBody_Deleted(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommentRepository(db)
	user := testutil.TestUser(t, db)
	comment := testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "old", testutil.WithDeleted())

	err := repo.UpdateBody(ctx, comment.ID, "new", time.Now())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	found, _ := repo.GetByID(ctx, comment.ID)
	assert.Equal(t, "old", found.Body)
}

func TestCommentRepository_SoftDelete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommentRepository(db)
	user := testutil.TestUser(t, db)
	parent := testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "parent")
	reply := testutil.TestReply(t, db, user.ID, parent, "reply")

	require.NoError(t, repo.SoftDelete(ctx, parent.ID, time.Now()))

	found, err := repo.GetByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.True(t, found.IsDeleted)

	// 不级联
	r, err := repo.GetByID(ctx, reply.ID)
	require.NoError(t, err)
	assert.False(t, r.IsDeleted)

	// 第二次删除视为不存在
	assert.ErrorIs(t, repo.SoftDelete(ctx, parent.ID, time.Now()), gorm.ErrRecordNotFound)
}

func TestCommentRepository_CountByUserSince(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommentRepository(db)
	user := testutil.TestUser(t, db)
	other := testutil.TestUser(t, db)

	old := time.Now().Add(-10 * time.Minute)
	testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "old", testutil.WithCreatedAt(old))
	testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "recent 1")
	testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "recent 2")
	testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "deleted", testutil.WithDeleted())
	testutil.TestComment(t, db, other.ID, model.ContentPost, "p", "someone else")

	count, err := repo.CountByUserSince(ctx, user.ID, time.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCommentRepository_ListByContent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommentRepository(db)
	user := testutil.TestUser(t, db)

	c1 := testutil.TestComment(t, db, user.ID, model.ContentPost, "p1", "one")
	testutil.TestComment(t, db, user.ID, model.ContentPost, "p1", "two")
	c3 := testutil.TestComment(t, db, user.ID, model.ContentPost, "p1", "three")
	testutil.TestComment(t, db, user.ID, model.ContentPost, "p1", "gone", testutil.WithDeleted())
	testutil.TestReply(t, db, user.ID, c1, "reply")
	testutil.TestComment(t, db, user.ID, model.ContentPost, "p2", "other content")
	testutil.TestComment(t, db, user.ID, model.ContentEvent, "p1", "other type")

	comments, total, err := repo.ListByContent(ctx, "p1", model.ContentPost, 1, 10, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, comments, 3)
	assert.Equal(t, c3.ID, comments[0].ID, "newest first")
	assert.NotNil(t, comments[0].User)

	_, total, err = repo.ListByContent(ctx, "p1", model.ContentPost, 1, 10, true)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
}

func TestCommentRepository_ListByContent_Pagination(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommentRepository(db)
	user := testutil.TestUser(t, db)

	for i := 0; i < 5; i++ {
		testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "c")
	}

	page1, total, err := repo.ListByContent(ctx, "p", model.ContentPost, 1, 2, false)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, page1, 2)

	page3, _, err := repo.ListByContent(ctx, "p", model.ContentPost, 3, 2, false)
	require.NoError(t, err)
	assert.Len(t, page3, 1)
	assert.NotEqual(t, page1[0].ID, page3[0].ID)
}

func TestCommentRepository_ListThreadRoots(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommentRepository(db)
	user := testutil.TestUser(t, db)

	live := testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "live")
	orphanParent := testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "deleted with replies")
	testutil.TestReply(t, db, user.ID, orphanParent, "still here")
	deadParent := testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "deleted, replies deleted")
	testutil.TestReply(t, db, user.ID, deadParent, "also gone", testutil.WithDeleted())
	testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "deleted alone", testutil.WithDeleted())

	require.NoError(t, repo.SoftDelete(ctx, orphanParent.ID, time.Now()))
	require.NoError(t, repo.SoftDelete(ctx, deadParent.ID, time.Now()))

	roots, total, err := repo.ListThreadRoots(ctx, "p", model.ContentPost, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, roots, 2)

	ids := []int64{roots[0].ID, roots[1].ID}
	assert.ElementsMatch(t, []int64{live.ID, orphanParent.ID}, ids)
}

func TestCommentRepository_Replies(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommentRepository(db)
	user := testutil.TestUser(t, db)

	p1 := testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "p1")
	p2 := testutil.TestComment(t, db, user.ID, model.ContentPost, "p", "p2")
	r11 := testutil.TestReply(t, db, user.ID, p1, "1-1")
	testutil.TestReply(t, db, user.ID, p1, "1-2")
	testutil.TestReply(t, db, user.ID, p1, "1-3 deleted", testutil.WithDeleted())
	testutil.TestReply(t, db, user.ID, p2, "2-1")

	replies, err := repo.GetRepliesByParentIDs(ctx, []int64{p1.ID, p2.ID})
	require.NoError(t, err)
	assert.Len(t, replies, 3)

	empty, err := repo.GetRepliesByParentIDs(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, empty)

	page, total, err := repo.ListReplies(ctx, p1.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, page, 2)
	assert.Equal(t, r11.ID, page[0].ID, "oldest first")

	counts, err := repo.CountRepliesByParentIDs(ctx, []int64{p1.ID, p2.ID, 12345})
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[p1.ID])
	assert.Equal(t, int64(1), counts[p2.ID])
	assert.Equal(t, int64(0), counts[12345])
}

func TestCommentRepository_ListByUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommentRepository(db)
	user := testutil.TestUser(t, db)
	other := testutil.TestUser(t, db)

	testutil.TestComment(t, db, user.ID, model.ContentPost, "a", "1")
	testutil.TestComment(t, db, user.ID, model.ContentEvent, "b", "2")
	testutil.TestComment(t, db, user.ID, model.ContentEvent, "b", "3", testutil.WithDeleted())
	testutil.TestComment(t, db, other.ID, model.ContentPost, "a", "x")

	comments, total, err := repo.ListByUser(ctx, user.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, comments, 2)
}

func TestCommentRepository_ContentStats(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommentRepository(db)
	alice := testutil.TestUser(t, db)
	bob := testutil.TestUser(t, db)

	root := testutil.TestComment(t, db, alice.ID, model.ContentPost, "p", "root")
	testutil.TestComment(t, db, bob.ID, model.ContentPost, "p", "root 2")
	testutil.TestReply(t, db, bob.ID, root, "reply")
	testutil.TestComment(t, db, bob.ID, model.ContentPost, "p", "gone", testutil.WithDeleted())

	stats, err := repo.ContentStats(ctx, "p", model.ContentPost)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.TopLevel)
	assert.Equal(t, int64(2), stats.Participants)

	empty, err := repo.ContentStats(ctx, "nothing", model.ContentPost)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Total)
	assert.Equal(t, int64(0), empty.TopLevel)
}
