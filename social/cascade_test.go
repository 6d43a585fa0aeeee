package social_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seb7887/lazarus/ghola"
	"github.com/seb7887/lazarus/sietch"
	"github.com/seb7887/lazarus/social"
)

var errUnavailable = errors.New("introspection error")

// faultyStore fails Find or UpdateWhere for one entity type.
type faultyStore struct {
	*sietch.InMemoryStore
	findType   string
	updateType string
}

func (s *faultyStore) Find(ctx context.Context, t *sietch.EntityType, filter *sietch.Filter) ([]sietch.Entity, error) {
	if t.Name == s.findType {
		return nil, errUnavailable
	}
	return s.InMemoryStore.Find(ctx, t, filter)
}

func (s *faultyStore) UpdateWhere(ctx context.Context, t *sietch.EntityType, filter *sietch.Filter, set map[string]any) (int64, error) {
	if t.Name == s.updateType {
		return 0, errUnavailable
	}
	return s.InMemoryStore.UpdateWhere(ctx, t, filter, set)
}

// faulty rebuilds the engine of e on top of fs.
func (e *env) faulty(fs *faultyStore) {
	fs.InMemoryStore = e.store
	e.engine = ghola.New(fs, ghola.WithClock(func() time.Time { return e.now }))
	social.Register(e.engine)
}

func TestDeleteUserProfile_LookupFailure(t *testing.T) {
	e := newEnv(t)
	users(e)
	other := post("p2", "u2")
	other.CommentCount = 1
	e.create(
		post("p1", "u1"),
		other,
		comment("c1", "p2", "u1"),
		reaction("x1", "u1", social.TypePost, "p2"),
	)
	e.faulty(&faultyStore{findType: social.TypePost})

	res, err := e.engine.CascadeSoftDelete(context.Background(), &social.UserProfile{Base: social.Base{ID: "u1"}})
	require.NoError(t, err)
	assert.Equal(t, ghola.OutcomeDeleted, res.Outcome)
	assert.Equal(t, 3, res.Count)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "cascade post", res.Skipped[0].Type)
	assert.ErrorIs(t, res.Skipped[0], ghola.ErrCascadeStep)

	assert.True(t, e.deleted(social.TypeUserProfile, "u1"))
	assert.False(t, e.deleted(social.TypePost, "p1"), "posts could not be looked up")
	assert.True(t, e.deleted(social.TypeComment, "c1"))
	assert.True(t, e.deleted(social.TypeReaction, "x1"))
	assert.Zero(t, e.get(social.TypePost, "p2").(*social.Post).CommentCount)
	e.checkTimestamps()
}

func TestDeleteComment_LookupFailure(t *testing.T) {
	e := newEnv(t)
	users(e)
	p := post("p1", "u1")
	p.CommentCount = 2
	e.create(
		p,
		comment("c1", "p1", "u1"),
		reply("r1", "p1", "c1"),
		reaction("x1", "u2", social.TypeComment, "c1"),
	)
	e.faulty(&faultyStore{findType: social.TypeComment})

	res, err := e.engine.CascadeSoftDelete(context.Background(), &social.Comment{Base: social.Base{ID: "c1"}})
	require.NoError(t, err)
	assert.Equal(t, ghola.OutcomeDeleted, res.Outcome)
	assert.Equal(t, 2, res.Count)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "delete replies to comment#c1", res.Skipped[0].Type)

	assert.True(t, e.deleted(social.TypeComment, "c1"))
	assert.False(t, e.deleted(social.TypeComment, "r1"))
	assert.True(t, e.deleted(social.TypeReaction, "x1"))
	assert.Equal(t, 1, e.get(social.TypePost, "p1").(*social.Post).CommentCount)
}

func TestDelete_CountersFollowFailedRelease(t *testing.T) {
	t.Run("hashtags", func(t *testing.T) {
		e := newEnv(t)
		users(e)
		e.create(
			post("p1", "u1"),
			&social.Hashtag{Base: social.Base{ID: "go"}, Name: "go", UsageCount: 1},
			&social.PostHashtag{Base: social.Base{ID: "ph1"}, PostID: "p1", HashtagID: "go"},
		)
		e.faulty(&faultyStore{updateType: social.TypePostHashtag})

		res, err := e.engine.CascadeSoftDelete(context.Background(), &social.Post{Base: social.Base{ID: "p1"}})
		require.NoError(t, err)
		assert.Equal(t, ghola.OutcomeDeleted, res.Outcome)
		require.Len(t, res.Skipped, 1)
		assert.Equal(t, "release hashtags", res.Skipped[0].Type)

		assert.True(t, e.deleted(social.TypePost, "p1"))
		assert.False(t, e.deleted(social.TypePostHashtag, "ph1"))
		assert.Equal(t, 1, e.get(social.TypeHashtag, "go").(*social.Hashtag).UsageCount)
	})

	t.Run("memberships", func(t *testing.T) {
		e := newEnv(t)
		users(e)
		e.create(
			&social.Community{Base: social.Base{ID: "k1"}, OwnerID: "u2", MemberCount: 2},
			&social.Membership{Base: social.Base{ID: "ms1"}, CommunityID: "k1", UserID: "u1"},
			&social.Membership{Base: social.Base{ID: "ms2"}, CommunityID: "k1", UserID: "u2"},
		)
		e.faulty(&faultyStore{updateType: social.TypeMembership})

		res, err := e.engine.CascadeSoftDelete(context.Background(), &social.UserProfile{Base: social.Base{ID: "u1"}})
		require.NoError(t, err)
		require.Len(t, res.Skipped, 1)
		assert.Equal(t, "leave communities", res.Skipped[0].Type)

		assert.False(t, e.deleted(social.TypeMembership, "ms1"))
		assert.Equal(t, 2, e.get(social.TypeCommunity, "k1").(*social.Community).MemberCount)
	})
}

func TestDeletePost_CommentAttachments(t *testing.T) {
	e := newEnv(t)
	users(e)
	p := post("p1", "u1")
	p.CommentCount = 2
	e.create(
		p,
		post("p2", "u2"),
		comment("c1", "p1", "u2"),
		reply("c2", "p1", "c1"),
		comment("c9", "p2", "u1"),
		reaction("x1", "u1", social.TypeComment, "c1"),
		reaction("x2", "u2", social.TypeComment, "c9"),
		&social.Mention{Base: social.Base{ID: "m1"}, CommentID: strPtr("c2"), MentionedUserID: "u1"},
		&social.Report{Base: social.Base{ID: "rp1"}, ReporterID: "u1", TargetType: social.TypeComment, TargetID: "c1", Reason: "spam"},
		&social.Attachment{Base: social.Base{ID: "a1"}, CommentID: strPtr("c2"), URL: "https://cdn.example/b.png"},
	)

	res, err := e.engine.CascadeSoftDelete(context.Background(), &social.Post{Base: social.Base{ID: "p1"}})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Count)
	assert.Empty(t, res.Skipped)
	for _, ref := range [][2]string{
		{social.TypeComment, "c1"}, {social.TypeComment, "c2"},
		{social.TypeReaction, "x1"}, {social.TypeMention, "m1"},
		{social.TypeReport, "rp1"}, {social.TypeAttachment, "a1"},
	} {
		assert.True(t, e.deleted(ref[0], ref[1]), "%s#%s", ref[0], ref[1])
	}
	assert.False(t, e.deleted(social.TypeComment, "c9"))
	assert.False(t, e.deleted(social.TypeReaction, "x2"))
	assert.Zero(t, e.get(social.TypePost, "p1").(*social.Post).CommentCount)
	e.checkTimestamps()
}
