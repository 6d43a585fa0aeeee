package social

import (
	"context"

	"github.com/seb7887/lazarus/ghola"
	"github.com/seb7887/lazarus/sietch"
)

// Register installs the delete cascades of the social model on engine, and
// the restore hooks that give back what those cascades take from counters.
func Register(engine *ghola.Engine) {
	engine.RegisterCascade(TypePost, deletePost)
	engine.RegisterCascade(TypeComment, deleteComment)
	engine.RegisterCascade(TypeUserProfile, deleteUserProfile)
	engine.RegisterCascade(TypeCommunity, deleteCommunity)

	engine.OnRestore(TypePost, func(ctx context.Context, store sietch.Store, e sietch.Entity) error {
		p := e.(*Post)
		if p.CommunityID == nil {
			return nil
		}
		return increment(ctx, store, TypeCommunity, *p.CommunityID, "post_count", 1)
	})
	engine.OnRestore(TypeComment, func(ctx context.Context, store sietch.Store, e sietch.Entity) error {
		return increment(ctx, store, TypePost, e.(*Comment).PostID, "comment_count", 1)
	})
	engine.OnRestore(TypePostHashtag, func(ctx context.Context, store sietch.Store, e sietch.Entity) error {
		return increment(ctx, store, TypeHashtag, e.(*PostHashtag).HashtagID, "usage_count", 1)
	})
	engine.OnRestore(TypeMembership, func(ctx context.Context, store sietch.Store, e sietch.Entity) error {
		return increment(ctx, store, TypeCommunity, e.(*Membership).CommunityID, "member_count", 1)
	})
}

func increment(ctx context.Context, store sietch.Store, typeName, id, column string, delta int64) error {
	t, ok := store.Registry().Lookup(typeName)
	if !ok {
		return sietch.ErrUnknownEntityType
	}
	return store.Increment(ctx, t, id, column, delta)
}

func eq(field string, value any) *sietch.FilterBuilder {
	return sietch.NewFilter().Eq(field, value)
}

func target(typeName, id string) *sietch.FilterBuilder {
	return sietch.NewFilter().Eq("target_type", typeName).Eq("target_id", id)
}

func in(field string, ids []string) *sietch.FilterBuilder {
	return sietch.NewFilter().Where(field, sietch.OpIn, ids)
}

func idsOf(records []sietch.Entity) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.GetID()
	}
	return ids
}

func deletePost(ctx context.Context, d *ghola.Deletion, e sietch.Entity) error {
	p := e.(*Post)
	deleted, err := d.MarkDeleted(ctx, p)
	if err != nil || !deleted {
		return err
	}

	comments := deletePostComments(ctx, d, p.ID)
	d.Adjust(ctx, TypePost, p.ID, "comment_count", -int64(comments))

	d.SoftDeleteWhere(ctx, TypeReaction, target(TypePost, p.ID))
	deleteAndRelease(ctx, d, "release hashtags", TypePostHashtag, eq("post_id", p.ID), func(ctx context.Context, link sietch.Entity) {
		d.Adjust(ctx, TypeHashtag, link.(*PostHashtag).HashtagID, "usage_count", -1)
	})
	d.SoftDeleteWhere(ctx, TypeMention, eq("post_id", p.ID))
	deleteShares(ctx, d, eq("post_id", p.ID))
	d.SoftDeleteWhere(ctx, TypeReport, target(TypePost, p.ID))
	d.SoftDeleteWhere(ctx, TypeAttachment, eq("post_id", p.ID))

	if p.CommunityID != nil {
		d.Adjust(ctx, TypeCommunity, *p.CommunityID, "post_count", -1)
	}
	return nil
}

// deletePostComments bulk-deletes the live comments of a post, replies
// included, with the records attached to them. It returns the number of
// comments deleted.
func deletePostComments(ctx context.Context, d *ghola.Deletion, postID string) int {
	var n int
	_ = d.Step(ctx, "delete comments", func(ctx context.Context) error {
		comments, err := d.FindLive(ctx, TypeComment, eq("post_id", postID))
		if err != nil || len(comments) == 0 {
			return err
		}
		ids := idsOf(comments)
		deleted, err := d.MarkDeletedWhere(ctx, TypeComment, in("id", ids))
		if err != nil {
			return err
		}
		deleteCommentAttachments(ctx, d, ids)
		n = deleted
		return nil
	})
	return n
}

// deleteCommentAttachments deletes the reactions, mentions, reports and
// attachments of the given comments.
func deleteCommentAttachments(ctx context.Context, d *ghola.Deletion, ids []string) {
	d.SoftDeleteWhere(ctx, TypeReaction, in("target_id", ids).Eq("target_type", TypeComment))
	d.SoftDeleteWhere(ctx, TypeMention, in("comment_id", ids))
	d.SoftDeleteWhere(ctx, TypeReport, in("target_id", ids).Eq("target_type", TypeComment))
	d.SoftDeleteWhere(ctx, TypeAttachment, in("comment_id", ids))
}

// deleteAndRelease deletes the live typeName rows matching filter in one
// step, then calls release for each of them. Nothing is released unless
// the delete succeeds.
func deleteAndRelease(ctx context.Context, d *ghola.Deletion, step, typeName string, filter *sietch.FilterBuilder, release func(ctx context.Context, e sietch.Entity)) {
	_ = d.Step(ctx, step, func(ctx context.Context) error {
		rows, err := d.FindLive(ctx, typeName, filter)
		if err != nil || len(rows) == 0 {
			return err
		}
		if _, err := d.MarkDeletedWhere(ctx, typeName, in("id", idsOf(rows))); err != nil {
			return err
		}
		for _, r := range rows {
			release(ctx, r)
		}
		return nil
	})
}

// deleteShares deletes the shares matching filter with their delivery rows.
func deleteShares(ctx context.Context, d *ghola.Deletion, filter *sietch.FilterBuilder) {
	_ = d.Step(ctx, "delete shares", func(ctx context.Context) error {
		shares, err := d.FindLive(ctx, TypeShare, filter)
		if err != nil || len(shares) == 0 {
			return err
		}
		ids := idsOf(shares)
		d.SoftDeleteWhere(ctx, TypeShareRecipient, in("share_id", ids))
		d.SoftDeleteWhere(ctx, TypeShare, in("id", ids))
		return nil
	})
}

func deleteComment(ctx context.Context, d *ghola.Deletion, e sietch.Entity) error {
	c := e.(*Comment)
	n, err := deleteCommentTree(ctx, d, c)
	if err != nil {
		return err
	}
	d.Adjust(ctx, TypePost, c.PostID, "comment_count", -int64(n))
	return nil
}

// deleteCommentTree deletes c and its replies depth-first, returning the
// number of comments deleted.
func deleteCommentTree(ctx context.Context, d *ghola.Deletion, c *Comment) (int, error) {
	deleted, err := d.MarkDeleted(ctx, c)
	if err != nil || !deleted {
		return 0, err
	}
	n := 1 + deleteReplies(ctx, d, c.ID)
	deleteCommentAttachments(ctx, d, []string{c.ID})
	return n, nil
}

// deleteReplies deletes the reply trees under a comment, each in its own
// step, and returns the number of comments deleted.
func deleteReplies(ctx context.Context, d *ghola.Deletion, parentID string) int {
	var n int
	_ = d.Step(ctx, "delete replies to comment#"+parentID, func(ctx context.Context) error {
		replies, err := d.FindLive(ctx, TypeComment, eq("parent_id", parentID))
		if err != nil {
			return err
		}
		for _, r := range replies {
			if err := d.Step(ctx, "delete "+sietch.Ref(r), func(ctx context.Context) error {
				m, err := deleteCommentTree(ctx, d, r.(*Comment))
				if err == nil {
					n += m
				}
				return err
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return n
}

func deleteUserProfile(ctx context.Context, d *ghola.Deletion, e sietch.Entity) error {
	u := e.(*UserProfile)
	deleted, err := d.MarkDeleted(ctx, u)
	if err != nil || !deleted {
		return err
	}

	cascadeEach(ctx, d, TypePost, eq("author_id", u.ID))
	cascadeEach(ctx, d, TypeComment, eq("author_id", u.ID))
	d.SoftDeleteWhere(ctx, TypeReaction, eq("user_id", u.ID))
	d.SoftDeleteWhere(ctx, TypeMention, eq("mentioned_user_id", u.ID))
	deleteShares(ctx, d, eq("sender_id", u.ID))
	d.SoftDeleteWhere(ctx, TypeShareRecipient, eq("recipient_id", u.ID))
	d.SoftDeleteWhere(ctx, TypeReport, eq("reporter_id", u.ID))
	deleteAndRelease(ctx, d, "leave communities", TypeMembership, eq("user_id", u.ID), func(ctx context.Context, m sietch.Entity) {
		d.Adjust(ctx, TypeCommunity, m.(*Membership).CommunityID, "member_count", -1)
	})
	return nil
}

func deleteCommunity(ctx context.Context, d *ghola.Deletion, e sietch.Entity) error {
	c := e.(*Community)
	deleted, err := d.MarkDeleted(ctx, c)
	if err != nil || !deleted {
		return err
	}

	cascadeEach(ctx, d, TypePost, eq("community_id", c.ID))
	members := d.SoftDeleteWhere(ctx, TypeMembership, eq("community_id", c.ID))
	d.Adjust(ctx, TypeCommunity, c.ID, "member_count", -int64(members))
	return nil
}

// cascadeEach runs the cascade of every live typeName record matching
// filter, each in its own step inside the step that looks them up.
func cascadeEach(ctx context.Context, d *ghola.Deletion, typeName string, filter *sietch.FilterBuilder) {
	_ = d.Step(ctx, "cascade "+typeName, func(ctx context.Context) error {
		records, err := d.FindLive(ctx, typeName, filter)
		if err != nil {
			return err
		}
		for _, r := range records {
			if err := d.Step(ctx, "delete "+sietch.Ref(r), func(ctx context.Context) error {
				return d.Cascade(ctx, r)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}
