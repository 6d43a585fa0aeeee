package social

import (
	"time"

	"github.com/seb7887/lazarus/sietch"
)

// Type names
const (
	TypeUserProfile    = "user_profile"
	TypeCommunity      = "community"
	TypeMembership     = "membership"
	TypePost           = "post"
	TypeComment        = "comment"
	TypeHashtag        = "hashtag"
	TypePostHashtag    = "post_hashtag"
	TypeReaction       = "reaction"
	TypeMention        = "mention"
	TypeShare          = "share"
	TypeShareRecipient = "share_recipient"
	TypeReport         = "report"
	TypeAttachment     = "attachment"
)

// Base carries the primary key shared by every model.
type Base struct {
	ID string `db:"id" json:"id"`
}

func (b *Base) GetID() string   { return b.ID }
func (b *Base) SetID(id string) { b.ID = id }

type UserProfile struct {
	Base
	Username    string    `db:"username" json:"username"`
	DisplayName string    `db:"display_name" json:"display_name"`
	JoinedAt    time.Time `db:"joined_at" json:"joined_at"`
	sietch.SoftDelete
}

func (*UserProfile) EntityType() string { return TypeUserProfile }

type Community struct {
	Base
	Name        string `db:"name" json:"name"`
	OwnerID     string `db:"owner_id" json:"owner_id"`
	PostCount   int    `db:"post_count" json:"post_count"`
	MemberCount int    `db:"member_count" json:"member_count"`
	sietch.SoftDelete
}

func (*Community) EntityType() string { return TypeCommunity }

type Membership struct {
	Base
	CommunityID string `db:"community_id" json:"community_id"`
	UserID      string `db:"user_id" json:"user_id"`
	Role        string `db:"role" json:"role"`
	sietch.SoftDelete
}

func (*Membership) EntityType() string { return TypeMembership }

type Post struct {
	Base
	AuthorID     string  `db:"author_id" json:"author_id"`
	CommunityID  *string `db:"community_id" json:"community_id,omitempty"`
	Body         string  `db:"body" json:"body"`
	CommentCount int     `db:"comment_count" json:"comment_count"`
	sietch.SoftDelete
}

func (*Post) EntityType() string { return TypePost }

// Comment belongs to a post; ParentID is set on replies.
type Comment struct {
	Base
	PostID   string  `db:"post_id" json:"post_id"`
	AuthorID string  `db:"author_id" json:"author_id"`
	ParentID *string `db:"parent_id" json:"parent_id,omitempty"`
	Body     string  `db:"body" json:"body"`
	sietch.SoftDelete
}

func (*Comment) EntityType() string { return TypeComment }

// Hashtag is shared by posts and never deleted.
type Hashtag struct {
	Base
	Name       string `db:"name" json:"name"`
	UsageCount int    `db:"usage_count" json:"usage_count"`
}

func (*Hashtag) EntityType() string { return TypeHashtag }

type PostHashtag struct {
	Base
	PostID    string `db:"post_id" json:"post_id"`
	HashtagID string `db:"hashtag_id" json:"hashtag_id"`
	sietch.SoftDelete
}

func (*PostHashtag) EntityType() string { return TypePostHashtag }

// Reaction targets a post or a comment, named by TargetType.
type Reaction struct {
	Base
	UserID     string `db:"user_id" json:"user_id"`
	TargetType string `db:"target_type" json:"target_type"`
	TargetID   string `db:"target_id" json:"target_id"`
	Kind       string `db:"kind" json:"kind"`
	sietch.SoftDelete
}

func (*Reaction) EntityType() string { return TypeReaction }

type Mention struct {
	Base
	PostID          *string `db:"post_id" json:"post_id,omitempty"`
	CommentID       *string `db:"comment_id" json:"comment_id,omitempty"`
	MentionedUserID string  `db:"mentioned_user_id" json:"mentioned_user_id"`
	sietch.SoftDelete
}

func (*Mention) EntityType() string { return TypeMention }

type Share struct {
	Base
	PostID   string `db:"post_id" json:"post_id"`
	SenderID string `db:"sender_id" json:"sender_id"`
	sietch.SoftDelete
}

func (*Share) EntityType() string { return TypeShare }

// ShareRecipient is the delivery row of a share to one user.
type ShareRecipient struct {
	Base
	ShareID     string `db:"share_id" json:"share_id"`
	RecipientID string `db:"recipient_id" json:"recipient_id"`
	Delivered   bool   `db:"delivered" json:"delivered"`
	sietch.SoftDelete
}

func (*ShareRecipient) EntityType() string { return TypeShareRecipient }

type Report struct {
	Base
	ReporterID string `db:"reporter_id" json:"reporter_id"`
	TargetType string `db:"target_type" json:"target_type"`
	TargetID   string `db:"target_id" json:"target_id"`
	Reason     string `db:"reason" json:"reason"`
	sietch.SoftDelete
}

func (*Report) EntityType() string { return TypeReport }

type Attachment struct {
	Base
	PostID    *string `db:"post_id" json:"post_id,omitempty"`
	CommentID *string `db:"comment_id" json:"comment_id,omitempty"`
	URL       string  `db:"url" json:"url"`
	sietch.SoftDelete
}

func (*Attachment) EntityType() string { return TypeAttachment }
