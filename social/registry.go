package social

import (
	"github.com/seb7887/lazarus/sietch"
)

// Registry returns the entity types of the social model. Types are
// registered parents first, which is also the bulk restore tie-break order.
func Registry() *sietch.Registry {
	return sietch.NewRegistry().MustRegister(
		sietch.EntityType{
			Name:  TypeUserProfile,
			Table: "user_profiles",
			New:   func() sietch.Entity { return &UserProfile{} },
		},
		sietch.EntityType{
			Name:  TypeCommunity,
			Table: "communities",
			New:   func() sietch.Entity { return &Community{} },
			References: []sietch.Reference{
				{Field: "owner_id", Target: TypeUserProfile},
			},
		},
		sietch.EntityType{
			Name:  TypeMembership,
			Table: "memberships",
			New:   func() sietch.Entity { return &Membership{} },
			References: []sietch.Reference{
				{Field: "community_id", Target: TypeCommunity, Kind: sietch.Association},
				{Field: "user_id", Target: TypeUserProfile, Kind: sietch.Association},
			},
		},
		sietch.EntityType{
			Name:  TypePost,
			Table: "posts",
			New:   func() sietch.Entity { return &Post{} },
			References: []sietch.Reference{
				{Field: "author_id", Target: TypeUserProfile},
				{Field: "community_id", Target: TypeCommunity},
			},
		},
		sietch.EntityType{
			Name:  TypeComment,
			Table: "comments",
			New:   func() sietch.Entity { return &Comment{} },
			References: []sietch.Reference{
				{Field: "post_id", Target: TypePost},
				{Field: "author_id", Target: TypeUserProfile},
				{Field: "parent_id", Target: TypeComment},
			},
		},
		sietch.EntityType{
			Name:  TypeHashtag,
			Table: "hashtags",
			New:   func() sietch.Entity { return &Hashtag{} },
		},
		sietch.EntityType{
			Name:  TypePostHashtag,
			Table: "post_hashtags",
			New:   func() sietch.Entity { return &PostHashtag{} },
			References: []sietch.Reference{
				{Field: "post_id", Target: TypePost, Kind: sietch.Association},
				{Field: "hashtag_id", Target: TypeHashtag, Kind: sietch.Association},
			},
		},
		sietch.EntityType{
			Name:  TypeReaction,
			Table: "reactions",
			New:   func() sietch.Entity { return &Reaction{} },
			References: []sietch.Reference{
				{Field: "user_id", Target: TypeUserProfile},
				{Field: "target_id", Target: TypePost, Discriminator: "target_type"},
				{Field: "target_id", Target: TypeComment, Discriminator: "target_type"},
			},
		},
		sietch.EntityType{
			Name:  TypeMention,
			Table: "mentions",
			New:   func() sietch.Entity { return &Mention{} },
			References: []sietch.Reference{
				{Field: "post_id", Target: TypePost},
				{Field: "comment_id", Target: TypeComment},
				{Field: "mentioned_user_id", Target: TypeUserProfile},
			},
		},
		sietch.EntityType{
			Name:  TypeShare,
			Table: "shares",
			New:   func() sietch.Entity { return &Share{} },
			References: []sietch.Reference{
				{Field: "post_id", Target: TypePost},
				{Field: "sender_id", Target: TypeUserProfile},
			},
		},
		sietch.EntityType{
			Name:  TypeShareRecipient,
			Table: "share_recipients",
			New:   func() sietch.Entity { return &ShareRecipient{} },
			References: []sietch.Reference{
				{Field: "share_id", Target: TypeShare},
				{Field: "recipient_id", Target: TypeUserProfile},
			},
		},
		sietch.EntityType{
			Name:  TypeReport,
			Table: "reports",
			New:   func() sietch.Entity { return &Report{} },
			References: []sietch.Reference{
				{Field: "reporter_id", Target: TypeUserProfile},
				{Field: "target_id", Target: TypePost, Discriminator: "target_type"},
				{Field: "target_id", Target: TypeComment, Discriminator: "target_type"},
			},
		},
		sietch.EntityType{
			Name:  TypeAttachment,
			Table: "attachments",
			New:   func() sietch.Entity { return &Attachment{} },
			References: []sietch.Reference{
				{Field: "post_id", Target: TypePost},
				{Field: "comment_id", Target: TypeComment},
			},
		},
	)
}
