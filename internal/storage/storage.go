package storage

import (
	"github.com/FranksOps/reelrank/internal/model"
)

// Column orders of the tabular exports.
var (
	AccountColumns = []string{
		"id",
		"username",
		"full_name",
		"surname",
		"biography",
		"external_url",
		"follower_count",
		"following_count",
		"media_count",
		"is_verified",
		"is_private",
	}

	ReelColumns = []string{
		"account_id",
		"account_username",
		"media_id",
		"code",
		"taken_at",
		"views",
		"like_count",
		"comment_count",
		"caption_text",
		"permalink",
	}
)

// Backend writes result entries to one export artifact.
type Backend interface {
	Save(entry *model.ResultEntry) error
	Close() error
}
