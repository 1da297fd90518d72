package hiker

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/reelrank/internal/model"
)

// RawReel is a reel item exactly as the API returned it.
type RawReel map[string]any

// NormalizeCandidate converts one search result user. ok is false when the
// user carries no id.
func NormalizeCandidate(raw map[string]any) (model.AccountCandidate, bool) {
	pk := str(first(raw, "pk", "id", "pk_id"))
	if pk == "" {
		return model.AccountCandidate{}, false
	}
	return model.AccountCandidate{
		PK:            pk,
		Username:      str(raw["username"]),
		FullName:      str(raw["full_name"]),
		IsVerified:    boolean(raw["is_verified"]),
		IsPrivate:     boolean(raw["is_private"]),
		FollowerCount: num(raw["follower_count"]),
	}, true
}

// NormalizeAccount converts a full profile object. fallbackID is used when
// the profile does not echo its own id.
func NormalizeAccount(raw map[string]any, fallbackID string) model.Account {
	id := str(first(raw, "pk", "id", "pk_id"))
	if id == "" {
		id = fallbackID
	}
	fullName := str(raw["full_name"])
	return model.Account{
		ID:             id,
		Username:       str(raw["username"]),
		FullName:       fullName,
		Surname:        model.Surname(fullName),
		Biography:      str(raw["biography"]),
		ExternalURL:    str(raw["external_url"]),
		FollowerCount:  num(first(raw, "follower_count", "followers_count")),
		FollowingCount: num(first(raw, "following_count", "followings_count")),
		MediaCount:     num(raw["media_count"]),
		IsVerified:     boolean(raw["is_verified"]),
		IsPrivate:      boolean(raw["is_private"]),
	}
}

// NormalizeReel converts a raw reel. Missing or mistyped fields become zero
// values; username is the owning account's and is only used for the permalink.
func NormalizeReel(raw RawReel, username string) model.Reel {
	m := map[string]any(raw)

	// user_clips items may nest the post under "media"
	if inner, ok := m["media"].(map[string]any); ok && len(inner) > 0 {
		m = inner
	}

	code := str(first(m, "code", "shortcode"))

	likes := first(m, "like_count")
	if likes == nil {
		likes = nested(m, "edge_liked_by", "count")
	}
	comments := first(m, "comment_count")
	if comments == nil {
		comments = nested(m, "edge_media_to_comment", "count")
	}

	return model.Reel{
		MediaID:      str(first(m, "pk", "id")),
		Code:         code,
		TakenAt:      timestamp(first(m, "taken_at", "taken_at_timestamp", "timestamp")),
		Views:        num(first(m, "play_count", "view_count", "video_view_count")),
		LikeCount:    num(likes),
		CommentCount: num(comments),
		CaptionText:  caption(m),
		Permalink:    model.Permalink(code, username),
	}
}

func caption(m map[string]any) string {
	if s := str(m["caption_text"]); s != "" {
		return s
	}
	switch c := m["caption"].(type) {
	case string:
		return c
	case map[string]any:
		return firstString(c, "text", "caption_text")
	}
	return ""
}

// first returns the first value among keys that is present and not a zero
// value (nil, "", 0, false).
func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || empty(v) {
			continue
		}
		return v
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	return str(first(m, keys...))
}

func nested(m map[string]any, key, field string) any {
	inner, ok := m[key].(map[string]any)
	if !ok {
		return nil
	}
	return inner[field]
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case float64:
		return t == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func num(v any) int64 {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return clampFloat(f)
		}
	case float64:
		return clampFloat(t)
	case int:
		return int64(t)
	case int64:
		return t
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return clampFloat(f)
		}
	}
	return 0
}

func clampFloat(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

func boolean(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	case json.Number:
		return t.String() != "0"
	}
	return false
}

// timestamp accepts unix seconds as a number or numeric string, an RFC 3339
// string, or an object carrying a "timestamp" field.
func timestamp(v any) int64 {
	switch t := v.(type) {
	case map[string]any:
		return timestamp(t["timestamp"])
	case string:
		if n := num(t); n != 0 {
			return n
		}
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(t)); err == nil {
			return ts.Unix()
		}
		return 0
	}
	return num(v)
}
