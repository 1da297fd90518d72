package model

import (
	"strings"
	"time"
)

// Error log context tags.
const (
	ContextSearch       = "search"
	ContextProfileFetch = "profile_fetch"
	ContextReelFetch    = "reel_fetch"
	ContextExport       = "export"
)

// AccountCandidate is the lightweight identity returned by account search.
type AccountCandidate struct {
	PK            string
	Username      string
	FullName      string
	IsVerified    bool
	IsPrivate     bool
	FollowerCount int64
	// Query is the search keyword that first produced the candidate.
	Query string
}

// Account is a normalized full profile.
type Account struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	Surname        string `json:"surname"`
	Biography      string `json:"biography"`
	ExternalURL    string `json:"external_url"`
	FollowerCount  int64  `json:"follower_count"`
	FollowingCount int64  `json:"following_count"`
	MediaCount     int64  `json:"media_count"`
	IsVerified     bool   `json:"is_verified"`
	IsPrivate      bool   `json:"is_private"`
}

// Reel is a normalized short video post. TakenAt is in unix seconds.
type Reel struct {
	MediaID      string `json:"media_id"`
	Code         string `json:"code"`
	TakenAt      int64  `json:"taken_at"`
	Views        int64  `json:"views"`
	LikeCount    int64  `json:"like_count"`
	CommentCount int64  `json:"comment_count"`
	CaptionText  string `json:"caption_text"`
	Permalink    string `json:"permalink"`
}

// ResultEntry pairs an account with its ranked top reels.
type ResultEntry struct {
	Account  Account `json:"account"`
	TopReels []Reel  `json:"top_reels"`
}

// ErrorRecord is one line of the error log.
type ErrorRecord struct {
	TS           time.Time `json:"ts"`
	Context      string    `json:"context"`
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	Traceback    string    `json:"traceback,omitempty"`
	Query        string    `json:"query,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	PK           string    `json:"pk,omitempty"`
	Username     string    `json:"username,omitempty"`
	Attempts     int       `json:"attempts,omitempty"`
	RunID        string    `json:"run_id,omitempty"`
}

// Surname returns the last whitespace separated token of a display name,
// or "" when the name has fewer than two tokens.
func Surname(fullName string) string {
	parts := strings.Fields(fullName)
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-1]
}

// Permalink builds the public reel URL. Both code and owner username are required.
func Permalink(code, username string) string {
	if code == "" || username == "" {
		return ""
	}
	return "https://www.instagram.com/reel/" + code + "/"
}
