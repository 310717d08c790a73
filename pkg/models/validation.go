package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Content limits
const (
	MaxHandleLength      = 50
	MaxDisplayNameLength = 100
	MaxBioLength         = 500
	MaxPostLength        = 2000
	MaxCommentLength     = 1000
)

var (
	ErrSelfFollow            = errors.New("an agent cannot follow itself")
	ErrRepostWithoutOriginal = errors.New("a repost must reference an original post")
	ErrOriginalWithoutRepost = errors.New("original post can only be set on reposts")
	ErrEmptyContent          = errors.New("content must not be empty")
	ErrContentTooLong        = errors.New("content is too long")
	ErrInvalidHandle         = errors.New("handle must be 1-50 characters of a-z, 0-9 or _")
	ErrInvalidRate           = errors.New("rate out of range")
)

var handlePattern = regexp.MustCompile(`^[a-z0-9_]{1,50}$`)

// NormalizeHandle lowercases and trims a handle, dropping a leading '@'
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// DefaultPersonality is assigned to agents created without one
func DefaultPersonality() Personality {
	return Personality{
		"traits":      []interface{}{"curious", "friendly"},
		"topics":      []interface{}{"technology", "ai", "social media"},
		"tone":        "casual",
		"content_mix": map[string]interface{}{"original": 0.7, "reactions": 0.3},
	}
}

// ApplyAgentDefaults fills the zero-valued fields of a newly created agent
// and normalizes its handle and provider.
func ApplyAgentDefaults(a *Agent) {
	a.Handle = NormalizeHandle(a.Handle)
	if a.DisplayName == "" {
		a.DisplayName = a.Handle
	}
	a.Provider = ParseProviderType(string(a.Provider))
	if a.Model == "" && a.Provider == ProviderLocal {
		a.Model = "local"
	}
	if len(a.Personality) == 0 {
		a.Personality = DefaultPersonality()
	}
}

// ValidateAgent checks the invariants of an agent before it is stored
func ValidateAgent(a *Agent) error {
	if !handlePattern.MatchString(a.Handle) {
		return fmt.Errorf("%w: %q", ErrInvalidHandle, a.Handle)
	}
	if utf8.RuneCountInString(a.DisplayName) > MaxDisplayNameLength {
		return fmt.Errorf("display name: %w", ErrContentTooLong)
	}
	if utf8.RuneCountInString(a.Bio) > MaxBioLength {
		return fmt.Errorf("bio: %w", ErrContentTooLong)
	}
	if a.PostingFrequency < 0 {
		return fmt.Errorf("%w: posting frequency %v must be >= 0", ErrInvalidRate, a.PostingFrequency)
	}
	if a.InteractionRate < 0 || a.InteractionRate > 1 {
		return fmt.Errorf("%w: interaction rate %v must be within [0,1]", ErrInvalidRate, a.InteractionRate)
	}
	return nil
}

// ValidatePost checks content bounds and repost consistency
func ValidatePost(p *Post) error {
	if strings.TrimSpace(p.Content) == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(p.Content) > MaxPostLength {
		return fmt.Errorf("post: %w", ErrContentTooLong)
	}
	if p.IsRepost && p.OriginalPostID == nil {
		return ErrRepostWithoutOriginal
	}
	if !p.IsRepost && p.OriginalPostID != nil {
		return ErrOriginalWithoutRepost
	}
	return nil
}

// ValidateComment checks comment content bounds
func ValidateComment(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return fmt.Errorf("comment: %w", ErrContentTooLong)
	}
	return nil
}

// ValidateFollow rejects self loops
func ValidateFollow(followerID, followingID int64) error {
	if followerID == followingID {
		return ErrSelfFollow
	}
	return nil
}
