package models

import (
	"sort"
	"time"
)

// ProviderType identifies the generative backend an agent talks to.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderGemini    ProviderType = "gemini"
	ProviderLocal     ProviderType = "local"
)

// ParseProviderType maps a stored provider string onto the closed set of
// provider types. Anything unrecognized becomes ProviderLocal.
func ParseProviderType(s string) ProviderType {
	switch ProviderType(s) {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderLocal:
		return ProviderType(s)
	case "claude":
		return ProviderAnthropic
	case "google", "googleai":
		return ProviderGemini
	default:
		return ProviderLocal
	}
}

// Known reports whether p is one of the declared provider types.
func (p ProviderType) Known() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderLocal:
		return true
	}
	return false
}

// Personality is the open-ended trait map that shapes an agent's prompts
// (traits, topics, tone, content mix weights).
type Personality map[string]interface{}

// Keys returns the personality keys in sorted order
func (p Personality) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Agent is an autonomous account on the platform
type Agent struct {
	ID               int64        `json:"id" db:"id"`
	Handle           string       `json:"handle" db:"handle"`
	DisplayName      string       `json:"display_name" db:"display_name"`
	Bio              string       `json:"bio" db:"bio"`
	AvatarURL        string       `json:"avatar_url" db:"avatar_url"`
	Provider         ProviderType `json:"provider" db:"provider"`
	Model            string       `json:"model" db:"model"`
	Personality      Personality  `json:"personality" db:"personality"`
	PostingFrequency float64      `json:"posting_frequency" db:"posting_frequency"` // posts per hour
	InteractionRate  float64      `json:"interaction_rate" db:"interaction_rate"`   // probability in [0,1]
	IsActive         bool         `json:"is_active" db:"is_active"`
	LastActivity     time.Time    `json:"last_activity" db:"last_activity"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
	CreatorID        *int64       `json:"creator_id,omitempty" db:"creator_id"`

	// Read-time counts, populated by stores that join them in
	FollowerCount  int64 `json:"follower_count" db:"-"`
	FollowingCount int64 `json:"following_count" db:"-"`
	PostCount      int64 `json:"post_count" db:"-"`
}

// Post is a content unit authored by an agent
type Post struct {
	ID             int64     `json:"id" db:"id"`
	AuthorID       int64     `json:"author_id" db:"author_id"`
	AuthorHandle   string    `json:"author_handle,omitempty" db:"-"`
	Content        string    `json:"content" db:"content"`
	MediaURL       string    `json:"media_url" db:"media_url"`
	LikeCount      int64     `json:"like_count" db:"like_count"`
	CommentCount   int64     `json:"comment_count" db:"comment_count"`
	RepostCount    int64     `json:"repost_count" db:"repost_count"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	IsRepost       bool      `json:"is_repost" db:"is_repost"`
	OriginalPostID *int64    `json:"original_post_id,omitempty" db:"original_post_id"`
}

// TotalEngagement sums all engagement counters
func (p *Post) TotalEngagement() int64 {
	return p.LikeCount + p.CommentCount + p.RepostCount
}

// PostCounters holds the denormalized engagement counters of a post
type PostCounters struct {
	Likes    int64 `json:"like_count"`
	Comments int64 `json:"comment_count"`
	Reposts  int64 `json:"repost_count"`
}

// Comment is an agent-authored comment attached to a post
type Comment struct {
	ID        int64     `json:"id" db:"id"`
	PostID    int64     `json:"post_id" db:"post_id"`
	AuthorID  int64     `json:"author_id" db:"author_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserComment is a comment written by a human profile
type UserComment struct {
	ID        int64     `json:"id" db:"id"`
	PostID    int64     `json:"post_id" db:"post_id"`
	ProfileID int64     `json:"profile_id" db:"profile_id"`
	UserName  string    `json:"user_name" db:"user_name"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ThreadEntry is the read-time union of agent and human comments
type ThreadEntry struct {
	ID         int64     `json:"id"`
	PostID     int64     `json:"post_id"`
	AuthorKind string    `json:"author_kind"` // "agent" or "human"
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// MergeComments merges agent and human comments into one thread ordered by
// creation time. Ties keep agent comments first.
func MergeComments(agentComments []*Comment, userComments []*UserComment) []ThreadEntry {
	thread := make([]ThreadEntry, 0, len(agentComments)+len(userComments))
	for _, c := range agentComments {
		thread = append(thread, ThreadEntry{
			ID: c.ID, PostID: c.PostID, AuthorKind: "agent", AuthorID: c.AuthorID,
			Content: c.Content, CreatedAt: c.CreatedAt,
		})
	}
	for _, c := range userComments {
		thread = append(thread, ThreadEntry{
			ID: c.ID, PostID: c.PostID, AuthorKind: "human", AuthorID: c.ProfileID,
			AuthorName: c.UserName, Content: c.Content, CreatedAt: c.CreatedAt,
		})
	}
	sort.SliceStable(thread, func(i, j int) bool {
		return thread[i].CreatedAt.Before(thread[j].CreatedAt)
	})
	return thread
}

// Follow is a directed agent -> agent edge
type Follow struct {
	ID          int64     `json:"id" db:"id"`
	FollowerID  int64     `json:"follower_id" db:"follower_id"`
	FollowingID int64     `json:"following_id" db:"following_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// HumanFollow is a directed profile -> agent edge
type HumanFollow struct {
	ID          int64     `json:"id" db:"id"`
	ProfileID   int64     `json:"profile_id" db:"profile_id"`
	FollowingID int64     `json:"following_id" db:"following_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Like is an agent -> post edge
type Like struct {
	ID        int64     `json:"id" db:"id"`
	AgentID   int64     `json:"agent_id" db:"agent_id"`
	PostID    int64     `json:"post_id" db:"post_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserLike is a profile -> post edge
type UserLike struct {
	ID        int64     `json:"id" db:"id"`
	ProfileID int64     `json:"profile_id" db:"profile_id"`
	PostID    int64     `json:"post_id" db:"post_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserProfile is the local record of an externally authenticated human
type UserProfile struct {
	ID          int64      `json:"id" db:"id"`
	Subject     string     `json:"subject" db:"subject"` // external identity id (JWT sub)
	Email       string     `json:"email" db:"email"`
	FullName    string     `json:"full_name" db:"full_name"`
	AvatarURL   string     `json:"avatar_url" db:"avatar_url"`
	Username    string     `json:"username,omitempty" db:"username"`
	DisplayName string     `json:"display_name" db:"display_name"`
	Bio         string     `json:"bio" db:"bio"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	IsVerified  bool       `json:"is_verified" db:"is_verified"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	LastLogin   *time.Time `json:"last_login,omitempty" db:"last_login"`
}

// DisplayNameOrEmail returns the display name, or the local part of the email
func (p *UserProfile) DisplayNameOrEmail() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	for i := 0; i < len(p.Email); i++ {
		if p.Email[i] == '@' {
			return p.Email[:i]
		}
	}
	return p.Email
}

// Analytics snapshots

// PlatformMetrics is the daily platform-wide roll-up
type PlatformMetrics struct {
	Date                time.Time `json:"date" db:"date"`
	TotalAgents         int64     `json:"total_agents" db:"total_agents"`
	ActiveAgents        int64     `json:"active_agents" db:"active_agents"`
	TotalPosts          int64     `json:"total_posts" db:"total_posts"`
	TotalLikes          int64     `json:"total_likes" db:"total_likes"`
	TotalComments       int64     `json:"total_comments" db:"total_comments"`
	TotalFollows        int64     `json:"total_follows" db:"total_follows"`
	PostsCreatedToday   int64     `json:"posts_created_today" db:"posts_created_today"`
	LikesGivenToday     int64     `json:"likes_given_today" db:"likes_given_today"`
	CommentsMadeToday   int64     `json:"comments_made_today" db:"comments_made_today"`
	FollowsCreatedToday int64     `json:"follows_created_today" db:"follows_created_today"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// AgentBehavior is the daily activity roll-up of a single agent
type AgentBehavior struct {
	AgentID         int64     `json:"agent_id" db:"agent_id"`
	Date            time.Time `json:"date" db:"date"`
	PostsCreated    int64     `json:"posts_created" db:"posts_created"`
	LikesGiven      int64     `json:"likes_given" db:"likes_given"`
	CommentsMade    int64     `json:"comments_made" db:"comments_made"`
	FollowsCreated  int64     `json:"follows_created" db:"follows_created"`
	FollowersGained int64     `json:"followers_gained" db:"followers_gained"`
	EngagementRate  float64   `json:"engagement_rate" db:"engagement_rate"` // (likes + comments) / posts
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// PatternType classifies an emergent pattern
type PatternType string

const (
	PatternViralContent        PatternType = "viral_content"
	PatternEchoChamber         PatternType = "echo_chamber"
	PatternInfluencerEmergence PatternType = "influencer_emergence"
	PatternTrendFormation      PatternType = "trend_formation"
	PatternCommunityFormation  PatternType = "community_formation"
	PatternBehavioralCluster   PatternType = "behavioral_clustering"
)

// EmergentPattern is a detected platform-level behaviour
type EmergentPattern struct {
	ID              int64                  `json:"id" db:"id"`
	Type            PatternType            `json:"pattern_type" db:"pattern_type"`
	Title           string                 `json:"title" db:"title"`
	Description     string                 `json:"description" db:"description"`
	ConfidenceScore float64                `json:"confidence_score" db:"confidence_score"`
	AffectedAgents  []int64                `json:"affected_agents" db:"affected_agents"`
	RelatedPosts    []int64                `json:"related_posts" db:"related_posts"`
	StartDate       time.Time              `json:"start_date" db:"start_date"`
	EndDate         *time.Time             `json:"end_date,omitempty" db:"end_date"`
	IsActive        bool                   `json:"is_active" db:"is_active"`
	Metadata        map[string]interface{} `json:"metadata" db:"metadata"`
	CreatedAt       time.Time              `json:"created_at" db:"created_at"`
}

// InfluenceScore ranks an agent in the network analysis
type InfluenceScore struct {
	AgentID        int64   `json:"agent_id"`
	Handle         string  `json:"handle"`
	InfluenceScore float64 `json:"influence_score"`
}

// NetworkAnalysis is the daily follow-graph roll-up
type NetworkAnalysis struct {
	Date              time.Time          `json:"date" db:"date"`
	TotalNodes        int64              `json:"total_nodes" db:"total_nodes"`
	TotalEdges        int64              `json:"total_edges" db:"total_edges"`
	AverageDegree     float64            `json:"average_degree" db:"average_degree"`
	Density           float64            `json:"density" db:"density"`
	InfluentialAgents []InfluenceScore   `json:"influential_agents" db:"influential_agents"`
	Communities       map[string][]int64 `json:"community_data" db:"community_data"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
}

// AgentStats is the per-agent input of the network analysis
type AgentStats struct {
	AgentID       int64
	Handle        string
	IsActive      bool
	FollowerCount int64 // agent + human followers
	PostCount     int64
	LikesGiven    int64
}

// ActivityCounts counts rows created inside a time window. For a single
// agent Follows are the follows it created and FollowersGained the follows
// it received.
type ActivityCounts struct {
	Posts           int64
	Likes           int64
	Comments        int64
	Follows         int64
	FollowersGained int64
}

// PlatformTotals are the all-time platform counts
type PlatformTotals struct {
	Agents       int64
	ActiveAgents int64
	Posts        int64
	Likes        int64
	Comments     int64
	Follows      int64
}
