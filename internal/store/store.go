// Package store persists agents, content, the social graph and analytics
// snapshots. Postgres backs production; Memory backs the local simulator
// and tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jeffepok/botnet/pkg/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// AgentFilter narrows ListAgents
type AgentFilter struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

// PostFilter narrows ListPosts
type PostFilter struct {
	AuthorID *int64
	Limit    int
	Offset   int
}

// BehaviorFilter narrows ListAgentBehaviors. Rows come newest day first, or
// by engagement rate when ByEngagement is set. A negative Limit returns
// every row.
type BehaviorFilter struct {
	AgentID      *int64
	Since        time.Time
	ByEngagement bool
	Limit        int
}

const defaultPageSize = 50

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	return limit
}

// Store is the complete persistence surface. Consumers depend on the
// narrower interfaces they declare themselves.
type Store interface {
	// Agents
	CreateAgent(ctx context.Context, a *models.Agent) error
	GetAgent(ctx context.Context, id int64) (*models.Agent, error)
	GetAgentByHandle(ctx context.Context, handle string) (*models.Agent, error)
	ListAgents(ctx context.Context, f AgentFilter) ([]*models.Agent, error)
	UpdateAgent(ctx context.Context, a *models.Agent) error
	SetAgentActive(ctx context.Context, id int64, active bool) error
	TouchAgent(ctx context.Context, id int64, at time.Time) error
	ActiveAgentIDs(ctx context.Context) ([]int64, error)
	DiscoveryCandidates(ctx context.Context, agentID int64) ([]*models.Agent, error)

	// Content
	CreatePost(ctx context.Context, p *models.Post) error
	GetPost(ctx context.Context, id int64) (*models.Post, error)
	ListPosts(ctx context.Context, f PostFilter) ([]*models.Post, error)
	RecentPostsByAuthor(ctx context.Context, authorID int64, limit int) ([]*models.Post, error)
	RecentFollowedPosts(ctx context.Context, agentID int64, limit int) ([]*models.Post, error)
	PopularPosts(ctx context.Context, minLikes int64, excludeAuthor int64, limit int) ([]*models.Post, error)
	CreateComment(ctx context.Context, c *models.Comment) error
	CreateUserComment(ctx context.Context, c *models.UserComment) error
	ListComments(ctx context.Context, postID int64) ([]*models.Comment, error)
	ListUserComments(ctx context.Context, postID int64) ([]*models.UserComment, error)
	ReconcilePostCounters(ctx context.Context, postID int64) (models.PostCounters, error)

	// Social graph. Creating an existing edge reports created=false.
	CreateLike(ctx context.Context, agentID, postID int64) (bool, error)
	CreateUserLike(ctx context.Context, profileID, postID int64) (bool, error)
	DeleteUserLike(ctx context.Context, profileID, postID int64) (bool, error)
	CreateFollow(ctx context.Context, followerID, followingID int64) (bool, error)
	CreateHumanFollow(ctx context.Context, profileID, agentID int64) (bool, error)
	ListFollowers(ctx context.Context, agentID int64, limit, offset int) ([]*models.Follow, error)
	ListFollowing(ctx context.Context, agentID int64, limit, offset int) ([]*models.Follow, error)

	// Profiles
	CreateProfile(ctx context.Context, p *models.UserProfile) error
	GetProfile(ctx context.Context, id int64) (*models.UserProfile, error)
	GetProfileBySubject(ctx context.Context, subject string) (*models.UserProfile, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error

	// Analytics
	PlatformTotals(ctx context.Context) (models.PlatformTotals, error)
	ActivityBetween(ctx context.Context, start, end time.Time) (models.ActivityCounts, error)
	AgentActivityBetween(ctx context.Context, agentID int64, start, end time.Time) (models.ActivityCounts, error)
	AgentStats(ctx context.Context) ([]models.AgentStats, error)
	ViralPosts(ctx context.Context, since time.Time, minLikes int64, limit int) ([]*models.Post, error)
	AgentsWithEngagementSince(ctx context.Context, minRate float64, since time.Time) ([]int64, error)
	InfluencerCandidates(ctx context.Context, minFollowers int64, minRate float64) ([]int64, error)
	UpsertPlatformMetrics(ctx context.Context, m *models.PlatformMetrics) error
	UpsertAgentBehavior(ctx context.Context, b *models.AgentBehavior) error
	UpsertNetworkAnalysis(ctx context.Context, n *models.NetworkAnalysis) error
	GetOrCreatePattern(ctx context.Context, p *models.EmergentPattern) (bool, error)
	ListPatterns(ctx context.Context, activeOnly bool) ([]*models.EmergentPattern, error)
	LatestPlatformMetrics(ctx context.Context) (*models.PlatformMetrics, error)
	LatestNetworkAnalysis(ctx context.Context) (*models.NetworkAnalysis, error)
	ListAgentBehaviors(ctx context.Context, f BehaviorFilter) ([]*models.AgentBehavior, error)
	PlatformMetricsSince(ctx context.Context, since time.Time) ([]*models.PlatformMetrics, error)
	NetworkAnalysesSince(ctx context.Context, since time.Time) ([]*models.NetworkAnalysis, error)
}

// Day truncates t to midnight UTC
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
