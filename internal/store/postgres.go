package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jeffepok/botnet/pkg/models"
)

// Postgres implements Store on a pgx pool, the same pool River runs on
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps pool
func NewPostgres(pool *pgxpool.Pool) *Postgres { return &Postgres{pool: pool} }

// Connect opens a pool for databaseURL and verifies it
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Pool exposes the underlying pool
func (s *Postgres) Pool() *pgxpool.Pool { return s.pool }

// scanner is satisfied by pgx.Row and pgx.Rows
type scanner interface {
	Scan(dest ...any) error
}

// mapError translates constraint violations into store errors
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrDuplicate)
		case "23503":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrNotFound)
		case "23514":
			if pgErr.ConstraintName == "no_self_follow" {
				return models.ErrSelfFollow
			}
			if pgErr.ConstraintName == "repost_has_original" {
				return models.ErrRepostWithoutOriginal
			}
		}
	}
	return err
}

// Agents

const agentColumns = `a.id, a.handle, a.display_name, a.bio, a.avatar_url, a.provider, a.model, a.personality,
    a.posting_frequency, a.interaction_rate, a.is_active, a.last_activity, a.created_at, a.creator_id,
    (SELECT count(*) FROM follows f WHERE f.following_id = a.id)
        + (SELECT count(*) FROM human_follows h WHERE h.following_id = a.id),
    (SELECT count(*) FROM follows f WHERE f.follower_id = a.id),
    (SELECT count(*) FROM posts p WHERE p.author_id = a.id)`

func scanAgent(row scanner) (*models.Agent, error) {
	var a models.Agent
	var provider string
	var personality []byte
	if err := row.Scan(&a.ID, &a.Handle, &a.DisplayName, &a.Bio, &a.AvatarURL, &provider, &a.Model, &personality,
		&a.PostingFrequency, &a.InteractionRate, &a.IsActive, &a.LastActivity, &a.CreatedAt, &a.CreatorID,
		&a.FollowerCount, &a.FollowingCount, &a.PostCount); err != nil {
		return nil, mapError(err)
	}
	a.Provider = models.ParseProviderType(provider)
	if len(personality) > 0 {
		if err := json.Unmarshal(personality, &a.Personality); err != nil {
			return nil, fmt.Errorf("decode personality of agent %d: %w", a.ID, err)
		}
	}
	return &a, nil
}

func collectAgents(rows pgx.Rows) ([]*models.Agent, error) {
	defer rows.Close()
	out := make([]*models.Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Postgres) CreateAgent(ctx context.Context, a *models.Agent) error {
	if err := models.ValidateAgent(a); err != nil {
		return err
	}
	personality, err := json.Marshal(a.Personality)
	if err != nil {
		return err
	}
	lastActivity := a.LastActivity
	if lastActivity.IsZero() {
		lastActivity = time.Now()
	}
	err = s.pool.QueryRow(ctx, `
        INSERT INTO agents (handle, display_name, bio, avatar_url, provider, model, personality,
                            posting_frequency, interaction_rate, is_active, last_activity, creator_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, last_activity
    `, a.Handle, a.DisplayName, a.Bio, a.AvatarURL, string(a.Provider), a.Model, personality,
		a.PostingFrequency, a.InteractionRate, a.IsActive, lastActivity, a.CreatorID,
	).Scan(&a.ID, &a.CreatedAt, &a.LastActivity)
	return mapError(err)
}

func (s *Postgres) GetAgent(ctx context.Context, id int64) (*models.Agent, error) {
	return scanAgent(s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents a WHERE a.id = $1`, id))
}

func (s *Postgres) GetAgentByHandle(ctx context.Context, handle string) (*models.Agent, error) {
	return scanAgent(s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents a WHERE a.handle = $1`,
		models.NormalizeHandle(handle)))
}

func (s *Postgres) ListAgents(ctx context.Context, f AgentFilter) ([]*models.Agent, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+agentColumns+` FROM agents a
        WHERE (NOT $1 OR a.is_active)
        ORDER BY a.id
        LIMIT $2 OFFSET $3
    `, f.ActiveOnly, pageSize(f.Limit), f.Offset)
	if err != nil {
		return nil, err
	}
	return collectAgents(rows)
}

func (s *Postgres) UpdateAgent(ctx context.Context, a *models.Agent) error {
	if err := models.ValidateAgent(a); err != nil {
		return err
	}
	personality, err := json.Marshal(a.Personality)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
        UPDATE agents
        SET handle=$1, display_name=$2, bio=$3, avatar_url=$4, provider=$5, model=$6, personality=$7,
            posting_frequency=$8, interaction_rate=$9, is_active=$10
        WHERE id=$11
    `, a.Handle, a.DisplayName, a.Bio, a.AvatarURL, string(a.Provider), a.Model, personality,
		a.PostingFrequency, a.InteractionRate, a.IsActive, a.ID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) SetAgentActive(ctx context.Context, id int64, active bool) error {
	return s.execOne(ctx, `UPDATE agents SET is_active=$1 WHERE id=$2`, active, id)
}

func (s *Postgres) TouchAgent(ctx context.Context, id int64, at time.Time) error {
	return s.execOne(ctx, `UPDATE agents SET last_activity=$1 WHERE id=$2`, at, id)
}

func (s *Postgres) ActiveAgentIDs(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT id FROM agents WHERE is_active ORDER BY id`)
}

func (s *Postgres) DiscoveryCandidates(ctx context.Context, agentID int64) ([]*models.Agent, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+agentColumns+` FROM agents a
        WHERE a.is_active AND a.id <> $1
          AND NOT EXISTS (SELECT 1 FROM follows f WHERE f.follower_id = $1 AND f.following_id = a.id)
        ORDER BY a.id
    `, agentID)
	if err != nil {
		return nil, err
	}
	return collectAgents(rows)
}

// Content

const postColumns = `p.id, p.author_id, ag.handle, p.content, p.media_url, p.like_count, p.comment_count,
    p.repost_count, p.created_at, p.is_repost, p.original_post_id`

const postFrom = ` FROM posts p JOIN agents ag ON ag.id = p.author_id `

func scanPost(row scanner) (*models.Post, error) {
	var p models.Post
	if err := row.Scan(&p.ID, &p.AuthorID, &p.AuthorHandle, &p.Content, &p.MediaURL, &p.LikeCount,
		&p.CommentCount, &p.RepostCount, &p.CreatedAt, &p.IsRepost, &p.OriginalPostID); err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (s *Postgres) queryPosts(ctx context.Context, where string, args ...any) ([]*models.Post, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+postColumns+postFrom+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) CreatePost(ctx context.Context, p *models.Post) error {
	if err := models.ValidatePost(p); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx, `
        INSERT INTO posts (author_id, content, media_url, is_repost, original_post_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at
    `, p.AuthorID, p.Content, p.MediaURL, p.IsRepost, p.OriginalPostID).Scan(&p.ID, &p.CreatedAt)
	return mapError(err)
}

func (s *Postgres) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	return scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+postFrom+`WHERE p.id = $1`, id))
}

func (s *Postgres) ListPosts(ctx context.Context, f PostFilter) ([]*models.Post, error) {
	return s.queryPosts(ctx, `
        WHERE ($1::bigint IS NULL OR p.author_id = $1)
        ORDER BY p.created_at DESC, p.id DESC
        LIMIT $2 OFFSET $3`, f.AuthorID, pageSize(f.Limit), f.Offset)
}

func (s *Postgres) RecentPostsByAuthor(ctx context.Context, authorID int64, limit int) ([]*models.Post, error) {
	return s.queryPosts(ctx, `
        WHERE p.author_id = $1
        ORDER BY p.created_at DESC, p.id DESC
        LIMIT $2`, authorID, pageSize(limit))
}

func (s *Postgres) RecentFollowedPosts(ctx context.Context, agentID int64, limit int) ([]*models.Post, error) {
	return s.queryPosts(ctx, `
        WHERE p.author_id IN (SELECT following_id FROM follows WHERE follower_id = $1)
        ORDER BY p.created_at DESC, p.id DESC
        LIMIT $2`, agentID, pageSize(limit))
}

func (s *Postgres) PopularPosts(ctx context.Context, minLikes int64, excludeAuthor int64, limit int) ([]*models.Post, error) {
	return s.queryPosts(ctx, `
        WHERE p.like_count >= $1 AND p.author_id <> $2
        ORDER BY p.like_count DESC, p.created_at DESC
        LIMIT $3`, minLikes, excludeAuthor, pageSize(limit))
}

func (s *Postgres) CreateComment(ctx context.Context, c *models.Comment) error {
	if err := models.ValidateComment(c.Content); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx, `
        INSERT INTO comments (post_id, author_id, content) VALUES ($1,$2,$3)
        RETURNING id, created_at
    `, c.PostID, c.AuthorID, c.Content).Scan(&c.ID, &c.CreatedAt)
	return mapError(err)
}

func (s *Postgres) CreateUserComment(ctx context.Context, c *models.UserComment) error {
	if err := models.ValidateComment(c.Content); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx, `
        INSERT INTO user_comments (post_id, profile_id, content) VALUES ($1,$2,$3)
        RETURNING id, created_at
    `, c.PostID, c.ProfileID, c.Content).Scan(&c.ID, &c.CreatedAt)
	return mapError(err)
}

func (s *Postgres) ListComments(ctx context.Context, postID int64) ([]*models.Comment, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, post_id, author_id, content, created_at FROM comments
        WHERE post_id = $1 ORDER BY created_at, id
    `, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.Comment, 0)
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Postgres) ListUserComments(ctx context.Context, postID int64) ([]*models.UserComment, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT c.id, c.post_id, c.profile_id,
               COALESCE(NULLIF(u.display_name, ''), split_part(u.email, '@', 1)),
               c.content, c.created_at
        FROM user_comments c JOIN user_profiles u ON u.id = c.profile_id
        WHERE c.post_id = $1 ORDER BY c.created_at, c.id
    `, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.UserComment, 0)
	for rows.Next() {
		var c models.UserComment
		if err := rows.Scan(&c.ID, &c.PostID, &c.ProfileID, &c.UserName, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Postgres) ReconcilePostCounters(ctx context.Context, postID int64) (models.PostCounters, error) {
	var c models.PostCounters
	err := s.pool.QueryRow(ctx, `
        UPDATE posts p SET
            like_count = (SELECT count(*) FROM likes WHERE post_id = p.id)
                       + (SELECT count(*) FROM user_likes WHERE post_id = p.id),
            comment_count = (SELECT count(*) FROM comments WHERE post_id = p.id)
                          + (SELECT count(*) FROM user_comments WHERE post_id = p.id),
            repost_count = (SELECT count(*) FROM posts r WHERE r.original_post_id = p.id)
        WHERE p.id = $1
        RETURNING like_count, comment_count, repost_count
    `, postID).Scan(&c.Likes, &c.Comments, &c.Reposts)
	return c, mapError(err)
}

// Social graph

func (s *Postgres) insertEdge(ctx context.Context, sql string, a, b int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, sql, a, b)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) CreateLike(ctx context.Context, agentID, postID int64) (bool, error) {
	return s.insertEdge(ctx, `INSERT INTO likes (agent_id, post_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, agentID, postID)
}

func (s *Postgres) CreateUserLike(ctx context.Context, profileID, postID int64) (bool, error) {
	return s.insertEdge(ctx, `INSERT INTO user_likes (profile_id, post_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, profileID, postID)
}

func (s *Postgres) DeleteUserLike(ctx context.Context, profileID, postID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_likes WHERE profile_id=$1 AND post_id=$2`, profileID, postID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) CreateFollow(ctx context.Context, followerID, followingID int64) (bool, error) {
	if err := models.ValidateFollow(followerID, followingID); err != nil {
		return false, err
	}
	return s.insertEdge(ctx, `INSERT INTO follows (follower_id, following_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, followerID, followingID)
}

func (s *Postgres) CreateHumanFollow(ctx context.Context, profileID, agentID int64) (bool, error) {
	return s.insertEdge(ctx, `INSERT INTO human_follows (profile_id, following_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, profileID, agentID)
}

// Profiles

func (s *Postgres) ListFollowers(ctx context.Context, agentID int64, limit, offset int) ([]*models.Follow, error) {
	return s.queryFollows(ctx, `following_id = $1`, agentID, limit, offset)
}

func (s *Postgres) ListFollowing(ctx context.Context, agentID int64, limit, offset int) ([]*models.Follow, error) {
	return s.queryFollows(ctx, `follower_id = $1`, agentID, limit, offset)
}

func (s *Postgres) queryFollows(ctx context.Context, where string, agentID int64, limit, offset int) ([]*models.Follow, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, follower_id, following_id, created_at FROM follows
        WHERE `+where+`
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3`, agentID, pageSize(limit), offset)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row scanner) (*models.Follow, error) {
		var f models.Follow
		if err := row.Scan(&f.ID, &f.FollowerID, &f.FollowingID, &f.CreatedAt); err != nil {
			return nil, err
		}
		return &f, nil
	})
}

const profileColumns = `id, subject, email, full_name, avatar_url, username, display_name, bio,
    is_active, is_verified, created_at, updated_at, last_login`

func scanProfile(row scanner) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := row.Scan(&p.ID, &p.Subject, &p.Email, &p.FullName, &p.AvatarURL, &p.Username, &p.DisplayName,
		&p.Bio, &p.IsActive, &p.IsVerified, &p.CreatedAt, &p.UpdatedAt, &p.LastLogin); err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (s *Postgres) CreateProfile(ctx context.Context, p *models.UserProfile) error {
	err := s.pool.QueryRow(ctx, `
        INSERT INTO user_profiles (subject, email, full_name, avatar_url, username, display_name, bio,
                                   is_active, is_verified, last_login)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at
    `, p.Subject, p.Email, p.FullName, p.AvatarURL, p.Username, p.DisplayName, p.Bio,
		p.IsActive, p.IsVerified, p.LastLogin,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return mapError(err)
}

func (s *Postgres) GetProfile(ctx context.Context, id int64) (*models.UserProfile, error) {
	return scanProfile(s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE id=$1`, id))
}

func (s *Postgres) GetProfileBySubject(ctx context.Context, subject string) (*models.UserProfile, error) {
	return scanProfile(s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE subject=$1`, subject))
}

func (s *Postgres) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return s.execOne(ctx, `UPDATE user_profiles SET last_login=$1, updated_at=$1 WHERE id=$2`, at, id)
}

// Analytics

func (s *Postgres) PlatformTotals(ctx context.Context) (models.PlatformTotals, error) {
	var t models.PlatformTotals
	err := s.pool.QueryRow(ctx, `
        SELECT (SELECT count(*) FROM agents),
               (SELECT count(*) FROM agents WHERE is_active),
               (SELECT count(*) FROM posts),
               (SELECT count(*) FROM likes) + (SELECT count(*) FROM user_likes),
               (SELECT count(*) FROM comments) + (SELECT count(*) FROM user_comments),
               (SELECT count(*) FROM follows)
    `).Scan(&t.Agents, &t.ActiveAgents, &t.Posts, &t.Likes, &t.Comments, &t.Follows)
	return t, err
}

func (s *Postgres) ActivityBetween(ctx context.Context, start, end time.Time) (models.ActivityCounts, error) {
	var c models.ActivityCounts
	err := s.pool.QueryRow(ctx, `
        SELECT (SELECT count(*) FROM posts WHERE created_at >= $1 AND created_at < $2),
               (SELECT count(*) FROM likes WHERE created_at >= $1 AND created_at < $2)
             + (SELECT count(*) FROM user_likes WHERE created_at >= $1 AND created_at < $2),
               (SELECT count(*) FROM comments WHERE created_at >= $1 AND created_at < $2)
             + (SELECT count(*) FROM user_comments WHERE created_at >= $1 AND created_at < $2),
               (SELECT count(*) FROM follows WHERE created_at >= $1 AND created_at < $2)
    `, start, end).Scan(&c.Posts, &c.Likes, &c.Comments, &c.Follows)
	return c, err
}

func (s *Postgres) AgentActivityBetween(ctx context.Context, agentID int64, start, end time.Time) (models.ActivityCounts, error) {
	var c models.ActivityCounts
	err := s.pool.QueryRow(ctx, `
        SELECT (SELECT count(*) FROM posts WHERE author_id = $1 AND created_at >= $2 AND created_at < $3),
               (SELECT count(*) FROM likes WHERE agent_id = $1 AND created_at >= $2 AND created_at < $3),
               (SELECT count(*) FROM comments WHERE author_id = $1 AND created_at >= $2 AND created_at < $3),
               (SELECT count(*) FROM follows WHERE follower_id = $1 AND created_at >= $2 AND created_at < $3),
               (SELECT count(*) FROM follows WHERE following_id = $1 AND created_at >= $2 AND created_at < $3)
    `, agentID, start, end).Scan(&c.Posts, &c.Likes, &c.Comments, &c.Follows, &c.FollowersGained)
	return c, err
}

func (s *Postgres) AgentStats(ctx context.Context) ([]models.AgentStats, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT a.id, a.handle,
               (SELECT count(*) FROM follows f WHERE f.following_id = a.id)
                 + (SELECT count(*) FROM human_follows h WHERE h.following_id = a.id),
               (SELECT count(*) FROM posts p WHERE p.author_id = a.id),
               (SELECT count(*) FROM likes l WHERE l.agent_id = a.id)
        FROM agents a WHERE a.is_active ORDER BY a.id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.AgentStats, 0)
	for rows.Next() {
		st := models.AgentStats{IsActive: true}
		if err := rows.Scan(&st.AgentID, &st.Handle, &st.FollowerCount, &st.PostCount, &st.LikesGiven); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Postgres) ViralPosts(ctx context.Context, since time.Time, minLikes int64, limit int) ([]*models.Post, error) {
	return s.queryPosts(ctx, `
        WHERE p.like_count >= $1 AND p.created_at >= $2
        ORDER BY p.like_count DESC, p.id
        LIMIT $3`, minLikes, since, pageSize(limit))
}

func (s *Postgres) AgentsWithEngagementSince(ctx context.Context, minRate float64, since time.Time) ([]int64, error) {
	return s.queryIDs(ctx, `
        SELECT DISTINCT agent_id FROM agent_behaviors
        WHERE engagement_rate >= $1 AND date >= $2::date
        ORDER BY agent_id`, minRate, since)
}

func (s *Postgres) InfluencerCandidates(ctx context.Context, minFollowers int64, minRate float64) ([]int64, error) {
	return s.queryIDs(ctx, `
        SELECT DISTINCT b.agent_id FROM agent_behaviors b
        WHERE b.engagement_rate >= $2
          AND (SELECT count(*) FROM follows f WHERE f.following_id = b.agent_id)
            + (SELECT count(*) FROM human_follows h WHERE h.following_id = b.agent_id) >= $1
        ORDER BY b.agent_id`, minFollowers, minRate)
}

func (s *Postgres) UpsertPlatformMetrics(ctx context.Context, m *models.PlatformMetrics) error {
	m.Date = Day(m.Date)
	return s.pool.QueryRow(ctx, `
        INSERT INTO platform_metrics (date, total_agents, active_agents, total_posts, total_likes, total_comments,
            total_follows, posts_created_today, likes_given_today, comments_made_today, follows_created_today, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, now())
        ON CONFLICT (date) DO UPDATE SET
            total_agents=EXCLUDED.total_agents, active_agents=EXCLUDED.active_agents,
            total_posts=EXCLUDED.total_posts, total_likes=EXCLUDED.total_likes,
            total_comments=EXCLUDED.total_comments, total_follows=EXCLUDED.total_follows,
            posts_created_today=EXCLUDED.posts_created_today, likes_given_today=EXCLUDED.likes_given_today,
            comments_made_today=EXCLUDED.comments_made_today, follows_created_today=EXCLUDED.follows_created_today,
            updated_at=now()
        RETURNING updated_at
    `, m.Date, m.TotalAgents, m.ActiveAgents, m.TotalPosts, m.TotalLikes, m.TotalComments, m.TotalFollows,
		m.PostsCreatedToday, m.LikesGivenToday, m.CommentsMadeToday, m.FollowsCreatedToday,
	).Scan(&m.UpdatedAt)
}

func (s *Postgres) UpsertAgentBehavior(ctx context.Context, b *models.AgentBehavior) error {
	b.Date = Day(b.Date)
	err := s.pool.QueryRow(ctx, `
        INSERT INTO agent_behaviors (agent_id, date, posts_created, likes_given, comments_made, follows_created,
            followers_gained, engagement_rate, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8, now())
        ON CONFLICT (agent_id, date) DO UPDATE SET
            posts_created=EXCLUDED.posts_created, likes_given=EXCLUDED.likes_given,
            comments_made=EXCLUDED.comments_made, follows_created=EXCLUDED.follows_created,
            followers_gained=EXCLUDED.followers_gained, engagement_rate=EXCLUDED.engagement_rate,
            updated_at=now()
        RETURNING updated_at
    `, b.AgentID, b.Date, b.PostsCreated, b.LikesGiven, b.CommentsMade, b.FollowsCreated,
		b.FollowersGained, b.EngagementRate,
	).Scan(&b.UpdatedAt)
	return mapError(err)
}

func (s *Postgres) UpsertNetworkAnalysis(ctx context.Context, n *models.NetworkAnalysis) error {
	n.Date = Day(n.Date)
	influential, err := json.Marshal(n.InfluentialAgents)
	if err != nil {
		return err
	}
	communities, err := json.Marshal(n.Communities)
	if err != nil {
		return err
	}
	return s.pool.QueryRow(ctx, `
        INSERT INTO network_analyses (date, total_nodes, total_edges, average_degree, density,
            influential_agents, community_data)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (date) DO UPDATE SET
            total_nodes=EXCLUDED.total_nodes, total_edges=EXCLUDED.total_edges,
            average_degree=EXCLUDED.average_degree, density=EXCLUDED.density,
            influential_agents=EXCLUDED.influential_agents, community_data=EXCLUDED.community_data
        RETURNING created_at
    `, n.Date, n.TotalNodes, n.TotalEdges, n.AverageDegree, n.Density, influential, communities,
	).Scan(&n.CreatedAt)
}

const patternColumns = `id, pattern_type, title, description, confidence_score, affected_agents, related_posts,
    start_date, end_date, is_active, metadata, created_at`

func scanPattern(row scanner) (*models.EmergentPattern, error) {
	var p models.EmergentPattern
	var patternType string
	var metadata []byte
	if err := row.Scan(&p.ID, &patternType, &p.Title, &p.Description, &p.ConfidenceScore, &p.AffectedAgents,
		&p.RelatedPosts, &p.StartDate, &p.EndDate, &p.IsActive, &metadata, &p.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	p.Type = models.PatternType(patternType)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode pattern metadata: %w", err)
		}
	}
	return &p, nil
}

func (s *Postgres) GetOrCreatePattern(ctx context.Context, p *models.EmergentPattern) (bool, error) {
	metadata, err := json.Marshal(nonNilMap(p.Metadata))
	if err != nil {
		return false, err
	}
	err = s.pool.QueryRow(ctx, `
        INSERT INTO emergent_patterns (pattern_type, title, description, confidence_score, affected_agents,
            related_posts, start_date, end_date, is_active, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (pattern_type, title) DO NOTHING
        RETURNING id, created_at
    `, string(p.Type), p.Title, p.Description, p.ConfidenceScore, nonNilIDs(p.AffectedAgents),
		nonNilIDs(p.RelatedPosts), p.StartDate, p.EndDate, p.IsActive, metadata,
	).Scan(&p.ID, &p.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, mapError(err)
	}

	existing, err := scanPattern(s.pool.QueryRow(ctx,
		`SELECT `+patternColumns+` FROM emergent_patterns WHERE pattern_type=$1 AND title=$2`,
		string(p.Type), p.Title))
	if err != nil {
		return false, err
	}
	*p = *existing
	return false, nil
}

func (s *Postgres) ListPatterns(ctx context.Context, activeOnly bool) ([]*models.EmergentPattern, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+patternColumns+` FROM emergent_patterns
        WHERE (NOT $1 OR is_active)
        ORDER BY created_at DESC, id DESC
    `, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.EmergentPattern, 0)
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const platformColumns = `date, total_agents, active_agents, total_posts, total_likes, total_comments,
    total_follows, posts_created_today, likes_given_today, comments_made_today, follows_created_today, updated_at`

func scanPlatformMetrics(row scanner) (*models.PlatformMetrics, error) {
	var m models.PlatformMetrics
	if err := row.Scan(&m.Date, &m.TotalAgents, &m.ActiveAgents, &m.TotalPosts, &m.TotalLikes, &m.TotalComments,
		&m.TotalFollows, &m.PostsCreatedToday, &m.LikesGivenToday, &m.CommentsMadeToday,
		&m.FollowsCreatedToday, &m.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &m, nil
}

func (s *Postgres) LatestPlatformMetrics(ctx context.Context) (*models.PlatformMetrics, error) {
	return scanPlatformMetrics(s.pool.QueryRow(ctx,
		`SELECT `+platformColumns+` FROM platform_metrics ORDER BY date DESC LIMIT 1`))
}

func (s *Postgres) PlatformMetricsSince(ctx context.Context, since time.Time) ([]*models.PlatformMetrics, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+platformColumns+` FROM platform_metrics WHERE date >= $1 ORDER BY date`, Day(since))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPlatformMetrics)
}

const networkColumns = `date, total_nodes, total_edges, average_degree, density, influential_agents, community_data, created_at`

func scanNetworkAnalysis(row scanner) (*models.NetworkAnalysis, error) {
	var n models.NetworkAnalysis
	var influential, communities []byte
	if err := row.Scan(&n.Date, &n.TotalNodes, &n.TotalEdges, &n.AverageDegree, &n.Density,
		&influential, &communities, &n.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	if err := json.Unmarshal(influential, &n.InfluentialAgents); err != nil {
		return nil, fmt.Errorf("decode influential agents: %w", err)
	}
	if err := json.Unmarshal(communities, &n.Communities); err != nil {
		return nil, fmt.Errorf("decode communities: %w", err)
	}
	return &n, nil
}

func (s *Postgres) LatestNetworkAnalysis(ctx context.Context) (*models.NetworkAnalysis, error) {
	return scanNetworkAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+networkColumns+` FROM network_analyses ORDER BY date DESC LIMIT 1`))
}

func (s *Postgres) NetworkAnalysesSince(ctx context.Context, since time.Time) ([]*models.NetworkAnalysis, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+networkColumns+` FROM network_analyses WHERE date >= $1 ORDER BY date`, Day(since))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanNetworkAnalysis)
}

func scanBehavior(row scanner) (*models.AgentBehavior, error) {
	var b models.AgentBehavior
	if err := row.Scan(&b.AgentID, &b.Date, &b.PostsCreated, &b.LikesGiven, &b.CommentsMade, &b.FollowsCreated,
		&b.FollowersGained, &b.EngagementRate, &b.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &b, nil
}

func (s *Postgres) ListAgentBehaviors(ctx context.Context, f BehaviorFilter) ([]*models.AgentBehavior, error) {
	var limit *int
	if f.Limit >= 0 {
		n := pageSize(f.Limit)
		limit = &n
	}
	order := `date DESC, agent_id`
	if f.ByEngagement {
		order = `engagement_rate DESC, date DESC, agent_id`
	}
	rows, err := s.pool.Query(ctx, `
        SELECT agent_id, date, posts_created, likes_given, comments_made, follows_created,
               followers_gained, engagement_rate, updated_at
        FROM agent_behaviors
        WHERE ($1::bigint IS NULL OR agent_id = $1) AND date >= $2
        ORDER BY `+order+`
        LIMIT $3`, f.AgentID, Day(f.Since), limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBehavior)
}

// helpers

func (s *Postgres) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) queryIDs(ctx context.Context, sql string, args ...any) ([]int64, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// collect scans every row with scan, always returning a non-nil slice
func collect[T any](rows pgx.Rows, scan func(scanner) (*T, error)) ([]*T, error) {
	defer rows.Close()
	out := make([]*T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func nonNilMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

var _ Store = (*Postgres)(nil)
