package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jeffepok/botnet/pkg/models"
)

type edge struct{ from, to int64 }

// Memory is a threadsafe in-memory Store for the local simulator and tests
type Memory struct {
	mu sync.RWMutex

	agents   map[int64]*models.Agent
	handles  map[string]int64
	posts    map[int64]*models.Post
	comments []*models.Comment
	uComment []*models.UserComment

	likes        map[edge]*models.Like
	userLikes    map[edge]*models.UserLike
	follows      map[edge]*models.Follow
	humanFollows map[edge]*models.HumanFollow

	profiles map[int64]*models.UserProfile
	subjects map[string]int64
	emails   map[string]int64

	platform  map[time.Time]*models.PlatformMetrics
	behaviors map[edge]*models.AgentBehavior // (agent id, day unix)
	network   map[time.Time]*models.NetworkAnalysis
	patterns  []*models.EmergentPattern

	seq int64
	now func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		agents:       make(map[int64]*models.Agent),
		handles:      make(map[string]int64),
		posts:        make(map[int64]*models.Post),
		likes:        make(map[edge]*models.Like),
		userLikes:    make(map[edge]*models.UserLike),
		follows:      make(map[edge]*models.Follow),
		humanFollows: make(map[edge]*models.HumanFollow),
		profiles:     make(map[int64]*models.UserProfile),
		subjects:     make(map[string]int64),
		emails:       make(map[string]int64),
		platform:     make(map[time.Time]*models.PlatformMetrics),
		behaviors:    make(map[edge]*models.AgentBehavior),
		network:      make(map[time.Time]*models.NetworkAnalysis),
		now:          time.Now,
	}
}

// SetClock replaces the clock used for created_at stamps
func (s *Memory) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Memory) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Memory) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

// Agents

func (s *Memory) CreateAgent(ctx context.Context, a *models.Agent) error {
	if err := models.ValidateAgent(a); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handles[a.Handle]; ok {
		return fmt.Errorf("agent %q: %w", a.Handle, ErrDuplicate)
	}
	a.ID = s.nextID()
	a.CreatedAt = s.stamp(a.CreatedAt)
	if a.LastActivity.IsZero() {
		a.LastActivity = a.CreatedAt
	}
	s.agents[a.ID] = cloneAgent(a)
	s.handles[a.Handle] = a.ID
	return nil
}

func (s *Memory) GetAgent(ctx context.Context, id int64) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.withCounts(a), nil
}

func (s *Memory) GetAgentByHandle(ctx context.Context, handle string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.handles[models.NormalizeHandle(handle)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.withCounts(s.agents[id]), nil
}

func (s *Memory) ListAgents(ctx context.Context, f AgentFilter) ([]*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Agent, 0)
	for _, id := range s.sortedAgentIDs() {
		a := s.agents[id]
		if f.ActiveOnly && !a.IsActive {
			continue
		}
		out = append(out, s.withCounts(a))
	}
	return paginate(out, f.Limit, f.Offset), nil
}

func (s *Memory) UpdateAgent(ctx context.Context, a *models.Agent) error {
	if err := models.ValidateAgent(a); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.agents[a.ID]
	if !ok {
		return ErrNotFound
	}
	if other, taken := s.handles[a.Handle]; taken && other != a.ID {
		return fmt.Errorf("agent %q: %w", a.Handle, ErrDuplicate)
	}
	delete(s.handles, old.Handle)
	a.CreatedAt = old.CreatedAt
	s.agents[a.ID] = cloneAgent(a)
	s.handles[a.Handle] = a.ID
	return nil
}

func (s *Memory) SetAgentActive(ctx context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return ErrNotFound
	}
	a.IsActive = active
	return nil
}

func (s *Memory) TouchAgent(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return ErrNotFound
	}
	a.LastActivity = at
	return nil
}

func (s *Memory) ActiveAgentIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0)
	for _, id := range s.sortedAgentIDs() {
		if s.agents[id].IsActive {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Memory) DiscoveryCandidates(ctx context.Context, agentID int64) ([]*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Agent, 0)
	for _, id := range s.sortedAgentIDs() {
		a := s.agents[id]
		if id == agentID || !a.IsActive {
			continue
		}
		if _, following := s.follows[edge{agentID, id}]; following {
			continue
		}
		out = append(out, s.withCounts(a))
	}
	return out, nil
}

// Content

func (s *Memory) CreatePost(ctx context.Context, p *models.Post) error {
	if err := models.ValidatePost(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[p.AuthorID]; !ok {
		return fmt.Errorf("author %d: %w", p.AuthorID, ErrNotFound)
	}
	if p.IsRepost {
		if _, ok := s.posts[*p.OriginalPostID]; !ok {
			return fmt.Errorf("original post %d: %w", *p.OriginalPostID, ErrNotFound)
		}
	}
	p.ID = s.nextID()
	p.CreatedAt = s.stamp(p.CreatedAt)
	p.LikeCount, p.CommentCount, p.RepostCount = 0, 0, 0
	s.posts[p.ID] = clonePost(p)
	return nil
}

func (s *Memory) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.decoratePost(p), nil
}

func (s *Memory) ListPosts(ctx context.Context, f PostFilter) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterPosts(func(p *models.Post) bool {
		return f.AuthorID == nil || p.AuthorID == *f.AuthorID
	})
	return paginate(out, f.Limit, f.Offset), nil
}

func (s *Memory) RecentPostsByAuthor(ctx context.Context, authorID int64, limit int) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterPosts(func(p *models.Post) bool { return p.AuthorID == authorID })
	return paginate(out, limit, 0), nil
}

func (s *Memory) RecentFollowedPosts(ctx context.Context, agentID int64, limit int) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterPosts(func(p *models.Post) bool {
		_, ok := s.follows[edge{agentID, p.AuthorID}]
		return ok
	})
	return paginate(out, limit, 0), nil
}

func (s *Memory) PopularPosts(ctx context.Context, minLikes int64, excludeAuthor int64, limit int) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterPosts(func(p *models.Post) bool {
		return p.LikeCount >= minLikes && p.AuthorID != excludeAuthor
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].LikeCount > out[j].LikeCount })
	return paginate(out, limit, 0), nil
}

func (s *Memory) CreateComment(ctx context.Context, c *models.Comment) error {
	if err := models.ValidateComment(c.Content); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[c.PostID]; !ok {
		return fmt.Errorf("post %d: %w", c.PostID, ErrNotFound)
	}
	if _, ok := s.agents[c.AuthorID]; !ok {
		return fmt.Errorf("agent %d: %w", c.AuthorID, ErrNotFound)
	}
	c.ID = s.nextID()
	c.CreatedAt = s.stamp(c.CreatedAt)
	cp := *c
	s.comments = append(s.comments, &cp)
	return nil
}

func (s *Memory) CreateUserComment(ctx context.Context, c *models.UserComment) error {
	if err := models.ValidateComment(c.Content); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[c.PostID]; !ok {
		return fmt.Errorf("post %d: %w", c.PostID, ErrNotFound)
	}
	if _, ok := s.profiles[c.ProfileID]; !ok {
		return fmt.Errorf("profile %d: %w", c.ProfileID, ErrNotFound)
	}
	c.ID = s.nextID()
	c.CreatedAt = s.stamp(c.CreatedAt)
	cp := *c
	s.uComment = append(s.uComment, &cp)
	return nil
}

func (s *Memory) ListComments(ctx context.Context, postID int64) ([]*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Comment, 0)
	for _, c := range s.comments {
		if c.PostID == postID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Memory) ListUserComments(ctx context.Context, postID int64) ([]*models.UserComment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.UserComment, 0)
	for _, c := range s.uComment {
		if c.PostID == postID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Memory) ReconcilePostCounters(ctx context.Context, postID int64) (models.PostCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return models.PostCounters{}, ErrNotFound
	}
	var c models.PostCounters
	for e := range s.likes {
		if e.to == postID {
			c.Likes++
		}
	}
	for e := range s.userLikes {
		if e.to == postID {
			c.Likes++
		}
	}
	for _, cm := range s.comments {
		if cm.PostID == postID {
			c.Comments++
		}
	}
	for _, cm := range s.uComment {
		if cm.PostID == postID {
			c.Comments++
		}
	}
	for _, other := range s.posts {
		if other.OriginalPostID != nil && *other.OriginalPostID == postID {
			c.Reposts++
		}
	}
	p.LikeCount, p.CommentCount, p.RepostCount = c.Likes, c.Comments, c.Reposts
	return c, nil
}

// Social graph

func (s *Memory) CreateLike(ctx context.Context, agentID, postID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agentID]; !ok {
		return false, fmt.Errorf("agent %d: %w", agentID, ErrNotFound)
	}
	if _, ok := s.posts[postID]; !ok {
		return false, fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	e := edge{agentID, postID}
	if _, ok := s.likes[e]; ok {
		return false, nil
	}
	s.likes[e] = &models.Like{ID: s.nextID(), AgentID: agentID, PostID: postID, CreatedAt: s.now()}
	return true, nil
}

func (s *Memory) CreateUserLike(ctx context.Context, profileID, postID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profileID]; !ok {
		return false, fmt.Errorf("profile %d: %w", profileID, ErrNotFound)
	}
	if _, ok := s.posts[postID]; !ok {
		return false, fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	e := edge{profileID, postID}
	if _, ok := s.userLikes[e]; ok {
		return false, nil
	}
	s.userLikes[e] = &models.UserLike{ID: s.nextID(), ProfileID: profileID, PostID: postID, CreatedAt: s.now()}
	return true, nil
}

func (s *Memory) DeleteUserLike(ctx context.Context, profileID, postID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := edge{profileID, postID}
	if _, ok := s.userLikes[e]; !ok {
		return false, nil
	}
	delete(s.userLikes, e)
	return true, nil
}

func (s *Memory) CreateFollow(ctx context.Context, followerID, followingID int64) (bool, error) {
	if err := models.ValidateFollow(followerID, followingID); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range []int64{followerID, followingID} {
		if _, ok := s.agents[id]; !ok {
			return false, fmt.Errorf("agent %d: %w", id, ErrNotFound)
		}
	}
	e := edge{followerID, followingID}
	if _, ok := s.follows[e]; ok {
		return false, nil
	}
	s.follows[e] = &models.Follow{ID: s.nextID(), FollowerID: followerID, FollowingID: followingID, CreatedAt: s.now()}
	return true, nil
}

func (s *Memory) CreateHumanFollow(ctx context.Context, profileID, agentID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profileID]; !ok {
		return false, fmt.Errorf("profile %d: %w", profileID, ErrNotFound)
	}
	if _, ok := s.agents[agentID]; !ok {
		return false, fmt.Errorf("agent %d: %w", agentID, ErrNotFound)
	}
	e := edge{profileID, agentID}
	if _, ok := s.humanFollows[e]; ok {
		return false, nil
	}
	s.humanFollows[e] = &models.HumanFollow{ID: s.nextID(), ProfileID: profileID, FollowingID: agentID, CreatedAt: s.now()}
	return true, nil
}

func (s *Memory) ListFollowers(ctx context.Context, agentID int64, limit, offset int) ([]*models.Follow, error) {
	return s.listFollows(func(e edge) bool { return e.to == agentID }, limit, offset), nil
}

func (s *Memory) ListFollowing(ctx context.Context, agentID int64, limit, offset int) ([]*models.Follow, error) {
	return s.listFollows(func(e edge) bool { return e.from == agentID }, limit, offset), nil
}

// listFollows returns matching follows newest first
func (s *Memory) listFollows(keep func(edge) bool, limit, offset int) []*models.Follow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Follow, 0)
	for e, f := range s.follows {
		if keep(e) {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, limit, offset)
}

// Profiles

func (s *Memory) CreateProfile(ctx context.Context, p *models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subjects[p.Subject]; ok {
		return fmt.Errorf("profile %q: %w", p.Subject, ErrDuplicate)
	}
	if _, ok := s.emails[p.Email]; ok {
		return fmt.Errorf("profile email %q: %w", p.Email, ErrDuplicate)
	}
	p.ID = s.nextID()
	p.CreatedAt = s.stamp(p.CreatedAt)
	p.UpdatedAt = p.CreatedAt
	cp := *p
	s.profiles[p.ID] = &cp
	s.subjects[p.Subject] = p.ID
	s.emails[p.Email] = p.ID
	return nil
}

func (s *Memory) GetProfile(ctx context.Context, id int64) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Memory) GetProfileBySubject(ctx context.Context, subject string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.subjects[subject]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.profiles[id]
	return &cp, nil
}

func (s *Memory) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return ErrNotFound
	}
	p.LastLogin = &at
	p.UpdatedAt = at
	return nil
}

// Analytics

func (s *Memory) PlatformTotals(ctx context.Context) (models.PlatformTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := models.PlatformTotals{
		Agents:   int64(len(s.agents)),
		Posts:    int64(len(s.posts)),
		Likes:    int64(len(s.likes) + len(s.userLikes)),
		Comments: int64(len(s.comments) + len(s.uComment)),
		Follows:  int64(len(s.follows)),
	}
	for _, a := range s.agents {
		if a.IsActive {
			t.ActiveAgents++
		}
	}
	return t, nil
}

func (s *Memory) ActivityBetween(ctx context.Context, start, end time.Time) (models.ActivityCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in := func(t time.Time) bool { return !t.Before(start) && t.Before(end) }
	var c models.ActivityCounts
	for _, p := range s.posts {
		if in(p.CreatedAt) {
			c.Posts++
		}
	}
	for _, l := range s.likes {
		if in(l.CreatedAt) {
			c.Likes++
		}
	}
	for _, l := range s.userLikes {
		if in(l.CreatedAt) {
			c.Likes++
		}
	}
	for _, cm := range s.comments {
		if in(cm.CreatedAt) {
			c.Comments++
		}
	}
	for _, cm := range s.uComment {
		if in(cm.CreatedAt) {
			c.Comments++
		}
	}
	for _, f := range s.follows {
		if in(f.CreatedAt) {
			c.Follows++
		}
	}
	return c, nil
}

func (s *Memory) AgentActivityBetween(ctx context.Context, agentID int64, start, end time.Time) (models.ActivityCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in := func(t time.Time) bool { return !t.Before(start) && t.Before(end) }
	var c models.ActivityCounts
	for _, p := range s.posts {
		if p.AuthorID == agentID && in(p.CreatedAt) {
			c.Posts++
		}
	}
	for _, l := range s.likes {
		if l.AgentID == agentID && in(l.CreatedAt) {
			c.Likes++
		}
	}
	for _, cm := range s.comments {
		if cm.AuthorID == agentID && in(cm.CreatedAt) {
			c.Comments++
		}
	}
	for _, f := range s.follows {
		if !in(f.CreatedAt) {
			continue
		}
		if f.FollowerID == agentID {
			c.Follows++
		}
		if f.FollowingID == agentID {
			c.FollowersGained++
		}
	}
	return c, nil
}

func (s *Memory) AgentStats(ctx context.Context) ([]models.AgentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AgentStats, 0)
	for _, id := range s.sortedAgentIDs() {
		a := s.agents[id]
		if !a.IsActive {
			continue
		}
		st := models.AgentStats{AgentID: id, Handle: a.Handle, IsActive: true}
		st.FollowerCount = s.followerCount(id)
		for _, p := range s.posts {
			if p.AuthorID == id {
				st.PostCount++
			}
		}
		for e := range s.likes {
			if e.from == id {
				st.LikesGiven++
			}
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Memory) ViralPosts(ctx context.Context, since time.Time, minLikes int64, limit int) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterPosts(func(p *models.Post) bool {
		return p.LikeCount >= minLikes && !p.CreatedAt.Before(since)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].LikeCount > out[j].LikeCount })
	return paginate(out, limit, 0), nil
}

func (s *Memory) AgentsWithEngagementSince(ctx context.Context, minRate float64, since time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]bool)
	for _, b := range s.behaviors {
		if b.EngagementRate >= minRate && !b.Date.Before(since) {
			seen[b.AgentID] = true
		}
	}
	return sortedKeys(seen), nil
}

func (s *Memory) InfluencerCandidates(ctx context.Context, minFollowers int64, minRate float64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]bool)
	for _, b := range s.behaviors {
		if b.EngagementRate >= minRate && s.followerCount(b.AgentID) >= minFollowers {
			seen[b.AgentID] = true
		}
	}
	return sortedKeys(seen), nil
}

func (s *Memory) UpsertPlatformMetrics(ctx context.Context, m *models.PlatformMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Date = Day(m.Date)
	m.UpdatedAt = s.now()
	cp := *m
	s.platform[m.Date] = &cp
	return nil
}

func (s *Memory) UpsertAgentBehavior(ctx context.Context, b *models.AgentBehavior) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[b.AgentID]; !ok {
		return fmt.Errorf("agent %d: %w", b.AgentID, ErrNotFound)
	}
	b.Date = Day(b.Date)
	b.UpdatedAt = s.now()
	cp := *b
	s.behaviors[edge{b.AgentID, b.Date.Unix()}] = &cp
	return nil
}

func (s *Memory) UpsertNetworkAnalysis(ctx context.Context, n *models.NetworkAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.Date = Day(n.Date)
	n.CreatedAt = s.stamp(n.CreatedAt)
	cp := *n
	s.network[n.Date] = &cp
	return nil
}

func (s *Memory) GetOrCreatePattern(ctx context.Context, p *models.EmergentPattern) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.patterns {
		if existing.Type == p.Type && existing.Title == p.Title {
			*p = *clonePattern(existing)
			return false, nil
		}
	}
	p.ID = s.nextID()
	p.CreatedAt = s.stamp(p.CreatedAt)
	s.patterns = append(s.patterns, clonePattern(p))
	return true, nil
}

func (s *Memory) ListPatterns(ctx context.Context, activeOnly bool) ([]*models.EmergentPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.EmergentPattern, 0)
	for i := len(s.patterns) - 1; i >= 0; i-- {
		if activeOnly && !s.patterns[i].IsActive {
			continue
		}
		out = append(out, clonePattern(s.patterns[i]))
	}
	return out, nil
}

func (s *Memory) LatestPlatformMetrics(ctx context.Context) (*models.PlatformMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.PlatformMetrics
	for d, m := range s.platform {
		if latest == nil || d.After(latest.Date) {
			latest = m
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *Memory) LatestNetworkAnalysis(ctx context.Context) (*models.NetworkAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.NetworkAnalysis
	for d, n := range s.network {
		if latest == nil || d.After(latest.Date) {
			latest = n
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *Memory) ListAgentBehaviors(ctx context.Context, f BehaviorFilter) ([]*models.AgentBehavior, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	since := Day(f.Since)
	out := make([]*models.AgentBehavior, 0)
	for _, b := range s.behaviors {
		if f.AgentID != nil && b.AgentID != *f.AgentID {
			continue
		}
		if b.Date.Before(since) {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if f.ByEngagement && a.EngagementRate != b.EngagementRate {
			return a.EngagementRate > b.EngagementRate
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.AgentID < b.AgentID
	})
	if f.Limit < 0 {
		return out, nil
	}
	return paginate(out, f.Limit, 0), nil
}

func (s *Memory) PlatformMetricsSince(ctx context.Context, since time.Time) ([]*models.PlatformMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	since = Day(since)
	out := make([]*models.PlatformMetrics, 0)
	for d, m := range s.platform {
		if !d.Before(since) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Memory) NetworkAnalysesSince(ctx context.Context, since time.Time) ([]*models.NetworkAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	since = Day(since)
	out := make([]*models.NetworkAnalysis, 0)
	for d, n := range s.network {
		if !d.Before(since) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// helpers, callers hold the lock

func (s *Memory) sortedAgentIDs() []int64 {
	ids := make([]int64, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Memory) followerCount(agentID int64) int64 {
	var n int64
	for e := range s.follows {
		if e.to == agentID {
			n++
		}
	}
	for e := range s.humanFollows {
		if e.to == agentID {
			n++
		}
	}
	return n
}

func (s *Memory) withCounts(a *models.Agent) *models.Agent {
	out := cloneAgent(a)
	out.FollowerCount = s.followerCount(a.ID)
	for e := range s.follows {
		if e.from == a.ID {
			out.FollowingCount++
		}
	}
	for _, p := range s.posts {
		if p.AuthorID == a.ID {
			out.PostCount++
		}
	}
	return out
}

func (s *Memory) decoratePost(p *models.Post) *models.Post {
	out := clonePost(p)
	if a, ok := s.agents[p.AuthorID]; ok {
		out.AuthorHandle = a.Handle
	}
	return out
}

// filterPosts returns matching posts newest first
func (s *Memory) filterPosts(keep func(*models.Post) bool) []*models.Post {
	out := make([]*models.Post, 0)
	for _, p := range s.posts {
		if keep(p) {
			out = append(out, s.decoratePost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if n := pageSize(limit); len(items) > n {
		items = items[:n]
	}
	return items
}

func sortedKeys(m map[int64]bool) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func cloneAgent(a *models.Agent) *models.Agent {
	cp := *a
	if a.Personality != nil {
		cp.Personality = make(models.Personality, len(a.Personality))
		for k, v := range a.Personality {
			cp.Personality[k] = v
		}
	}
	if a.CreatorID != nil {
		id := *a.CreatorID
		cp.CreatorID = &id
	}
	return &cp
}

func clonePost(p *models.Post) *models.Post {
	cp := *p
	if p.OriginalPostID != nil {
		id := *p.OriginalPostID
		cp.OriginalPostID = &id
	}
	return &cp
}

func clonePattern(p *models.EmergentPattern) *models.EmergentPattern {
	cp := *p
	cp.AffectedAgents = append([]int64(nil), p.AffectedAgents...)
	cp.RelatedPosts = append([]int64(nil), p.RelatedPosts...)
	if p.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

var _ Store = (*Memory)(nil)
