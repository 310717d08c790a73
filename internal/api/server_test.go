package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffepok/botnet/internal/agents"
	"github.com/jeffepok/botnet/internal/auth"
	"github.com/jeffepok/botnet/internal/realtime"
	"github.com/jeffepok/botnet/internal/store"
	"github.com/jeffepok/botnet/pkg/models"
)

// cycleQueue keeps one pending cycle per agent
type cycleQueue struct{ ids []int64 }

func (q *cycleQueue) EnqueueCycle(ctx context.Context, agentID int64) error {
	for _, id := range q.ids {
		if id == agentID {
			return fmt.Errorf("agent_cycle job: %w", agents.ErrAlreadyQueued)
		}
	}
	q.ids = append(q.ids, agentID)
	return nil
}

type testServer struct {
	t        *testing.T
	server   *Server
	store    *store.Memory
	queue    *cycleQueue
	verifier *auth.TokenVerifier
}

func newTestServer(t *testing.T) *testServer {
	mem := store.NewMemory()
	q := &cycleQueue{}
	v := auth.NewTokenVerifier("secret")
	return &testServer{
		t:        t,
		server:   NewServer(0, Deps{Store: mem, Queue: q, Verifier: v}),
		store:    mem,
		queue:    q,
		verifier: v,
	}
}

func (ts *testServer) token(subject, email string) string {
	tok, err := ts.verifier.Sign(&auth.Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(ts.t, err)
	return tok
}

func (ts *testServer) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) agent(handle string) *models.Agent {
	a := &models.Agent{Handle: handle, Provider: models.ProviderLocal, PostingFrequency: 1, InteractionRate: 0.5, IsActive: true}
	models.ApplyAgentDefaults(a)
	require.NoError(ts.t, ts.store.CreateAgent(context.Background(), a))
	return a
}

func (ts *testServer) post(authorID int64, content string) *models.Post {
	p := &models.Post{AuthorID: authorID, Content: content}
	require.NoError(ts.t, ts.store.CreatePost(context.Background(), p))
	return p
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAgent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/agents", `{"handle":"@Nova","provider":"claude"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	agent := decode[models.Agent](t, rec)
	assert.Equal(t, "nova", agent.Handle)
	assert.Equal(t, models.ProviderAnthropic, agent.Provider)
	assert.Equal(t, 1.0, agent.PostingFrequency)
	assert.Equal(t, 0.5, agent.InteractionRate)
	assert.True(t, agent.IsActive)

	rec = ts.do(http.MethodPost, "/api/v1/agents", `{"handle":"nova"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/agents", `{"handle":"bad handle!"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/agents", `{"handle":"rate","interaction_rate":2}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgentLifecycle(t *testing.T) {
	ts := newTestServer(t)
	a := ts.agent("echo")
	ts.agent("lyra")

	rec := ts.do(http.MethodPost, "/api/v1/agents/"+itoa(a.ID)+"/deactivate", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/agents/active", "", "")
	active := decode[[]models.Agent](t, rec)
	require.Len(t, active, 1)
	assert.Equal(t, "lyra", active[0].Handle)

	rec = ts.do(http.MethodGet, "/api/v1/agents/stats", "", "")
	stats := decode[map[string]int64](t, rec)
	assert.Equal(t, int64(2), stats["total_agents"])
	assert.Equal(t, int64(1), stats["active_agents"])

	rec = ts.do(http.MethodPatch, "/api/v1/agents/"+itoa(a.ID), `{"bio":"new bio","posting_frequency":3}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.Agent](t, rec)
	assert.Equal(t, "new bio", updated.Bio)
	assert.Equal(t, 3.0, updated.PostingFrequency)

	rec = ts.do(http.MethodGet, "/api/v1/agents/999", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/agents/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerCycle(t *testing.T) {
	ts := newTestServer(t)
	a := ts.agent("echo")

	rec := ts.do(http.MethodPost, "/api/v1/agents/"+itoa(a.ID)+"/cycle", "", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []int64{a.ID}, ts.queue.ids)

	rec = ts.do(http.MethodPost, "/api/v1/agents/"+itoa(a.ID)+"/cycle", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cycle already queued", decode[map[string]string](t, rec)["status"])

	rec = ts.do(http.MethodPost, "/api/v1/agents/404/cycle", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, ts.queue.ids, 1)
}

func TestCreatePostRepostRules(t *testing.T) {
	ts := newTestServer(t)
	a := ts.agent("echo")
	original := ts.post(a.ID, "hello")

	rec := ts.do(http.MethodPost, "/api/v1/posts", `{"author_id":`+itoa(a.ID)+`,"content":"again","is_repost":true}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := `{"author_id":` + itoa(a.ID) + `,"content":"again","is_repost":true,"original_post_id":` + itoa(original.ID) + `}`
	rec = ts.do(http.MethodPost, "/api/v1/posts", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/v1/posts/"+itoa(original.ID), "", "")
	got := decode[models.Post](t, rec)
	assert.Equal(t, int64(1), got.RepostCount)

	rec = ts.do(http.MethodGet, "/api/v1/posts?author="+itoa(a.ID), "", "")
	assert.Len(t, decode[[]models.Post](t, rec), 2)
}

func TestLikesRequireAuthAndAreIdempotent(t *testing.T) {
	ts := newTestServer(t)
	a := ts.agent("echo")
	p := ts.post(a.ID, "hello")
	path := "/api/v1/posts/" + itoa(p.ID) + "/like"

	rec := ts.do(http.MethodPost, path, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok := ts.token("sub-1", "ada@example.com")
	for i := 0; i < 2; i++ {
		rec = ts.do(http.MethodPost, path, "", tok)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	res := decode[map[string]interface{}](t, rec)
	assert.Equal(t, false, res["changed"])
	assert.Equal(t, float64(1), res["like_count"])

	rec = ts.do(http.MethodDelete, path, "", tok)
	res = decode[map[string]interface{}](t, rec)
	assert.Equal(t, true, res["changed"])
	assert.Equal(t, float64(0), res["like_count"])
}

func TestCommentThreadMergesAgentsAndHumans(t *testing.T) {
	ts := newTestServer(t)
	a := ts.agent("echo")
	p := ts.post(a.ID, "hello")
	require.NoError(t, ts.store.CreateComment(context.Background(), &models.Comment{PostID: p.ID, AuthorID: a.ID, Content: "agent reply"}))

	tok := ts.token("sub-1", "ada@example.com")
	rec := ts.do(http.MethodPost, "/api/v1/posts/"+itoa(p.ID)+"/comments", `{"content":"human reply"}`, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/v1/posts/"+itoa(p.ID)+"/comments", "", "")
	thread := decode[[]models.ThreadEntry](t, rec)
	require.Len(t, thread, 2)
	assert.Equal(t, "agent", thread[0].AuthorKind)
	assert.Equal(t, "human", thread[1].AuthorKind)
	assert.Equal(t, "ada", thread[1].AuthorName)

	rec = ts.do(http.MethodGet, "/api/v1/posts/"+itoa(p.ID), "", "")
	assert.Equal(t, int64(2), decode[models.Post](t, rec).CommentCount)
}

func TestMeAndFollow(t *testing.T) {
	ts := newTestServer(t)
	a := ts.agent("echo")
	tok := ts.token("sub-1", "ada@example.com")

	rec := ts.do(http.MethodGet, "/api/v1/me", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada@example.com", decode[models.UserProfile](t, rec).Email)

	rec = ts.do(http.MethodPost, "/api/v1/agents/"+itoa(a.ID)+"/follow", "", tok)
	assert.Equal(t, true, decode[map[string]bool](t, rec)["created"])
	rec = ts.do(http.MethodPost, "/api/v1/agents/"+itoa(a.ID)+"/follow", "", tok)
	assert.Equal(t, false, decode[map[string]bool](t, rec)["created"])

	rec = ts.do(http.MethodGet, "/api/v1/agents/"+itoa(a.ID), "", "")
	assert.Equal(t, int64(1), decode[models.Agent](t, rec).FollowerCount)
}

func TestAnalyticsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/analytics/platform", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, ts.store.UpsertPlatformMetrics(context.Background(), &models.PlatformMetrics{
		Date:        store.Day(time.Now()),
		TotalAgents: 4,
	}))
	rec = ts.do(http.MethodGet, "/api/v1/analytics/platform", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(4), decode[models.PlatformMetrics](t, rec).TotalAgents)

	rec = ts.do(http.MethodGet, "/api/v1/analytics/patterns", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.EmergentPattern](t, rec))
}

func TestTrendingPosts(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	author := ts.agent("author")
	quiet := ts.post(author.ID, "quiet")
	hot := ts.post(author.ID, "hot")
	for i := 0; i < 5; i++ {
		fan := ts.agent("fan" + strconv.Itoa(i))
		_, err := ts.store.CreateLike(ctx, fan.ID, hot.ID)
		require.NoError(t, err)
		if i < 4 {
			_, err = ts.store.CreateLike(ctx, fan.ID, quiet.ID)
			require.NoError(t, err)
		}
	}
	for _, id := range []int64{quiet.ID, hot.ID} {
		_, err := ts.store.ReconcilePostCounters(ctx, id)
		require.NoError(t, err)
	}

	rec := ts.do(http.MethodGet, "/api/v1/posts/trending", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	posts := decode[[]models.Post](t, rec)
	require.Len(t, posts, 1)
	assert.Equal(t, hot.ID, posts[0].ID)
}

func TestFollowerLists(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	a := ts.agent("a")
	b := ts.agent("b")
	c := ts.agent("c")
	for _, pair := range [][2]int64{{b.ID, a.ID}, {c.ID, a.ID}, {a.ID, b.ID}} {
		_, err := ts.store.CreateFollow(ctx, pair[0], pair[1])
		require.NoError(t, err)
	}

	rec := ts.do(http.MethodGet, "/api/v1/agents/"+itoa(a.ID)+"/followers", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Follow](t, rec), 2)

	rec = ts.do(http.MethodGet, "/api/v1/agents/"+itoa(a.ID)+"/following", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	following := decode[[]models.Follow](t, rec)
	require.Len(t, following, 1)
	assert.Equal(t, b.ID, following[0].FollowingID)

	rec = ts.do(http.MethodGet, "/api/v1/agents/"+itoa(a.ID)+"/followers?limit=1", "", "")
	assert.Len(t, decode[[]models.Follow](t, rec), 1)

	rec = ts.do(http.MethodGet, "/api/v1/agents/999/followers", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(http.MethodGet, "/api/v1/agents/"+itoa(a.ID)+"/following?limit=-1", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBehaviorAndTrendEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	today := store.Day(now)
	ts.server.now = func() time.Time { return now }
	a := ts.agent("a")
	b := ts.agent("b")
	for _, row := range []*models.AgentBehavior{
		{AgentID: a.ID, Date: today, EngagementRate: 2},
		{AgentID: a.ID, Date: today.AddDate(0, 0, -1), EngagementRate: 4},
		{AgentID: b.ID, Date: today, EngagementRate: 6},
		{AgentID: b.ID, Date: today.AddDate(0, 0, -40), EngagementRate: 100},
	} {
		require.NoError(t, ts.store.UpsertAgentBehavior(ctx, row))
	}
	for _, d := range []time.Time{today.AddDate(0, 0, -8), today} {
		require.NoError(t, ts.store.UpsertPlatformMetrics(ctx, &models.PlatformMetrics{Date: d}))
		require.NoError(t, ts.store.UpsertNetworkAnalysis(ctx, &models.NetworkAnalysis{Date: d}))
	}

	rec := ts.do(http.MethodGet, "/api/v1/analytics/behaviors?agent="+itoa(a.ID), "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	mine := decode[[]models.AgentBehavior](t, rec)
	require.Len(t, mine, 2)
	assert.True(t, mine[0].Date.Equal(today), "newest first")

	rec = ts.do(http.MethodGet, "/api/v1/analytics/behaviors", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(http.MethodGet, "/api/v1/analytics/behaviors?agent=999", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/analytics/behaviors/top", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	top := decode[[]models.AgentBehavior](t, rec)
	require.Len(t, top, 3)
	assert.Equal(t, b.ID, top[0].AgentID)
	assert.Equal(t, 6.0, top[0].EngagementRate)

	rec = ts.do(http.MethodGet, "/api/v1/analytics/platform/trend", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.PlatformMetrics](t, rec), 1)
	rec = ts.do(http.MethodGet, "/api/v1/analytics/platform/trend?days=9", "", "")
	assert.Len(t, decode[[]models.PlatformMetrics](t, rec), 2)
	rec = ts.do(http.MethodGet, "/api/v1/analytics/network/trend?days=9", "", "")
	assert.Len(t, decode[[]models.NetworkAnalysis](t, rec), 2)
	rec = ts.do(http.MethodGet, "/api/v1/analytics/network/trend?days=0", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardAndRealtimeStats(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	ts.server.now = func() time.Time { return now }
	ts.store.SetClock(func() time.Time { return now.Add(-10 * time.Minute) })
	a := ts.agent("a")
	b := ts.agent("b")
	p := ts.post(a.ID, "fresh")
	_, err := ts.store.CreateLike(ctx, b.ID, p.ID)
	require.NoError(t, err)
	_, err = ts.store.GetOrCreatePattern(ctx, &models.EmergentPattern{Type: models.PatternViralContent, Title: "Viral", IsActive: true})
	require.NoError(t, err)
	_, err = ts.store.GetOrCreatePattern(ctx, &models.EmergentPattern{Type: models.PatternEchoChamber, Title: "Echo", IsActive: true})
	require.NoError(t, err)
	for _, row := range []*models.AgentBehavior{
		{AgentID: a.ID, Date: now, EngagementRate: 2},
		{AgentID: b.ID, Date: now, EngagementRate: 6},
		{AgentID: b.ID, Date: now.AddDate(0, 0, -30), EngagementRate: 100},
	} {
		require.NoError(t, ts.store.UpsertAgentBehavior(ctx, row))
	}

	rec := ts.do(http.MethodGet, "/api/v1/analytics/dashboard", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[DashboardSummary](t, rec)
	assert.Equal(t, int64(2), summary.TotalAgents)
	assert.Equal(t, int64(1), summary.TotalPosts)
	assert.Equal(t, int64(1), summary.PostsToday)
	assert.Equal(t, int64(1), summary.LikesToday)
	assert.Equal(t, 2, summary.ActivePatterns)
	assert.InDelta(t, 4.0, summary.AverageEngagementRate, 1e-9)

	rec = ts.do(http.MethodGet, "/api/v1/analytics/realtime", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[RealtimeStats](t, rec)
	assert.Equal(t, int64(2), stats.AgentsOnline)
	assert.Equal(t, int64(1), stats.PostsLastHour)
	assert.Equal(t, int64(1), stats.LikesLastHour)
	assert.True(t, stats.Timestamp.Equal(now))

	rec = ts.do(http.MethodGet, "/api/v1/analytics/patterns?type=echo_chamber", "", "")
	patterns := decode[[]models.EmergentPattern](t, rec)
	require.Len(t, patterns, 1)
	assert.Equal(t, "Echo", patterns[0].Title)
}

func TestWritesAreAnnounced(t *testing.T) {
	mem := store.NewMemory()
	hub := realtime.NewHub()
	v := auth.NewTokenVerifier("secret")
	ts := &testServer{t: t, server: NewServer(0, Deps{Store: mem, Verifier: v, Events: hub, Hub: hub}), store: mem, verifier: v}
	sub := hub.Subscribe(realtime.RoomAll)
	defer hub.Unsubscribe(sub)
	a := ts.agent("echo")
	tok := ts.token("sub-1", "ada@example.com")

	rec := ts.do(http.MethodPost, "/api/v1/posts", `{"author_id":`+itoa(a.ID)+`,"content":"hi"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[models.Post](t, rec)
	ts.do(http.MethodPost, "/api/v1/posts/"+itoa(p.ID)+"/like", "", tok)
	ts.do(http.MethodPost, "/api/v1/posts/"+itoa(p.ID)+"/like", "", tok)
	ts.do(http.MethodPost, "/api/v1/posts/"+itoa(p.ID)+"/comments", `{"content":"nice"}`, tok)
	ts.do(http.MethodPost, "/api/v1/agents/"+itoa(a.ID)+"/follow", "", tok)

	var types []string
	for len(sub.C) > 0 {
		e := <-sub.C
		types = append(types, e.Type)
		if e.Type != realtime.PostCreated {
			assert.Equal(t, a.ID, e.TargetID, "human activity is routed to the agent touched")
		}
	}
	assert.Equal(t, []string{realtime.PostCreated, realtime.PostLiked, realtime.CommentAdded, realtime.FollowCreated}, types,
		"a repeated like is not announced")

	rec = ts.do(http.MethodGet, "/ws/social/bad-room", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
