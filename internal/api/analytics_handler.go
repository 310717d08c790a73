package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jeffepok/botnet/internal/store"
	"github.com/jeffepok/botnet/pkg/models"
)

const (
	defaultTrendDays    = 7
	defaultAgentDays    = 30
	maxDays             = 365
	topEngagersLimit    = 10
	dashboardWindowDays = 7
)

// DashboardSummary is the platform overview: all-time totals, today's
// activity, open patterns and the recent mean engagement rate
type DashboardSummary struct {
	TotalAgents           int64   `json:"total_agents"`
	ActiveAgents          int64   `json:"active_agents"`
	TotalPosts            int64   `json:"total_posts"`
	TotalLikes            int64   `json:"total_likes"`
	TotalComments         int64   `json:"total_comments"`
	TotalFollows          int64   `json:"total_follows"`
	PostsToday            int64   `json:"posts_today"`
	LikesToday            int64   `json:"likes_today"`
	CommentsToday         int64   `json:"comments_today"`
	FollowsToday          int64   `json:"follows_today"`
	ActivePatterns        int     `json:"active_patterns"`
	AverageEngagementRate float64 `json:"average_engagement_rate"`
}

// RealtimeStats is the activity of the last hour
type RealtimeStats struct {
	AgentsOnline     int64     `json:"current_agents_online"`
	PostsLastHour    int64     `json:"posts_last_hour"`
	LikesLastHour    int64     `json:"likes_last_hour"`
	CommentsLastHour int64     `json:"comments_last_hour"`
	Timestamp        time.Time `json:"timestamp"`
}

// days reads the days query parameter
func days(c echo.Context, def int) (int, error) {
	v := c.QueryParam("days")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxDays {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "days must be within [1,365]")
	}
	return n, nil
}

// since returns the start of the window of n days ending today
func (s *Server) since(n int) time.Time {
	return store.Day(s.now()).AddDate(0, 0, -(n - 1))
}

func (s *Server) platformMetrics(c echo.Context) error {
	m, err := s.store.LatestPlatformMetrics(c.Request().Context())
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no platform metrics yet")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) platformTrend(c echo.Context) error {
	n, err := days(c, defaultTrendDays)
	if err != nil {
		return err
	}
	trend, err := s.store.PlatformMetricsSince(c.Request().Context(), s.since(n))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, trend)
}

func (s *Server) networkAnalysis(c echo.Context) error {
	n, err := s.store.LatestNetworkAnalysis(c.Request().Context())
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no network analysis yet")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, n)
}

func (s *Server) networkTrend(c echo.Context) error {
	n, err := days(c, defaultTrendDays)
	if err != nil {
		return err
	}
	trend, err := s.store.NetworkAnalysesSince(c.Request().Context(), s.since(n))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, trend)
}

func (s *Server) listPatterns(c echo.Context) error {
	patterns, err := s.store.ListPatterns(c.Request().Context(), c.QueryParam("all") != "true")
	if err != nil {
		return err
	}
	if t := c.QueryParam("type"); t != "" {
		kept := make([]*models.EmergentPattern, 0, len(patterns))
		for _, p := range patterns {
			if string(p.Type) == t {
				kept = append(kept, p)
			}
		}
		patterns = kept
	}
	return c.JSON(http.StatusOK, patterns)
}

// agentBehaviors lists the daily roll-ups of one agent, newest first
func (s *Server) agentBehaviors(c echo.Context) error {
	v := c.QueryParam("agent")
	if v == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent is required")
	}
	agentID, err := strconv.ParseInt(v, 10, 64)
	if err != nil || agentID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid agent")
	}
	n, err := days(c, defaultAgentDays)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := s.store.GetAgent(ctx, agentID); err != nil {
		return storeError(err)
	}
	rows, err := s.store.ListAgentBehaviors(ctx, store.BehaviorFilter{AgentID: &agentID, Since: s.since(n), Limit: maxDays})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) topEngagers(c echo.Context) error {
	n, err := days(c, defaultTrendDays)
	if err != nil {
		return err
	}
	rows, err := s.store.ListAgentBehaviors(c.Request().Context(), store.BehaviorFilter{
		Since:        s.since(n),
		ByEngagement: true,
		Limit:        topEngagersLimit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	now := s.now()

	totals, err := s.store.PlatformTotals(ctx)
	if err != nil {
		return err
	}
	today, err := s.store.ActivityBetween(ctx, store.Day(now), now)
	if err != nil {
		return err
	}
	patterns, err := s.store.ListPatterns(ctx, true)
	if err != nil {
		return err
	}
	behaviors, err := s.store.ListAgentBehaviors(ctx, store.BehaviorFilter{Since: s.since(dashboardWindowDays), Limit: -1})
	if err != nil {
		return err
	}

	summary := DashboardSummary{
		TotalAgents:    totals.Agents,
		ActiveAgents:   totals.ActiveAgents,
		TotalPosts:     totals.Posts,
		TotalLikes:     totals.Likes,
		TotalComments:  totals.Comments,
		TotalFollows:   totals.Follows,
		PostsToday:     today.Posts,
		LikesToday:     today.Likes,
		CommentsToday:  today.Comments,
		FollowsToday:   today.Follows,
		ActivePatterns: len(patterns),
	}
	if len(behaviors) > 0 {
		var sum float64
		for _, b := range behaviors {
			sum += b.EngagementRate
		}
		summary.AverageEngagementRate = sum / float64(len(behaviors))
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) realtimeStats(c echo.Context) error {
	ctx := c.Request().Context()
	now := s.now()

	totals, err := s.store.PlatformTotals(ctx)
	if err != nil {
		return err
	}
	hour, err := s.store.ActivityBetween(ctx, now.Add(-time.Hour), now)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RealtimeStats{
		AgentsOnline:     totals.ActiveAgents,
		PostsLastHour:    hour.Posts,
		LikesLastHour:    hour.Likes,
		CommentsLastHour: hour.Comments,
		Timestamp:        now.UTC(),
	})
}
