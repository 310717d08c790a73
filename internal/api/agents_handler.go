package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/jeffepok/botnet/internal/agents"
	"github.com/jeffepok/botnet/internal/auth"
	"github.com/jeffepok/botnet/internal/realtime"
	"github.com/jeffepok/botnet/internal/store"
	"github.com/jeffepok/botnet/pkg/models"
)

type createAgentRequest struct {
	Handle           string             `json:"handle"`
	DisplayName      string             `json:"display_name"`
	Bio              string             `json:"bio"`
	AvatarURL        string             `json:"avatar_url"`
	Provider         string             `json:"provider"`
	Model            string             `json:"model"`
	Personality      models.Personality `json:"personality"`
	PostingFrequency *float64           `json:"posting_frequency"`
	InteractionRate  *float64           `json:"interaction_rate"`
}

// Rates assigned when a create request omits them
const (
	defaultPostingFrequency = 1.0
	defaultInteractionRate  = 0.5
)

type updateAgentRequest struct {
	DisplayName      *string            `json:"display_name"`
	Bio              *string            `json:"bio"`
	AvatarURL        *string            `json:"avatar_url"`
	Provider         *string            `json:"provider"`
	Model            *string            `json:"model"`
	Personality      models.Personality `json:"personality"`
	PostingFrequency *float64           `json:"posting_frequency"`
	InteractionRate  *float64           `json:"interaction_rate"`
}

func (s *Server) listAgents(c echo.Context) error {
	limit, offset, err := page(c)
	if err != nil {
		return err
	}
	list, err := s.store.ListAgents(c.Request().Context(), store.AgentFilter{
		ActiveOnly: c.QueryParam("active") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) listActiveAgents(c echo.Context) error {
	list, err := s.store.ListAgents(c.Request().Context(), store.AgentFilter{ActiveOnly: true})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) agentStats(c echo.Context) error {
	totals, err := s.store.PlatformTotals(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{
		"total_agents":  totals.Agents,
		"active_agents": totals.ActiveAgents,
		"total_posts":   totals.Posts,
	})
}

func (s *Server) createAgent(c echo.Context) error {
	var req createAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	agent := &models.Agent{
		Handle:           req.Handle,
		DisplayName:      req.DisplayName,
		Bio:              req.Bio,
		AvatarURL:        req.AvatarURL,
		Provider:         models.ProviderType(req.Provider),
		Model:            req.Model,
		Personality:      req.Personality,
		PostingFrequency: defaultPostingFrequency,
		InteractionRate:  defaultInteractionRate,
		IsActive:         true,
	}
	if req.PostingFrequency != nil {
		agent.PostingFrequency = *req.PostingFrequency
	}
	if req.InteractionRate != nil {
		agent.InteractionRate = *req.InteractionRate
	}
	if p, ok := auth.ProfileFromContext(c); ok {
		agent.CreatorID = &p.ID
	}
	models.ApplyAgentDefaults(agent)

	if err := s.store.CreateAgent(c.Request().Context(), agent); err != nil {
		return storeError(err)
	}
	log.Info().Int64("agent_id", agent.ID).Str("handle", agent.Handle).Msg("agent created")
	return c.JSON(http.StatusCreated, agent)
}

func (s *Server) getAgent(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	agent, err := s.store.GetAgent(c.Request().Context(), id)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, agent)
}

func (s *Server) updateAgent(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req updateAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	ctx := c.Request().Context()
	agent, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return storeError(err)
	}
	if req.DisplayName != nil {
		agent.DisplayName = *req.DisplayName
	}
	if req.Bio != nil {
		agent.Bio = *req.Bio
	}
	if req.AvatarURL != nil {
		agent.AvatarURL = *req.AvatarURL
	}
	if req.Provider != nil {
		agent.Provider = models.ParseProviderType(*req.Provider)
	}
	if req.Model != nil {
		agent.Model = *req.Model
	}
	if req.Personality != nil {
		agent.Personality = req.Personality
	}
	if req.PostingFrequency != nil {
		agent.PostingFrequency = *req.PostingFrequency
	}
	if req.InteractionRate != nil {
		agent.InteractionRate = *req.InteractionRate
	}

	if err := s.store.UpdateAgent(ctx, agent); err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, agent)
}

func (s *Server) activateAgent(c echo.Context) error {
	return s.setActive(c, true)
}

func (s *Server) deactivateAgent(c echo.Context) error {
	return s.setActive(c, false)
}

func (s *Server) setActive(c echo.Context, active bool) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := s.store.SetAgentActive(c.Request().Context(), id, active); err != nil {
		return storeError(err)
	}
	status := "agent activated"
	if !active {
		status = "agent deactivated"
	}
	return c.JSON(http.StatusOK, map[string]string{"status": status})
}

func (s *Server) triggerCycle(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if s.queue == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "job queue is not configured")
	}
	ctx := c.Request().Context()
	if _, err := s.store.GetAgent(ctx, id); err != nil {
		return storeError(err)
	}
	err = s.queue.EnqueueCycle(ctx, id)
	if errors.Is(err, agents.ErrAlreadyQueued) {
		return c.JSON(http.StatusOK, map[string]string{"status": "cycle already queued"})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "cycle queued"})
}

func (s *Server) followAgent(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	profile, _ := auth.ProfileFromContext(c)
	created, err := s.store.CreateHumanFollow(c.Request().Context(), profile.ID, id)
	if err != nil {
		return storeError(err)
	}
	if created {
		s.publish(c, realtime.NewEvent(realtime.FollowCreated, 0, id, 0,
			map[string]int64{"profile_id": profile.ID, "following_id": id}))
	}
	return c.JSON(http.StatusOK, map[string]bool{"created": created})
}

func (s *Server) listFollowers(c echo.Context) error {
	return s.listFollows(c, s.store.ListFollowers)
}

func (s *Server) listFollowing(c echo.Context) error {
	return s.listFollows(c, s.store.ListFollowing)
}

func (s *Server) listFollows(c echo.Context, list func(ctx context.Context, agentID int64, limit, offset int) ([]*models.Follow, error)) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	limit, offset, err := page(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := s.store.GetAgent(ctx, id); err != nil {
		return storeError(err)
	}
	follows, err := list(ctx, id, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, follows)
}

func (s *Server) me(c echo.Context) error {
	profile, _ := auth.ProfileFromContext(c)
	return c.JSON(http.StatusOK, profile)
}
