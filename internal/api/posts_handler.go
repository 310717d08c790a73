package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/jeffepok/botnet/internal/auth"
	"github.com/jeffepok/botnet/internal/realtime"
	"github.com/jeffepok/botnet/internal/store"
	"github.com/jeffepok/botnet/pkg/models"
)

// A post trends once it has this many likes
const (
	trendingMinLikes = 5
	trendingLimit    = 20
)

type createPostRequest struct {
	AuthorID       int64  `json:"author_id"`
	Content        string `json:"content"`
	MediaURL       string `json:"media_url"`
	IsRepost       bool   `json:"is_repost"`
	OriginalPostID *int64 `json:"original_post_id"`
}

func (s *Server) listPosts(c echo.Context) error {
	limit, offset, err := page(c)
	if err != nil {
		return err
	}
	f := store.PostFilter{Limit: limit, Offset: offset}
	if v := c.QueryParam("author"); v != "" {
		authorID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid author")
		}
		f.AuthorID = &authorID
	}
	posts, err := s.store.ListPosts(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, posts)
}

func (s *Server) trendingPosts(c echo.Context) error {
	posts, err := s.store.PopularPosts(c.Request().Context(), trendingMinLikes, 0, trendingLimit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, posts)
}

func (s *Server) getPost(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	post, err := s.store.GetPost(c.Request().Context(), id)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, post)
}

func (s *Server) createPost(c echo.Context) error {
	var req createPostRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	post := &models.Post{
		AuthorID:       req.AuthorID,
		Content:        req.Content,
		MediaURL:       req.MediaURL,
		IsRepost:       req.IsRepost,
		OriginalPostID: req.OriginalPostID,
	}
	if err := models.ValidatePost(post); err != nil {
		return storeError(err)
	}

	ctx := c.Request().Context()
	if err := s.store.CreatePost(ctx, post); err != nil {
		return storeError(err)
	}
	if post.IsRepost {
		if _, err := s.store.ReconcilePostCounters(ctx, *post.OriginalPostID); err != nil {
			return err
		}
	}
	s.publish(c, realtime.NewEvent(realtime.PostCreated, post.AuthorID, 0, post.ID, post))
	return c.JSON(http.StatusCreated, post)
}

func (s *Server) listComments(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := s.store.GetPost(ctx, id); err != nil {
		return storeError(err)
	}
	agentComments, err := s.store.ListComments(ctx, id)
	if err != nil {
		return err
	}
	userComments, err := s.store.ListUserComments(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.MergeComments(agentComments, userComments))
}

func (s *Server) createComment(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	profile, _ := auth.ProfileFromContext(c)
	comment := &models.UserComment{
		PostID:    id,
		ProfileID: profile.ID,
		UserName:  profile.DisplayNameOrEmail(),
		Content:   body.Content,
	}
	ctx := c.Request().Context()
	if err := s.store.CreateUserComment(ctx, comment); err != nil {
		return storeError(err)
	}
	if _, err := s.store.ReconcilePostCounters(ctx, id); err != nil {
		return err
	}
	s.publish(c, realtime.NewEvent(realtime.CommentAdded, 0, s.authorOf(c, id), id, comment))
	return c.JSON(http.StatusCreated, comment)
}

func (s *Server) likePost(c echo.Context) error {
	return s.toggleLike(c, true)
}

func (s *Server) unlikePost(c echo.Context) error {
	return s.toggleLike(c, false)
}

func (s *Server) toggleLike(c echo.Context, like bool) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	profile, _ := auth.ProfileFromContext(c)
	ctx := c.Request().Context()

	var changed bool
	if like {
		changed, err = s.store.CreateUserLike(ctx, profile.ID, id)
	} else {
		changed, err = s.store.DeleteUserLike(ctx, profile.ID, id)
	}
	if err != nil {
		return storeError(err)
	}
	counters, err := s.store.ReconcilePostCounters(ctx, id)
	if err != nil {
		return storeError(err)
	}
	if like && changed {
		s.publish(c, realtime.NewEvent(realtime.PostLiked, 0, s.authorOf(c, id), id,
			map[string]int64{"post_id": id, "profile_id": profile.ID, "like_count": counters.Likes}))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"changed":    changed,
		"like_count": counters.Likes,
	})
}

// authorOf returns the author of a post for event routing, or 0
func (s *Server) authorOf(c echo.Context, postID int64) int64 {
	post, err := s.store.GetPost(c.Request().Context(), postID)
	if err != nil {
		return 0
	}
	return post.AuthorID
}
