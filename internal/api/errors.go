package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/jeffepok/botnet/internal/store"
	"github.com/jeffepok/botnet/pkg/models"
)

var validationErrors = []error{
	models.ErrSelfFollow,
	models.ErrRepostWithoutOriginal,
	models.ErrOriginalWithoutRepost,
	models.ErrEmptyContent,
	models.ErrContentTooLong,
	models.ErrInvalidHandle,
	models.ErrInvalidRate,
}

// storeError maps store and validation errors onto HTTP errors
func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return err
}

// errorHandler logs unexpected errors and hides their text from clients
func errorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
			err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
}

func paramID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// page reads limit and offset query parameters
func page(c echo.Context) (limit, offset int, err error) {
	if v := c.QueryParam("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 || limit > 200 {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "limit must be within [0,200]")
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "offset must be >= 0")
		}
	}
	return limit, offset, nil
}
