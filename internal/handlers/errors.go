package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/studiofolio/portfolio/backend/internal/services"
	"github.com/studiofolio/portfolio/backend/internal/store"
	"github.com/studiofolio/portfolio/backend/pkg/response"
)

// respondError maps service and store errors onto the response envelope.
// Storage details stay in the request log.
func respondError(c *gin.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.Is(err, services.ErrFileTooLarge):
		response.Error(c, response.NewTooLarge(err.Error()))
	case errors.As(err, &verr):
		response.Error(c, response.NewBadRequest(verr.Error()))
	case errors.Is(err, services.ErrUnauthorized):
		response.Error(c, response.NewUnauthorized("unauthorized"))
	case errors.Is(err, store.ErrStorageUnavailable):
		response.Error(c, response.NewUnavailable(err))
	default:
		response.Error(c, response.NewServerError(err))
	}
}
