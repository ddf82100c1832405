package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/facturo/internal/accountctx"
	"github.com/smallbiznis/facturo/pkg/db/pagination"
)

func (s *Server) ListNotifications(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	accountID, ok := accountctx.AccountIDFromContext(c.Request.Context())
	if !ok || accountID == 0 {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.notificationRepo.List(c.Request.Context(), s.db, accountID, pagination.Pagination{
		PageToken: query.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"notifications": items}})
}
