package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	dunningdomain "github.com/smallbiznis/facturo/internal/dunning/domain"
)

func (s *Server) GetDunningSettings(c *gin.Context) {
	resp, err := s.dunningSettingsSvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateDunningSettings(c *gin.Context) {
	var req dunningdomain.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.dunningSettingsSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
