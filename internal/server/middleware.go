package server

import (
	"crypto/subtle"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/facturo/internal/accountctx"
	obscontext "github.com/smallbiznis/facturo/internal/observability/context"
)

const (
	accountHeader  = "X-Account-Id"
	jobTokenHeader = "X-Job-Token"
)

// AccountRequired resolves the owning account from the request header
// and stores it in the request context. Authentication proper sits in
// front of this service; the header carries the already-authenticated
// account identity.
func (s *Server) AccountRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(accountHeader))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		accountID, err := snowflake.ParseString(raw)
		if err != nil || accountID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := accountctx.WithAccountID(c.Request.Context(), accountID)
		ctx = obscontext.WithAccountID(ctx, accountID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// JobTokenRequired guards the sweep trigger with a shared secret
// distinct from user authentication.
func (s *Server) JobTokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := s.cfg.JobToken
		if expected == "" {
			AbortWithError(c, ErrForbidden)
			return
		}

		provided := strings.TrimSpace(c.GetHeader(jobTokenHeader))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			AbortWithError(c, ErrForbidden)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), "system", "job")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
