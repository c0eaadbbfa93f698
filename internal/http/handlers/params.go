package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

func idParam(ctx *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)

	if err != nil || id <= 0 {
		RespondBadRequest(ctx, name+" must be a positive integer", nil)
		return 0, false
	}

	return id, true
}

func intQuery(ctx *gin.Context, name string, fallback, max int) int {
	raw := ctx.Query(name)

	if raw == "" {
		return fallback
	}

	n, err := strconv.Atoi(raw)

	if err != nil || n < 1 {
		return fallback
	}

	if max > 0 && n > max {
		return max
	}

	return n
}
