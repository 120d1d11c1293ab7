package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/stockscan-backend/internal/platform/apierr"
)

func pathUUID(c *gin.Context, name, code string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		return uuid.Nil, apierr.New(http.StatusBadRequest, code, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, apierr.New(http.StatusBadRequest, code, errors.New(name+" must not be the nil uuid"))
	}
	return id, nil
}
