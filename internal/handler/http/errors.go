package http

import (
	"errors"
	"net/http"

	"github.com/AlexCabreraD/retrospective-server/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HandleServiceError 把服务层错误映射到 HTTP 状态码。
func HandleServiceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrBoardNotFound) || errors.Is(err, service.ErrSectionNotFound) {
		ErrorResponse(c, http.StatusNotFound, err.Error())
	} else {
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
