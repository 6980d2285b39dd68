package http

import (
	"net/http"

	"github.com/AlexCabreraD/retrospective-server/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// BoardHandler 封装了看板相关的只读 HTTP 处理逻辑。
// 所有变更都走 WebSocket 事件，这里只提供给刷新页面的客户端取快照用。
type BoardHandler struct {
	boardService *service.BoardService
}

// NewBoardHandler 创建 BoardHandler 实例。
func NewBoardHandler(boardService *service.BoardService) *BoardHandler {
	if boardService == nil {
		panic("BoardService cannot be nil for BoardHandler")
	}
	return &BoardHandler{boardService: boardService}
}

// GetBoard 按看板码返回看板快照。
// GET /api/boards/:code
func (h *BoardHandler) GetBoard(c *gin.Context) {
	code := c.Param("code")
	logCtx := logrus.WithField("board_code", code)

	board, err := h.boardService.GetBoard(code)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.GetBoard: Board lookup failed")
		HandleServiceError(c, err)
		return
	}

	logCtx.Debug("Handler.GetBoard: Board snapshot returned")
	SuccessResponse(c, http.StatusOK, gin.H{"board": board})
}
