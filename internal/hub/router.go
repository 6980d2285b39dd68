package hub

import (
	"encoding/json"
	"errors"

	"github.com/AlexCabreraD/retrospective-server/internal/dto"
	"github.com/AlexCabreraD/retrospective-server/internal/service"

	"github.com/sirupsen/logrus"
)

// 对外协议的事件名。这些名字是和客户端的线上契约，不能改。
const (
	// 入站
	evtCreateBoard     = "create_board"
	evtJoinBoard       = "join_board"
	evtAddPost         = "add_post"
	evtRemovePost      = "remove_post"
	evtCheckRoom       = "check_room"
	evtCheckRoomExists = "check_room_exists"

	// 出站
	evtBoardCreated = "board_created"
	evtJoinedBoard  = "joined_board"
	evtUserJoined   = "user_joined"
	evtPostAdded    = "post_added"
	evtPostRemoved  = "post_removed"
	evtRoomStatus   = "room_status"
	evtRoomExists   = "room_exists"
	evtError        = "error"
)

// handleClientEvent 是每个连接事件的入口：解析信封、校验并应用变更、
// 决定是广播还是只回给发送方。单个客户端的坏消息只影响它自己。
func (h *Hub) handleClientEvent(msg HubMessage) {
	client := msg.Client
	if client == nil {
		logrus.Error("Hub: Received event without client")
		return
	}

	var envelope dto.Envelope
	if err := json.Unmarshal(msg.RawData, &envelope); err != nil {
		logrus.WithError(err).WithField("conn_id", client.ID()).Warn("Invalid message envelope, dropping")
		return
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"conn_id": client.ID(),
		"event":   envelope.Event,
	})

	switch envelope.Event {
	case evtCreateBoard:
		h.handleCreateBoard(logCtx, client, envelope.Data)
	case evtJoinBoard:
		h.handleJoinBoard(logCtx, client, envelope.Data)
	case evtAddPost:
		h.handleAddPost(logCtx, client, envelope.Data)
	case evtRemovePost:
		h.handleRemovePost(logCtx, client, envelope.Data)
	case evtCheckRoom:
		h.handleCheckRoom(logCtx, client, envelope.Data)
	case evtCheckRoomExists:
		h.handleCheckRoomExists(logCtx, client, envelope.Data)
	default:
		logCtx.Warn("Received unknown event, ignoring")
	}
}

// handleCreateBoard 创建看板、订阅创建者连接，并只向创建者发送 board_created。
func (h *Hub) handleCreateBoard(logCtx *logrus.Entry, client *Client, data json.RawMessage) {
	var req dto.CreateBoardRequest
	if err := json.Unmarshal(data, &req); err != nil {
		logCtx.WithError(err).Warn("Invalid create_board payload")
		return
	}

	board, err := h.boardService.CreateBoard(client.ID(), req.DisplayName, req.BoardName, req.Sections)
	if err != nil {
		logCtx.WithError(err).Error("Failed to create board")
		h.sendToClient(client, evtError, dto.ErrorMessage{Message: "Failed to create board."})
		return
	}

	h.Subscribe(client, board.Code)
	h.sendToClient(client, evtBoardCreated, dto.BoardCreated{Board: board})
	logCtx.WithField("board_code", board.Code).Info("Board created and creator subscribed")
}

// handleJoinBoard 处理加入看板：
// 看板不存在时只向发送方回一条 error，绝不广播；
// 成功时先订阅（加入者自己也会收到 user_joined），再回 joined_board。
func (h *Hub) handleJoinBoard(logCtx *logrus.Entry, client *Client, data json.RawMessage) {
	var req dto.JoinBoardRequest
	if err := json.Unmarshal(data, &req); err != nil {
		logCtx.WithError(err).Warn("Invalid join_board payload")
		return
	}
	logCtx = logCtx.WithField("board_code", req.BoardCode)

	board, err := h.boardService.JoinBoard(req.BoardCode, client.ID(), req.DisplayName)
	if err != nil {
		if errors.Is(err, service.ErrBoardNotFound) {
			h.sendToClient(client, evtError, dto.ErrorMessage{Message: "Board not found."})
			return
		}
		logCtx.WithError(err).Error("Failed to join board")
		h.sendToClient(client, evtError, dto.ErrorMessage{Message: "Failed to join board."})
		return
	}

	h.Subscribe(client, req.BoardCode)
	h.Broadcast(req.BoardCode, evtUserJoined, dto.UserJoined{Name: req.DisplayName})
	h.sendToClient(client, evtJoinedBoard, dto.JoinedBoard{Board: board})
	logCtx.WithField("name", req.DisplayName).Info("Client joined board room")
}

// handleAddPost 追加便签并广播 post_added。
// 看板或分区不存在属于客户端状态过期，静默忽略，不广播也不报错。
func (h *Hub) handleAddPost(logCtx *logrus.Entry, client *Client, data json.RawMessage) {
	var req dto.AddPostRequest
	if err := json.Unmarshal(data, &req); err != nil {
		logCtx.WithError(err).Warn("Invalid add_post payload")
		return
	}

	if err := h.boardService.AddPost(req.BoardCode, req.SectionID, req.Post); err != nil {
		logCtx.WithError(err).WithField("board_code", req.BoardCode).Debug("add_post ignored")
		return
	}
	h.Broadcast(req.BoardCode, evtPostAdded, dto.PostAdded{SectionID: req.SectionID, Post: req.Post})
}

// handleRemovePost 移除便签并广播 post_removed；未找到时同样静默忽略。
func (h *Hub) handleRemovePost(logCtx *logrus.Entry, client *Client, data json.RawMessage) {
	var req dto.RemovePostRequest
	if err := json.Unmarshal(data, &req); err != nil {
		logCtx.WithError(err).Warn("Invalid remove_post payload")
		return
	}

	if err := h.boardService.RemovePost(req.BoardCode, req.SectionID, req.PostID); err != nil {
		logCtx.WithError(err).WithField("board_code", req.BoardCode).Debug("remove_post ignored")
		return
	}
	h.Broadcast(req.BoardCode, evtPostRemoved, dto.PostRemoved{SectionID: req.SectionID, PostID: req.PostID})
}

// handleCheckRoom 回答"我自己在这个房间里吗"（只回发送方）。
func (h *Hub) handleCheckRoom(logCtx *logrus.Entry, client *Client, data json.RawMessage) {
	var req dto.CheckRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		logCtx.WithError(err).Warn("Invalid check_room payload")
		return
	}
	h.sendToClient(client, evtRoomStatus, dto.RoomStatus{InRoom: h.InRoom(client, req.BoardCode)})
}

// handleCheckRoomExists 回答"这个房间当前有没有人"（只回发送方）。
func (h *Hub) handleCheckRoomExists(logCtx *logrus.Entry, client *Client, data json.RawMessage) {
	var req dto.CheckRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		logCtx.WithError(err).Warn("Invalid check_room_exists payload")
		return
	}

	members := h.RoomMembers(req.BoardCode)
	if len(members) == 0 {
		h.sendToClient(client, evtRoomExists, dto.RoomExists{Exists: false})
		return
	}
	h.sendToClient(client, evtRoomExists, dto.RoomExists{Exists: true, Members: members})
}
