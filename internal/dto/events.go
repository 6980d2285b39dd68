package dto

import (
	"encoding/json"

	"github.com/AlexCabreraD/retrospective-server/internal/domain"
)

// Envelope 是 WebSocket 上每条消息的外层结构：事件名 + 负载。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// --- 入站事件负载 ---

// CreateBoardRequest 表示 create_board 事件的负载。
type CreateBoardRequest struct {
	DisplayName string           `json:"displayName"`
	BoardName   string           `json:"boardName"`
	Sections    []domain.Section `json:"sections"`
}

// JoinBoardRequest 表示 join_board 事件的负载。
type JoinBoardRequest struct {
	BoardCode   string `json:"boardCode"`
	DisplayName string `json:"displayName"`
}

// AddPostRequest 表示 add_post 事件的负载。
type AddPostRequest struct {
	BoardCode string      `json:"boardCode"`
	SectionID string      `json:"sectionId"`
	Post      domain.Post `json:"post"`
}

// RemovePostRequest 表示 remove_post 事件的负载。
type RemovePostRequest struct {
	BoardCode string `json:"boardCode"`
	SectionID string `json:"sectionId"`
	PostID    string `json:"postId"`
}

// CheckRoomRequest 同时服务于 check_room 和 check_room_exists 两个查询事件。
type CheckRoomRequest struct {
	BoardCode string `json:"boardCode"`
}

// --- 出站事件负载 ---

// BoardCreated 表示 board_created 事件的负载（只发给创建者本人）。
type BoardCreated struct {
	Board *domain.Board `json:"board"`
}

// JoinedBoard 表示 joined_board 事件的负载（只发给加入者本人）。
type JoinedBoard struct {
	Board *domain.Board `json:"board"`
}

// UserJoined 表示 user_joined 广播的负载。
type UserJoined struct {
	Name string `json:"name"`
}

// PostAdded 表示 post_added 广播的负载。
type PostAdded struct {
	SectionID string      `json:"sectionId"`
	Post      domain.Post `json:"post"`
}

// PostRemoved 表示 post_removed 广播的负载。
type PostRemoved struct {
	SectionID string `json:"sectionId"`
	PostID    string `json:"postId"`
}

// RoomExists 表示 room_exists 回复的负载。
// Members 是当前订阅该房间的连接 ID 列表，房间不存在时省略。
type RoomExists struct {
	Exists  bool     `json:"exists"`
	Members []string `json:"members,omitempty"`
}

// RoomStatus 表示 room_status 回复的负载。
type RoomStatus struct {
	InRoom bool `json:"inRoom"`
}

// ErrorMessage 表示发给单个客户端的 error 事件负载。
type ErrorMessage struct {
	Message string `json:"message"`
}
