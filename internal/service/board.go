package service

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/AlexCabreraD/retrospective-server/internal/domain"

	"github.com/sirupsen/logrus"
)

// BoardService 是所有看板状态的唯一来源（Board Store）。
// 看板只存在于内存中，进程退出即消失；这里不做任何持久化。
type BoardService struct {
	// 保护 boards map 本身的读写锁
	mu     sync.RWMutex
	boards map[string]*boardEntry
}

// boardEntry 把一个看板和它自己的互斥锁绑在一起。
// 同一看板上的所有变更（读-改-写）都必须持有这把锁，
// 保证并发事件不会观察到改了一半的状态；不同看板之间完全并行。
type boardEntry struct {
	mu    sync.Mutex
	board *domain.Board
}

// NewBoardService 创建 BoardService 实例。
func NewBoardService() *BoardService {
	return &BoardService{boards: make(map[string]*boardEntry)}
}

// CreateBoard 生成一个新的唯一看板码并存储新看板，
// 创建者作为唯一的 creator 成员。返回的是深拷贝快照。
func (s *BoardService) CreateBoard(connID, displayName, boardName string, sections []domain.Section) (*domain.Board, error) {
	board := &domain.Board{
		Name:     boardName,
		Creator:  displayName,
		Sections: normalizeSections(sections),
		Members: []domain.Member{
			{ConnectionID: connID, Name: displayName, Role: domain.RoleCreator},
		},
	}

	// 码的唯一性检查和插入必须在同一个写锁里完成，
	// 否则两个并发的 CreateBoard 可能拿到同一个码。
	s.mu.Lock()
	code, err := s.generateUniqueCodeLocked()
	if err != nil {
		s.mu.Unlock()
		logrus.WithError(err).Error("Failed to generate unique board code")
		return nil, err
	}
	board.Code = code
	s.boards[code] = &boardEntry{board: board}
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"board_code": code,
		"creator":    displayName,
		"sections":   len(board.Sections),
	}).Info("Board created")
	return board.Clone(), nil
}

// GetBoard 返回看板的深拷贝快照；看板不存在时返回 ErrBoardNotFound。
func (s *BoardService) GetBoard(code string) (*domain.Board, error) {
	entry, err := s.entry(code)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.board.Clone(), nil
}

// JoinBoard 把一个新成员（role=member）追加到看板上并返回看板快照。
// 成员记录只增不减：断开连接不会移除它（与房间订阅不同）。
func (s *BoardService) JoinBoard(code, connID, displayName string) (*domain.Board, error) {
	entry, err := s.entry(code)
	if err != nil {
		logrus.WithField("board_code", code).Warn("Join attempt for unknown board")
		return nil, err
	}

	entry.mu.Lock()
	entry.board.Members = append(entry.board.Members, domain.Member{
		ConnectionID: connID,
		Name:         displayName,
		Role:         domain.RoleMember,
	})
	snapshot := entry.board.Clone()
	entry.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"board_code": code,
		"name":       displayName,
	}).Info("User joined board")
	return snapshot, nil
}

// AddPost 把便签追加到指定分区的末尾。
// 便签 id 的唯一性由客户端负责，这里不做校验：重复 id 会并存，
// 直到某次 RemovePost 把它们一起移除。
func (s *BoardService) AddPost(code, sectionID string, post domain.Post) error {
	entry, err := s.entry(code)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	idx := entry.board.FindSection(sectionID)
	if idx < 0 {
		return ErrSectionNotFound
	}
	sec := &entry.board.Sections[idx]
	sec.Posts = append(sec.Posts, post.Clone())

	logrus.WithFields(logrus.Fields{
		"board_code": code,
		"section_id": sectionID,
	}).Debug("Post added")
	return nil
}

// RemovePost 移除分区内所有 id 等于 postId 的便签（过滤语义），
// 剩余便签保持原有相对顺序。便签本就不存在时也算成功。
func (s *BoardService) RemovePost(code, sectionID, postID string) error {
	entry, err := s.entry(code)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	idx := entry.board.FindSection(sectionID)
	if idx < 0 {
		return ErrSectionNotFound
	}
	sec := &entry.board.Sections[idx]
	kept := sec.Posts[:0]
	for _, p := range sec.Posts {
		if p.ID() != postID {
			kept = append(kept, p)
		}
	}
	sec.Posts = kept

	logrus.WithFields(logrus.Fields{
		"board_code": code,
		"section_id": sectionID,
		"post_id":    postID,
	}).Debug("Post removed")
	return nil
}

// entry 查找看板对应的 boardEntry。
func (s *BoardService) entry(code string) (*boardEntry, error) {
	s.mu.RLock()
	entry, ok := s.boards[code]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBoardNotFound
	}
	return entry, nil
}

// generateUniqueCodeLocked 生成一个当前不存在的看板码。
// 冲突概率不为零，必须重新生成；尝试次数有上限，避免极端情况下死循环。
// 调用方必须持有 s.mu 写锁。
func (s *BoardService) generateUniqueCodeLocked() (string, error) {
	const letters = "0123456789abcdefghijklmnopqrstuvwxyz"
	const codeLength = 5
	const maxAttempts = 10

	b := make([]byte, codeLength)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range b {
			b[i] = letters[int(b[i])%len(letters)]
		}
		code := string(b)

		if _, exists := s.boards[code]; !exists {
			return code, nil
		}
		logrus.WithField("board_code", code).Warnf("Generated board code already exists, retrying (attempt %d)...", attempt+1)
	}
	return "", fmt.Errorf("%w after %d attempts", ErrCodeGeneration, maxAttempts)
}

// normalizeSections 深拷贝客户端提交的分区列表并保证 Posts 非 nil，
// 这样序列化出来是 [] 而不是 null，也避免和客户端负载共享内存。
func normalizeSections(sections []domain.Section) []domain.Section {
	normalized := make([]domain.Section, len(sections))
	for i, sec := range sections {
		posts := make([]domain.Post, 0, len(sec.Posts))
		for _, p := range sec.Posts {
			posts = append(posts, p.Clone())
		}
		normalized[i] = domain.Section{ID: sec.ID, Title: sec.Title, Posts: posts}
	}
	return normalized
}
