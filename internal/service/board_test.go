package service_test // 测试包

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/AlexCabreraD/retrospective-server/internal/domain"
	"github.com/AlexCabreraD/retrospective-server/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBoardWithSection 创建一个带单个空分区 "s1" 的看板，返回看板码。
func newBoardWithSection(t *testing.T, svc *service.BoardService) string {
	t.Helper()
	board, err := svc.CreateBoard("conn-1", "alice", "Sprint 42", []domain.Section{{ID: "s1", Title: "Went well"}})
	require.NoError(t, err, "创建看板不应失败")
	require.NotNil(t, board)
	return board.Code
}

func TestBoardService_CreateBoard_Snapshot(t *testing.T) {
	svc := service.NewBoardService()

	board, err := svc.CreateBoard("conn-1", "alice", "Sprint 42", []domain.Section{
		{ID: "s1", Title: "Went well"},
		{ID: "s2", Title: "To improve"},
	})

	require.NoError(t, err)
	require.NotNil(t, board)
	assert.Len(t, board.Code, 5, "看板码应为 5 个字符")
	assert.Equal(t, "Sprint 42", board.Name)
	assert.Equal(t, "alice", board.Creator)

	// 分区顺序必须保留，Posts 必须初始化为空切片（序列化为 [] 而不是 null）
	require.Len(t, board.Sections, 2)
	assert.Equal(t, "s1", board.Sections[0].ID)
	assert.Equal(t, "s2", board.Sections[1].ID)
	assert.NotNil(t, board.Sections[0].Posts)
	assert.Empty(t, board.Sections[0].Posts)

	// 创建者是唯一成员，角色为 creator
	require.Len(t, board.Members, 1)
	assert.Equal(t, "conn-1", board.Members[0].ConnectionID)
	assert.Equal(t, domain.RoleCreator, board.Members[0].Role)
}

func TestBoardService_CreateBoard_UniqueCodes(t *testing.T) {
	svc := service.NewBoardService()
	const charset = "0123456789abcdefghijklmnopqrstuvwxyz"

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		board, err := svc.CreateBoard("conn", "alice", "b", nil)
		require.NoError(t, err)
		assert.False(t, seen[board.Code], "看板码在存活期间必须两两不同: %s", board.Code)
		seen[board.Code] = true

		require.Len(t, board.Code, 5)
		for _, ch := range board.Code {
			assert.Contains(t, charset, string(ch), "看板码只能包含 base-36 小写字符")
		}
	}
}

func TestBoardService_GetBoard_NotFound(t *testing.T) {
	svc := service.NewBoardService()

	_, err := svc.GetBoard("nope1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrBoardNotFound), "错误类型应为 ErrBoardNotFound")
}

func TestBoardService_JoinBoard(t *testing.T) {
	svc := service.NewBoardService()
	code := newBoardWithSection(t, svc)

	board, err := svc.JoinBoard(code, "conn-2", "bob")

	require.NoError(t, err)
	require.Len(t, board.Members, 2)
	assert.Equal(t, domain.RoleCreator, board.Members[0].Role)
	assert.Equal(t, "bob", board.Members[1].Name)
	assert.Equal(t, domain.RoleMember, board.Members[1].Role, "后加入的成员角色应为 member")
}

func TestBoardService_JoinBoard_NotFound(t *testing.T) {
	svc := service.NewBoardService()

	_, err := svc.JoinBoard("nope1", "conn-2", "bob")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrBoardNotFound))
}

func TestBoardService_AddRemovePost_RoundTrip(t *testing.T) {
	svc := service.NewBoardService()
	code := newBoardWithSection(t, svc)

	require.NoError(t, svc.AddPost(code, "s1", domain.Post{"id": "p1", "content": "retro item"}))

	board, err := svc.GetBoard(code)
	require.NoError(t, err)
	require.Len(t, board.Sections[0].Posts, 1)
	assert.Equal(t, "p1", board.Sections[0].Posts[0].ID())

	// 同一 postId 的移除应使分区恢复到添加前的状态
	require.NoError(t, svc.RemovePost(code, "s1", "p1"))

	board, err = svc.GetBoard(code)
	require.NoError(t, err)
	assert.Empty(t, board.Sections[0].Posts, "add 后 remove 应恢复原状")
}

func TestBoardService_RemovePost_FilterSemantics(t *testing.T) {
	svc := service.NewBoardService()
	code := newBoardWithSection(t, svc)

	// 重复 id 不做校验，两条都会存在
	require.NoError(t, svc.AddPost(code, "s1", domain.Post{"id": "p1", "n": 1}))
	require.NoError(t, svc.AddPost(code, "s1", domain.Post{"id": "p2"}))
	require.NoError(t, svc.AddPost(code, "s1", domain.Post{"id": "p1", "n": 2}))

	// 过滤语义：移除所有 id 匹配的便签，其余保持相对顺序
	require.NoError(t, svc.RemovePost(code, "s1", "p1"))

	board, err := svc.GetBoard(code)
	require.NoError(t, err)
	require.Len(t, board.Sections[0].Posts, 1)
	assert.Equal(t, "p2", board.Sections[0].Posts[0].ID())

	// 移除不存在的便签也算成功（幂等）
	assert.NoError(t, svc.RemovePost(code, "s1", "ghost"))
}

func TestBoardService_PostOps_NotFoundErrors(t *testing.T) {
	svc := service.NewBoardService()
	code := newBoardWithSection(t, svc)

	err := svc.AddPost(code, "missing", domain.Post{"id": "p1"})
	assert.True(t, errors.Is(err, service.ErrSectionNotFound), "未知分区应返回 ErrSectionNotFound")

	err = svc.RemovePost(code, "missing", "p1")
	assert.True(t, errors.Is(err, service.ErrSectionNotFound))

	err = svc.AddPost("nope1", "s1", domain.Post{"id": "p1"})
	assert.True(t, errors.Is(err, service.ErrBoardNotFound), "未知看板应返回 ErrBoardNotFound")
}

func TestBoardService_SnapshotIsolation(t *testing.T) {
	svc := service.NewBoardService()
	code := newBoardWithSection(t, svc)

	// 篡改返回的快照不应影响存储里的看板
	snapshot, err := svc.GetBoard(code)
	require.NoError(t, err)
	snapshot.Sections[0].Posts = append(snapshot.Sections[0].Posts, domain.Post{"id": "hacked"})
	snapshot.Members[0].Name = "mallory"

	fresh, err := svc.GetBoard(code)
	require.NoError(t, err)
	assert.Empty(t, fresh.Sections[0].Posts)
	assert.Equal(t, "alice", fresh.Members[0].Name)
}

func TestBoardService_ConcurrentAddPost_NoLostUpdates(t *testing.T) {
	svc := service.NewBoardService()
	code := newBoardWithSection(t, svc)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			err := svc.AddPost(code, "s1", domain.Post{"id": fmt.Sprintf("p%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	board, err := svc.GetBoard(code)
	require.NoError(t, err)
	assert.Len(t, board.Sections[0].Posts, n, "并发添加不应丢失任何便签")
}

func TestBoardService_ConcurrentCreate_DistinctCodes(t *testing.T) {
	svc := service.NewBoardService()

	const n = 32
	codes := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			board, err := svc.CreateBoard("conn", "alice", "b", nil)
			assert.NoError(t, err)
			if board != nil {
				codes[i] = board.Code
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, code := range codes {
		require.NotEmpty(t, code)
		assert.False(t, seen[code], "并发创建也必须保证看板码唯一")
		seen[code] = true
	}
}
