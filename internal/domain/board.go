package domain

// Role 表示成员在看板中的角色。
type Role string

const (
	RoleCreator Role = "creator" // 创建者，每个看板有且只有一个
	RoleMember  Role = "member"  // 普通成员
)

// Post 表示分区里的一条便签。
// 服务端对便签内容完全不做解释，只读取其中的 "id" 字段
// （由提交便签的客户端生成，服务端视为不透明字符串）。
type Post map[string]any

// ID 返回便签的 id 字段；字段缺失或类型不对时返回空字符串。
func (p Post) ID() string {
	if v, ok := p["id"].(string); ok {
		return v
	}
	return ""
}

// Clone 返回便签的拷贝，避免调用方和存储共享同一个 map。
func (p Post) Clone() Post {
	if p == nil {
		return Post{}
	}
	cp := make(Post, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// Section 表示看板上的一个分区。
// 分区列表在创建看板时由客户端给定（id 对服务端不透明），
// 之后分区本身不增不减，只有 Posts 会变化。
type Section struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Posts []Post `json:"posts"`
}

// Member 表示看板的一个语义成员记录。
// 注意它和房间订阅是两回事：订阅是传输层概念，由 Hub 维护。
type Member struct {
	ConnectionID string `json:"id"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
}

// Board 表示一个协作回顾看板会话。
// JSON 标签即对外协议中的字段名，不要改动。
type Board struct {
	Code     string    `json:"boardCode"`
	Name     string    `json:"boardName"`
	Creator  string    `json:"creator"`
	Sections []Section `json:"sections"`
	Members  []Member  `json:"users"`
}

// FindSection 按 id 查找分区，返回下标；找不到时返回 -1。
func (b *Board) FindSection(sectionID string) int {
	for i := range b.Sections {
		if b.Sections[i].ID == sectionID {
			return i
		}
	}
	return -1
}

// Clone 返回看板的深拷贝快照，调用方可以在锁外安全读取。
func (b *Board) Clone() *Board {
	cp := &Board{
		Code:     b.Code,
		Name:     b.Name,
		Creator:  b.Creator,
		Sections: make([]Section, len(b.Sections)),
		Members:  make([]Member, len(b.Members)),
	}
	copy(cp.Members, b.Members)
	for i, sec := range b.Sections {
		posts := make([]Post, len(sec.Posts))
		for j, p := range sec.Posts {
			posts[j] = p.Clone()
		}
		cp.Sections[i] = Section{ID: sec.ID, Title: sec.Title, Posts: posts}
	}
	return cp
}
