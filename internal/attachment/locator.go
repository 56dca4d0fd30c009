package attachment

import "ecphub/backend/internal/domain"

// Count 统计部件树中带文件名的部件数量（无论正文是否内联）
//
// 根部件本身也参与统计：单部件邮件的根带有文件名时计为 1，Locate 同样会返回它。
func Count(root *domain.Part) int {
	count := 0
	walk(root, func(p *domain.Part) {
		if p.Filename != "" {
			count++
		}
	})
	return count
}

// Locate 找出需要额外拉取正文的附件部件
//
// 只有同时具备非空文件名与 AttachmentID 的部件才会返回；内联正文即使有文件名也会被排除。
// 返回顺序为栈遍历顺序，不保证与文档顺序一致。没有命中时返回空切片而不是错误。
//
// 参数:
//   - messageID: 所属邮件 ID，写入每个引用
//   - root: 部件树根节点，可以为 nil
//
// 返回值:
//   - []domain.AttachmentRef: 附件引用列表
func Locate(messageID string, root *domain.Part) []domain.AttachmentRef {
	refs := make([]domain.AttachmentRef, 0)
	walk(root, func(p *domain.Part) {
		if p.Filename != "" && p.Body.AttachmentID != "" {
			refs = append(refs, domain.AttachmentRef{
				MessageID:    messageID,
				PartID:       p.PartID,
				Filename:     p.Filename,
				AttachmentID: p.Body.AttachmentID,
			})
		}
	})
	return refs
}

// walk 显式栈迭代遍历，深度由外部数据决定，不能递归。
func walk(root *domain.Part, visit func(*domain.Part)) {
	if root == nil {
		return
	}
	stack := []*domain.Part{root}
	for len(stack) > 0 {
		n := len(stack) - 1
		part := stack[n]
		stack = stack[:n]

		visit(part)

		for _, child := range part.Parts {
			if child != nil {
				stack = append(stack, child)
			}
		}
	}
}
