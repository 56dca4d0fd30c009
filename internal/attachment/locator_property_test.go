package attachment

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"ecphub/backend/internal/domain"
)

// buildTree 根据生成的节点种类与父节点下标构造部件树
//
// 种类: 0 普通部件, 1 带文件名的内联部件, 2 带文件名的远程附件, 3 只有 AttachmentID 的部件
func buildTree(kinds []int, parents []int) (*domain.Part, int) {
	if len(kinds) == 0 {
		return nil, 0
	}
	inline := 0
	nodes := make([]*domain.Part, len(kinds))
	for i, kind := range kinds {
		p := &domain.Part{PartID: fmt.Sprint(i)}
		switch kind {
		case 1:
			p.Filename = fmt.Sprintf("inline-%d.txt", i)
			inline++
		case 2:
			p.Filename = fmt.Sprintf("file-%d.pdf", i)
			p.Body.AttachmentID = fmt.Sprintf("att-%d", i)
		case 3:
			p.Body.AttachmentID = fmt.Sprintf("anon-%d", i)
		}
		nodes[i] = p
		if i > 0 {
			parent := 0
			if i-1 < len(parents) {
				parent = parents[i-1] % i
			}
			nodes[parent].Parts = append(nodes[parent].Parts, p)
		}
	}
	return nodes[0], inline
}

func TestCountBoundsLocateProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("count >= len(locate), equality iff no inline named parts", prop.ForAll(
		func(kinds []int, parents []int) bool {
			root, inline := buildTree(kinds, parents)
			count := Count(root)
			located := len(Locate("m", root))

			if count < located {
				return false
			}
			return (count == located) == (inline == 0)
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.Property("every part is visited exactly once", prop.ForAll(
		func(kinds []int, parents []int) bool {
			root, _ := buildTree(kinds, parents)
			seen := make(map[*domain.Part]int)
			walk(root, func(p *domain.Part) { seen[p]++ })

			if len(seen) != len(kinds) {
				return false
			}
			for _, n := range seen {
				if n != 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}
