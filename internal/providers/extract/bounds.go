package extract

import (
	"github.com/bytedance/sonic"
)

// enforceDepth flattens containers sitting at the depth ceiling into a
// paragraph of their text. Flattened containers with no text are dropped.
func enforceDepth(blocks []Block, depth int, opts Options) ([]Block, bool) {
	flattened := false
	out := blocks[:0]
	for _, b := range blocks {
		if b.Kind == KindContainer && len(b.Children) > 0 {
			if depth >= opts.MaxDepth {
				flattened = true
				text := capRunes(b.FlatText(), opts.MaxTextLen)
				if text == "" {
					continue
				}
				b = Block{Kind: KindParagraph, Text: text, Landmark: b.Landmark, Style: b.Style}
			} else {
				var f bool
				b.Children, f = enforceDepth(b.Children, depth+1, opts)
				flattened = flattened || f
			}
		}
		out = append(out, b)
	}
	return out, flattened
}

// enforceSize keeps the longest breadth-first prefix of blocks whose
// serialization fits max bytes. Returns the number of blocks omitted.
func enforceSize(m *PageModel, max int) int {
	if m.Size() <= max {
		return 0
	}

	total := m.Count()
	order := breadthFirst(m.Blocks)

	envelope := PageModel{URL: m.URL, Title: m.Title, Description: m.Description, Lang: m.Lang,
		Blocks: []Block{}, Truncated: true, Omitted: total}
	budget := max - envelope.Size()

	keep := 0
	for _, b := range order {
		cost := nodeCost(b)
		if cost > budget {
			break
		}
		budget -= cost
		keep++
	}

	for {
		kept := make(map[*Block]bool, keep)
		for _, b := range order[:keep] {
			kept[b] = true
		}
		candidate := *m
		candidate.Blocks = retain(m.Blocks, kept)
		candidate.Truncated = true
		candidate.Omitted = total - keep

		if candidate.Size() <= max || keep == 0 {
			if keep == 0 && candidate.Size() > max {
				candidate.Description, candidate.Title = "", ""
			}
			*m = candidate
			return total - keep
		}
		keep--
	}
}

// nodeCost over-estimates what one block adds to its parent's serialization:
// its own fields, a children wrapper and a separating comma
func nodeCost(b *Block) int {
	own := *b
	own.Children = nil
	data, err := sonic.ConfigStd.Marshal(&own)
	if err != nil {
		return 0
	}
	return len(data) + len(`,"children":[]`) + 1
}

func breadthFirst(blocks []Block) []*Block {
	var order []*Block
	level := make([]*Block, 0, len(blocks))
	for i := range blocks {
		level = append(level, &blocks[i])
	}
	for len(level) > 0 {
		order = append(order, level...)
		var next []*Block
		for _, b := range level {
			for i := range b.Children {
				next = append(next, &b.Children[i])
			}
		}
		level = next
	}
	return order
}

// retain copies the blocks present in kept, preserving tree shape
func retain(blocks []Block, kept map[*Block]bool) []Block {
	out := []Block{}
	for i := range blocks {
		b := &blocks[i]
		if !kept[b] {
			continue
		}
		c := *b
		c.Children = nil
		if children := retain(b.Children, kept); len(children) > 0 {
			c.Children = children
		}
		out = append(out, c)
	}
	return out
}
