package extract

import (
	"strings"

	"github.com/bytedance/sonic"
)

// Kind classifies a block
type Kind string

const (
	KindHeading   Kind = "heading"
	KindParagraph Kind = "paragraph"
	KindImage     Kind = "image"
	KindLink      Kind = "link"
	KindContainer Kind = "container"
)

// Layout values recognised from the display property
const (
	LayoutFlex  = "flex"
	LayoutGrid  = "grid"
	LayoutBlock = "block"
)

// Style holds the allow-listed visual hints of a block
type Style struct {
	Color      string `json:"color,omitempty" yaml:"color,omitempty"`
	Background string `json:"background,omitempty" yaml:"background,omitempty"`
	FontSize   string `json:"fontSize,omitempty" yaml:"fontSize,omitempty"`
	FontWeight string `json:"fontWeight,omitempty" yaml:"fontWeight,omitempty"`
	Layout     string `json:"layout,omitempty" yaml:"layout,omitempty"`
}

// IsZero reports whether no hint is set
func (s *Style) IsZero() bool {
	return s == nil || *s == Style{}
}

// Block is one node of the page model tree
type Block struct {
	Kind     Kind    `json:"kind" yaml:"kind"`
	Text     string  `json:"text,omitempty" yaml:"text,omitempty"`
	Level    int     `json:"level,omitempty" yaml:"level,omitempty"`
	Href     string  `json:"href,omitempty" yaml:"href,omitempty"`
	Src      string  `json:"src,omitempty" yaml:"src,omitempty"`
	Alt      string  `json:"alt,omitempty" yaml:"alt,omitempty"`
	Landmark string  `json:"landmark,omitempty" yaml:"landmark,omitempty"`
	Style    *Style  `json:"style,omitempty" yaml:"style,omitempty"`
	Children []Block `json:"children,omitempty" yaml:"children,omitempty"`
}

// PageModel is the bounded structural summary of a rendered page
type PageModel struct {
	URL         string  `json:"url" yaml:"url"`
	Title       string  `json:"title,omitempty" yaml:"title,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Lang        string  `json:"lang,omitempty" yaml:"lang,omitempty"`
	Blocks      []Block `json:"blocks" yaml:"blocks"`
	Truncated   bool    `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Omitted     int     `json:"omitted,omitempty" yaml:"omitted,omitempty"`
}

// JSON serializes the model. Output is stable for equal models.
func (m *PageModel) JSON() []byte {
	data, err := sonic.ConfigStd.Marshal(m)
	if err != nil {
		// Only plain strings, ints and bools: marshalling cannot fail
		return nil
	}
	return data
}

// Size returns the serialized size in bytes
func (m *PageModel) Size() int {
	return len(m.JSON())
}

// Depth returns the maximum nesting depth; top-level blocks are depth 1
func (m *PageModel) Depth() int {
	return depthOf(m.Blocks)
}

// Count returns the total number of blocks in the tree
func (m *PageModel) Count() int {
	return countOf(m.Blocks)
}

// Clone returns a deep copy
func (m *PageModel) Clone() *PageModel {
	out := *m
	out.Blocks = cloneBlocks(m.Blocks)
	return &out
}

func depthOf(blocks []Block) int {
	max := 0
	for i := range blocks {
		if d := 1 + depthOf(blocks[i].Children); d > max {
			max = d
		}
	}
	return max
}

func countOf(blocks []Block) int {
	n := len(blocks)
	for i := range blocks {
		n += countOf(blocks[i].Children)
	}
	return n
}

func cloneBlocks(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = b
		if b.Style != nil {
			s := *b.Style
			out[i].Style = &s
		}
		out[i].Children = cloneBlocks(b.Children)
	}
	return out
}

// FlatText returns the concatenated text of a block and its descendants
func (b *Block) FlatText() string {
	var parts []string
	var walk func(*Block)
	walk = func(blk *Block) {
		switch {
		case blk.Text != "":
			parts = append(parts, blk.Text)
		case blk.Kind == KindImage && blk.Alt != "":
			parts = append(parts, blk.Alt)
		}
		for i := range blk.Children {
			walk(&blk.Children[i])
		}
	}
	walk(b)
	return normalizeWhitespace(strings.Join(parts, " "))
}
