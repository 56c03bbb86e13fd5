package prompt

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many tokens a text costs
type TokenCounter interface {
	Count(text string) int
	Name() string
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// NewTokenCounter returns a cl100k_base counter, or the byte heuristic when
// the encoding cannot be loaded within DefaultBPELoadTimeout
func NewTokenCounter() TokenCounter {
	encodingOnce.Do(func() {
		tiktoken.SetBpeLoader(newBPELoader(DefaultBPELoadTimeout))
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding == nil {
		return HeuristicCounter{}
	}
	return tiktokenCounter{enc: encoding}
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

func (c tiktokenCounter) Name() string { return "cl100k_base" }

// HeuristicCounter charges one token per three bytes, rounded up. It
// over-counts typical English and markup.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	return (len(text) + 2) / 3
}

func (HeuristicCounter) Name() string { return "bytes/3" }
