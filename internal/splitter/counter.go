// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package splitter

import (
	"fmt"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// Counter counts tokens. Implementations must be deterministic and free of
// side effects.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(text string) int

func (f CounterFunc) Count(text string) int { return f(text) }

// WordCounter counts each run of letters or digits as one token and every
// other non-space rune as a token of its own.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r):
			if !inWord {
				n++
				inWord = true
			}
		case unicode.IsSpace(r):
			inWord = false
		default:
			n++
			inWord = false
		}
	}
	return n
}

var loaderOnce sync.Once

// Tiktoken counts BPE tokens with an embedded vocabulary, so no network
// access is needed.
type Tiktoken struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding ("p50k_base", "cl100k_base", ...).
func NewTiktoken(encoding string) (*Tiktoken, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %s: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// NewCounter returns the counter for a configured tokenizer name. An empty
// name selects p50k_base.
func NewCounter(name types.TokenizerName) (Counter, error) {
	switch name {
	case types.TokenizerWords:
		return WordCounter{}, nil
	case "", types.TokenizerP50kBase:
		return NewTiktoken(string(types.TokenizerP50kBase))
	case types.TokenizerCl100kBase:
		return NewTiktoken(string(types.TokenizerCl100kBase))
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}
