// Package tokens estimates the token footprint of conversation context so
// the evaluate fast-path payload stays inside the coach backend's context
// budget.
package tokens

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/torrance721/careerflow-practice/internal/domain"
)

// DefaultContextBudget is the token budget for the history slice of an
// evaluate payload. The fast path must answer quickly, so it gets a trimmed
// view rather than the full transcript.
const DefaultContextBudget = 3000

// perMessageOverhead approximates the framing cost of one message beyond its
// content tokens.
const perMessageOverhead = 4

// Estimator counts tokens with the cl100k encoding and trims message history
// to a budget.
type Estimator struct {
	once  sync.Once
	codec tokenizer.Codec
	err   error
}

// NewEstimator creates an estimator. The tokenizer codec is loaded lazily on
// first use.
func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) getCodec() (tokenizer.Codec, error) {
	e.once.Do(func() {
		e.codec, e.err = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if e.err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", e.err)
	}
	return e.codec, nil
}

// Count returns the token count of a text. If the tokenizer cannot be
// loaded, it falls back to a character-based estimate rather than failing
// the send path.
func (e *Estimator) Count(text string) int {
	codec, err := e.getCodec()
	if err != nil {
		// ~4 characters per token is a serviceable approximation
		return len(text)/4 + 1
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return len(text)/4 + 1
	}
	return len(ids)
}

// CountMessage returns the token cost of one message including framing.
func (e *Estimator) CountMessage(msg domain.Message) int {
	return e.Count(msg.Content) + perMessageOverhead
}

// TrimToBudget returns the longest suffix of messages whose total token cost
// fits the budget. Recency wins: older turns are dropped first. The most
// recent message is always kept, even if it alone exceeds the budget.
func (e *Estimator) TrimToBudget(messages []domain.Message, budget int) []domain.Message {
	if len(messages) == 0 {
		return messages
	}
	if budget <= 0 {
		budget = DefaultContextBudget
	}

	total := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := e.CountMessage(messages[i])
		if total+cost > budget && start < len(messages) {
			break
		}
		total += cost
		start = i
	}

	return messages[start:]
}
