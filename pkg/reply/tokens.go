package reply

import (
	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// perMessageOverhead approximates the role and separator tokens of the chat format.
const perMessageOverhead = 4

type TokenCounter interface {
	Count(s string) int
}

type codecCounter struct {
	codec tokenizer.Codec
}

func (c codecCounter) Count(s string) int {
	ids, _, err := c.codec.Encode(s)
	if err != nil {
		return len(s)
	}
	return len(ids)
}

// NewTokenCounter picks the tokenizer of model, falling back to cl100k_base for models
// the tokenizer does not know.
func NewTokenCounter(model string) (TokenCounter, error) {
	if model != "" {
		c, err := tokenizer.ForModel(tokenizer.Model(model))
		if err == nil {
			return codecCounter{codec: c}, nil
		}
		log.Debug().Str("model", model).Msg("unknown tokenizer model, using cl100k_base")
	}
	c, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, errors.Wrap(err, "load tokenizer")
	}
	return codecCounter{codec: c}, nil
}

// TrimHistory keeps the most recent entries whose combined token count fits in budget.
// A budget of zero or less keeps everything.
func TrimHistory(history []conversation.HistoryEntry, budget int, counter TokenCounter) []conversation.HistoryEntry {
	if budget <= 0 || counter == nil {
		return history
	}
	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		n := counter.Count(history[i].Content) + perMessageOverhead
		if total+n > budget {
			break
		}
		total += n
		start = i
	}
	if start > 0 {
		log.Debug().Int("dropped", start).Int("kept", len(history)-start).Int("tokens", total).Msg("trimmed history")
	}
	return history[start:]
}
