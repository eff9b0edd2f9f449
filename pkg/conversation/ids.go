package conversation

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDSource mints message ids. It must never hand out the same id twice within one
// conversation; the reducer does not check for collisions.
type IDSource interface {
	NewID() MessageID
}

type IDSourceFunc func() MessageID

func (f IDSourceFunc) NewID() MessageID {
	return f()
}

// UUIDSource mints random uuid strings.
type UUIDSource struct{}

func (UUIDSource) NewID() MessageID {
	return MessageID(uuid.NewString())
}

var _ IDSource = UUIDSource{}

// SequenceSource mints prefix1, prefix2, ... It is safe for concurrent use.
type SequenceSource struct {
	prefix string
	n      atomic.Uint64
}

// NewSequenceSource returns a source whose first id is prefix followed by start+1.
func NewSequenceSource(prefix string, start uint64) *SequenceSource {
	ret := &SequenceSource{prefix: prefix}
	ret.n.Store(start)
	return ret
}

// SequenceSourceFor continues numbering after the messages already present in s.
// Messages are never deleted, so the message count is the number of ids minted so far.
func SequenceSourceFor(prefix string, s *State) *SequenceSource {
	start := uint64(0)
	if s != nil {
		start = uint64(len(s.Messages))
	}
	return NewSequenceSource(prefix, start)
}

func (s *SequenceSource) NewID() MessageID {
	return MessageID(fmt.Sprintf("%s%d", s.prefix, s.n.Add(1)))
}

var _ IDSource = (*SequenceSource)(nil)
