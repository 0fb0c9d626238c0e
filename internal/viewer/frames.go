package viewer

import (
	"sync"

	"github.com/pkg/errors"

	"webkvm/internal/network"
	"webkvm/internal/protocol"
)

// keptGenerations is how many swapped sets stay addressable by generation,
// so a page still fetching set N gets set N even after N+1 lands.
const keptGenerations = 4

var (
	ErrNoFrame    = errors.New("no frame for this channel and generation")
	ErrSuperseded = errors.New("frame generation superseded")
)

type frameSet struct {
	generation uint64
	frames     [network.Channels]network.Frame
}

// FrameStore holds the four display slots shown by the viewer page
type FrameStore struct {
	mu         sync.RWMutex
	sets       [keptGenerations]frameSet // indexed by generation % keptGenerations
	generation uint64

	notify func(protocol.Message)
}

// NewFrameStore creates an empty store. notify, when set, receives a
// frames message after every swap.
func NewFrameStore(notify func(protocol.Message)) *FrameStore {
	return &FrameStore{notify: notify}
}

// Swap replaces all four slots at once
func (s *FrameStore) Swap(frames [network.Channels]network.Frame) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.sets[gen%keptGenerations] = frameSet{generation: gen, frames: frames}
	s.mu.Unlock()

	if s.notify == nil {
		return
	}
	msg, err := protocol.New(protocol.TypeFrames, protocol.FramesPayload{
		Generation: gen,
		Stamp:      frames[0].Stamp,
	})
	if err != nil {
		log.WithError(err).Error("Frames: Failed to build frames message")
		return
	}
	s.notify(msg)
}

// FrameAt returns the slot for channel as it was in generation gen. It
// returns ErrSuperseded once gen has aged out of the kept sets and
// ErrNoFrame when gen has not been swapped in yet.
func (s *FrameStore) FrameAt(channel int, gen uint64) (network.Frame, error) {
	if channel < 0 || channel >= network.Channels || gen == 0 {
		return network.Frame{}, ErrNoFrame
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if gen > s.generation {
		return network.Frame{}, ErrNoFrame
	}
	set := s.sets[gen%keptGenerations]
	if set.generation != gen {
		return network.Frame{}, ErrSuperseded
	}
	f := set.frames[channel]
	if !f.Loaded() {
		return network.Frame{}, ErrNoFrame
	}
	return f, nil
}

// Generation returns the number of swaps so far
func (s *FrameStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}
