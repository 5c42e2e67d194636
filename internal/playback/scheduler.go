// Package playback serializes decoded response audio into one gapless
// output stream. Arrival order is render order; there is no reordering
// buffer and never more than one active render.
package playback

import (
	"sync"

	"go.uber.org/zap"

	"github.com/voicewire/voicewire/internal/device"
)

// State is the scheduler's externally visible state.
type State int

const (
	StateIdle State = iota
	StatePlaying
)

func (s State) String() string {
	if s == StatePlaying {
		return "playing"
	}
	return "idle"
}

// Scheduler queues decoded sample buffers and renders them strictly
// sequentially. Enqueue while idle begins rendering immediately; when the
// queue drains the scheduler returns to idle.
type Scheduler interface {
	// Enqueue appends an item to the FIFO queue. The scheduler takes
	// ownership of the slice.
	Enqueue(samples []float32)

	// Cancel clears the queue and forces idle. An in-flight render is
	// abandoned, not resumed; items enqueued after Cancel play normally.
	Cancel()

	// State reports idle or playing.
	State() State

	// QueueLen reports the number of items waiting behind the active
	// render.
	QueueLen() int
}

type scheduler struct {
	logger *zap.Logger
	player device.Player

	mu     sync.Mutex
	queue  [][]float32
	state  State
	epoch  int  // bumped by Cancel so a stale render cannot touch state
	active bool // render worker liveness; at most one worker ever exists
}

// NewScheduler creates a Scheduler rendering through the given player.
func NewScheduler(logger *zap.Logger, player device.Player) Scheduler {
	return &scheduler{
		logger: logger,
		player: player,
	}
}

func (s *scheduler) Enqueue(samples []float32) {
	if len(samples) == 0 {
		return
	}

	s.mu.Lock()
	s.queue = append(s.queue, samples)
	startWorker := !s.active
	if startWorker {
		s.active = true
		s.state = StatePlaying
	}
	queued := len(s.queue)
	s.mu.Unlock()

	s.logger.Debug("Playback item enqueued",
		zap.Int("samples", len(samples)),
		zap.Int("queue_length", queued))

	if startWorker {
		go s.run()
	}
}

// run is the single render worker. It pops head items one at a time and
// blocks in the player for each; because Enqueue never starts a second
// worker while active is set, renders can never overlap.
func (s *scheduler) run() {
	lastEpoch := -1
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			flush := lastEpoch == s.epoch
			s.mu.Unlock()

			// Pause boundary: the player's carried remainder is rendered
			// now, or dropped when the items it came from were cancelled.
			if flush {
				if err := s.player.Flush(); err != nil {
					s.logger.Debug("Flush aborted", zap.Error(err))
				}
			} else {
				s.player.Discard()
			}

			s.mu.Lock()
			if len(s.queue) == 0 {
				s.state = StateIdle
				s.active = false
				s.mu.Unlock()
				s.logger.Debug("Playback drained, scheduler idle")
				return
			}
			s.mu.Unlock()
			continue
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		epoch := s.epoch
		lastEpoch = epoch
		s.state = StatePlaying
		s.mu.Unlock()

		if err := s.player.Play(item); err != nil {
			s.logger.Debug("Render aborted", zap.Error(err))
		}

		s.mu.Lock()
		cancelled := epoch != s.epoch
		s.mu.Unlock()
		if cancelled {
			s.player.Discard()
			s.logger.Debug("Render finished after cancel, result discarded")
		}
	}
}

func (s *scheduler) Cancel() {
	s.mu.Lock()
	dropped := len(s.queue)
	s.queue = nil
	s.epoch++
	s.state = StateIdle
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Info("Playback cancelled", zap.Int("dropped_items", dropped))
	}
}

func (s *scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
