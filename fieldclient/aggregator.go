package fieldclient

import (
	"sync"
	"time"

	"github.com/braianpx/fieldtrack/internal/models"
)

// responseCoalescer buffers bursts of responses-survey envelopes and flushes
// them after a quiet window, deduplicated by response id with the last
// payload winning. The pending buffer and timer flag are explicit state so
// the teardown flush is a plain method call rather than a dangling closure.
type responseCoalescer struct {
	mu          sync.Mutex
	window      time.Duration
	pending     []models.SurveyResponse
	timer       *time.Timer
	timerActive bool
	closed      bool

	// flushed sequence: ids in first-seen order, latest payload per id.
	order []int
	byID  map[int]models.SurveyResponse
}

func newResponseCoalescer(window time.Duration) *responseCoalescer {
	return &responseCoalescer{
		window: window,
		byID:   make(map[int]models.SurveyResponse),
	}
}

// add buffers a batch and arms (or re-arms) the debounce timer: every new
// burst pushes the flush back one full window.
func (rc *responseCoalescer) add(batch []models.SurveyResponse) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	rc.pending = append(rc.pending, batch...)
	if rc.timerActive {
		rc.timer.Reset(rc.window)
		return
	}
	rc.timerActive = true
	rc.timer = time.AfterFunc(rc.window, rc.flush)
}

func (rc *responseCoalescer) flush() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.timerActive = false
	rc.flushLocked()
}

func (rc *responseCoalescer) flushLocked() {
	for _, r := range rc.pending {
		if _, seen := rc.byID[r.ID]; !seen {
			rc.order = append(rc.order, r.ID)
		}
		rc.byID[r.ID] = r
	}
	rc.pending = rc.pending[:0]
}

// snapshot returns the deduplicated flushed sequence.
func (rc *responseCoalescer) snapshot() []models.SurveyResponse {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]models.SurveyResponse, 0, len(rc.order))
	for _, id := range rc.order {
		out = append(out, rc.byID[id])
	}
	return out
}

// close stops the timer and flushes whatever is still pending, so nothing
// buffered is lost on teardown.
func (rc *responseCoalescer) close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	rc.closed = true
	if rc.timerActive {
		rc.timer.Stop()
		rc.timerActive = false
	}
	rc.flushLocked()
}
