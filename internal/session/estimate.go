package session

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/fable/internal/game"
	"github.com/felixgeelhaar/fable/internal/provider"
)

const defaultEstimateDelay = 300 * time.Millisecond

// estimator debounces advisory token-count requests so rapid typing
// coalesces into one backend call, and discards results that arrive after
// the session has moved on. A generation counter, not a boolean flag,
// prevents a stale goroutine from delivering over a newer request.
type estimator struct {
	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
	delay time.Duration
}

func newEstimator(delay time.Duration) *estimator {
	if delay <= 0 {
		delay = defaultEstimateDelay
	}
	return &estimator{delay: delay}
}

// schedule supersedes any pending request and arms run for after the
// debounce window. run receives the generation it belongs to.
func (t *estimator) schedule(run func(gen uint64)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	g := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.delay, func() { run(g) })
}

// invalidate cancels pending work and marks in-flight results stale. Called
// whenever a real turn starts or the session changes.
func (t *estimator) invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *estimator) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen
}

// EstimateTokens requests a debounced, best-effort token count for the draft
// action. The callback fires only if the estimate is still current when it
// resolves; a stale estimate is cosmetic, so it is simply dropped. Providers
// without token counting never produce a callback.
func (e *Engine) EstimateTokens(ctx context.Context, draft string, deliver func(int)) {
	e.estimator.schedule(func(gen uint64) {
		e.mu.Lock()
		sess := e.sess
		if sess == nil || sess.Status != StatusPlaying || sess.Conversation == nil {
			e.mu.Unlock()
			return
		}
		cfg := sess.TextConfig
		conv := sess.Conversation
		world := game.WorldView{
			Inventory:  sess.Inventory,
			WorldState: sess.WorldState,
			NPCs:       sess.NPCs,
		}
		e.mu.Unlock()

		p, err := e.providerFor(cfg)
		if err != nil {
			return
		}
		counter, ok := p.(provider.TokenCounter)
		if !ok {
			return
		}

		n, err := counter.CountTokens(ctx, cfg, conv, draft, world)
		if err != nil {
			return
		}
		if e.estimator.current(gen) {
			deliver(n)
		}
	})
}
