package watch

import (
	"strings"
	"time"
)

// Ticker rotates through frames on every poll tick. A frozen ticker means
// the UI stopped receiving ticks.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"⟲", "⟳"}}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

// Spinner lights up when a node changes status and fades afterwards.
type Spinner struct {
	dots       int
	lastChange time.Time
}

func (s *Spinner) OnChange(at time.Time) {
	s.dots = 5
	s.lastChange = at
}

// Decay drops one dot per two seconds since the last change.
func (s *Spinner) Decay(now time.Time) {
	if s.dots == 0 {
		return
	}
	faded := int(now.Sub(s.lastChange) / (2 * time.Second))
	s.dots = max(0, 5-faded)
}

func (s Spinner) Render(theme Theme) string {
	var b strings.Builder
	for i := range 5 {
		if i < s.dots {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}

func (s Spinner) LastChange() time.Time {
	return s.lastChange
}
