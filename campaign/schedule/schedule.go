// Package schedule produces target send times for a campaign run.
//
// Every method reads the clock at most once and draws randomness only from the
// generator's source, so a seeded Generator is fully deterministic.
package schedule

import (
	"math/rand/v2"
	"slices"
	"time"
)

// Day is the width of one spike-mode window.
const Day = 24 * time.Hour

// Generator builds schedules. The zero value uses time.Now and an unseeded source.
type Generator struct {
	Now  func() time.Time
	Rand *rand.Rand
}

// New returns a Generator seeded with seed. Two generators with the same seed and
// clock produce identical schedules.
func New(seed uint64) *Generator {
	return &Generator{
		Now:  time.Now,
		Rand: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// NoDelay returns n copies of the current time.
func (g *Generator) NoDelay(n int) []time.Time {
	if n <= 0 {
		return []time.Time{}
	}
	now := g.now()
	times := make([]time.Time, n)
	for i := range times {
		times[i] = now
	}
	return times
}

// CustomDelay spaces n sends by independent uniform delays in [minDelay, maxDelay].
// The first entry is already one delay after now.
func (g *Generator) CustomDelay(n int, minDelay, maxDelay time.Duration) []time.Time {
	if n <= 0 {
		return []time.Time{}
	}
	current := g.now()
	times := make([]time.Time, 0, n)
	for range n {
		current = current.Add(g.uniform(minDelay, maxDelay))
		times = append(times, current)
	}
	return times
}

// Batch groups n sends into batches of uniform size in [minBatch, maxBatch] that
// share one timestamp, separated by uniform delays in [minDelay, maxDelay]. No delay
// is drawn after the final batch. minBatch must be at least 1.
func (g *Generator) Batch(n, minBatch, maxBatch int, minDelay, maxDelay time.Duration) []time.Time {
	if n <= 0 {
		return []time.Time{}
	}
	current := g.now()
	times := make([]time.Time, 0, n)
	remaining := n
	for remaining > 0 {
		size := min(max(g.intn(minBatch, maxBatch), 1), remaining)
		for range size {
			times = append(times, current)
		}
		remaining -= size
		if remaining > 0 {
			current = current.Add(g.uniform(minDelay, maxDelay))
		}
	}
	return times
}

// Spike spreads dayCounts[i] sends uniformly over the 24 hours starting at the
// midnight of start+i days, sorted within each day. A zero start means now.
func (g *Generator) Spike(dayCounts []int, start time.Time) []time.Time {
	if start.IsZero() {
		start = g.now()
	}
	total := 0
	for _, c := range dayCounts {
		total += max(c, 0)
	}
	times := make([]time.Time, 0, total)
	for i, count := range dayCounts {
		if count <= 0 {
			continue
		}
		dayStart := DayStart(start, i)
		daily := make([]time.Time, count)
		for j := range daily {
			offset := time.Duration(g.float64() * float64(Day))
			daily[j] = dayStart.Add(offset)
		}
		slices.SortFunc(daily, func(a, b time.Time) int { return a.Compare(b) })
		times = append(times, daily...)
	}
	return times
}

// DayStart returns local midnight of the day that is offset days after t.
func DayStart(t time.Time, offset int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+offset, 0, 0, 0, 0, t.Location())
}

func (g *Generator) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

func (g *Generator) float64() float64 {
	if g.Rand == nil {
		return rand.Float64()
	}
	return g.Rand.Float64()
}

// uniform draws a duration from the half-open range [lo, hi); hi itself is
// never drawn unless lo == hi. Swapped bounds are tolerated.
func (g *Generator) uniform(lo, hi time.Duration) time.Duration {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + time.Duration(g.float64()*float64(hi-lo))
}

// intn draws an integer from [lo, hi].
func (g *Generator) intn(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	span := hi - lo + 1
	if g.Rand == nil {
		return lo + rand.IntN(span)
	}
	return lo + g.Rand.IntN(span)
}
