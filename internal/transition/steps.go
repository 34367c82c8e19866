package transition

import (
	"time"

	"github.com/thatsimonsguy/aquactl/internal/value"
)

// Instant jumps straight to the target and always reports a change.
func Instant[T any]() StepFunc[T] {
	return func(_ time.Duration, current *T, target T) Result {
		*current = target
		return Changed
	}
}

type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Linear moves current by stepSize every stepSize/velocity of accumulated
// time, velocity being units per second. It never overshoots the target.
func Linear[N Number](velocity float64, stepSize N) StepFunc[N] {
	if velocity <= 0 || stepSize <= 0 {
		return Instant[N]()
	}
	threshold := time.Duration(float64(stepSize) / velocity * float64(time.Second))
	if threshold <= 0 {
		threshold = time.Nanosecond
	}
	var acc time.Duration

	return func(elapsed time.Duration, current *N, target N) Result {
		if *current == target {
			acc = 0
			return Finished
		}
		acc += elapsed
		if acc < threshold {
			return Unchanged
		}
		count := int64(acc / threshold)
		acc %= threshold

		if *current < target {
			*current += advance(count, stepSize, target-*current)
		} else {
			*current -= advance(count, stepSize, *current-target)
		}

		if *current == target {
			acc = 0
			return Finished
		}
		return Changed
	}
}

// advance is the distance count steps cover, capped at diff. diff wraps
// negative when the distance does not fit N; a single step is taken then.
func advance[N Number](count int64, stepSize, diff N) N {
	if diff <= 0 {
		return stepSize
	}
	q := diff / stepSize
	if float64(count) > float64(q) {
		return diff
	}
	n := N(count)
	if n > q {
		return diff
	}
	if move := n * stepSize; move < diff {
		return move
	}
	return diff
}

// LinearValue ramps signed and unsigned values linearly. Any other kind, or
// a target of a different kind than current, is applied instantly.
func LinearValue(velocity float64, stepSize uint64) StepFunc[value.Value] {
	signed := Linear[int64](velocity, int64(stepSize))
	unsigned := Linear[uint64](velocity, stepSize)

	return func(elapsed time.Duration, current *value.Value, target value.Value) Result {
		if current.Kind() != target.Kind() {
			*current = target
			return Changed
		}
		switch target.Kind() {
		case value.KindSigned:
			c, _ := value.Get[int64](*current)
			t, _ := value.Get[int64](target)
			res := signed(elapsed, &c, t)
			*current = value.NewSigned(c)
			return res
		case value.KindUnsigned:
			c, _ := value.Get[uint64](*current)
			t, _ := value.Get[uint64](target)
			res := unsigned(elapsed, &c, t)
			*current = value.NewUnsigned(c)
			return res
		}
		*current = target
		return Changed
	}
}

// EqualValues is the Equal function for value.Value transitioners.
func EqualValues(a, b value.Value) bool { return a.Equal(b) }
