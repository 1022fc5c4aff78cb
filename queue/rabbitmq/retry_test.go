package rabbitmq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}

	cases := []struct {
		try  int
		want time.Duration
		stop bool
	}{
		{0, 100 * time.Millisecond, false},
		{1, 200 * time.Millisecond, false},
		{3, 800 * time.Millisecond, false},
		{4, 0, true},
		{50, 0, true},
	}
	for _, tc := range cases {
		d, stop := b.TryNum(tc.try)
		assert.Equal(t, tc.want, d, "try %d", tc.try)
		assert.Equal(t, tc.stop, stop, "try %d", tc.try)
	}
}

func TestBackoff_Invalid(t *testing.T) {
	_, stop := Backoff{}.TryNum(0)
	assert.True(t, stop)
	_, stop = Backoff{Base: time.Second, Max: time.Minute}.TryNum(0)
	assert.True(t, stop)
}

func TestDefaultBackoff(t *testing.T) {
	d, stop := NewDefaultBackoff().TryNum(0)
	assert.Equal(t, DefaultRetryInterval, d)
	assert.False(t, stop)
}

func TestConstantInterval(t *testing.T) {
	for i := range 5 {
		d, stop := ConstantInterval(time.Second).TryNum(i)
		assert.Equal(t, time.Second, d)
		assert.False(t, stop)
	}
}
