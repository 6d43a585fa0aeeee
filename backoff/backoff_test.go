package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponential(t *testing.T) {
	b := &Exponential{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond}

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 10 * time.Millisecond},
		{1, 20 * time.Millisecond},
		{2, 40 * time.Millisecond},
		{3, 50 * time.Millisecond},
		{10, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Next(tt.retry), "retry %d", tt.retry)
	}
}

func TestExponential_Factor(t *testing.T) {
	b := &Exponential{Initial: time.Millisecond, Factor: 3}
	assert.Equal(t, 9*time.Millisecond, b.Next(2))
}

func TestExponential_Jitter(t *testing.T) {
	b := NewExponential()
	for retry := 0; retry < 10; retry++ {
		d := b.Next(retry)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, b.Max)
	}
}

func TestConstant(t *testing.T) {
	b := NewConstant(5 * time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, b.Next(0))
	assert.Equal(t, 5*time.Millisecond, b.Next(7))
}
