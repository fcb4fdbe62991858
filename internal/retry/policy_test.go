package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPolicy_Defaults(t *testing.T) {
	p := NewPolicy("", 0, 0, -1)
	assert.Equal(t, DefaultPolicy(), p)

	p = NewPolicy("bogus", 0, 0, 5)
	assert.Equal(t, Linear, p.Mode)
	assert.Equal(t, 5, p.MaxRetries)

	p = NewPolicy("fixed", time.Minute, time.Second, 1)
	assert.Equal(t, time.Second, p.Initial, "initial is capped by max")
	assert.NoError(t, p.Validate())
}

func TestPolicy_Delay(t *testing.T) {
	tests := []struct {
		name  string
		p     Policy
		retry int
		want  time.Duration
	}{
		{"zero retry", DefaultPolicy(), 0, 0},
		{"fixed", Policy{Mode: Fixed, Initial: time.Second, Max: time.Minute}, 3, time.Second},
		{"linear", Policy{Mode: Linear, Initial: time.Second, Max: time.Minute}, 3, 3 * time.Second},
		{"linear capped", Policy{Mode: Linear, Initial: time.Second, Max: 2 * time.Second}, 3, 2 * time.Second},
		{"exponential", Policy{Mode: Exponential, Initial: time.Second, Max: time.Minute}, 4, 8 * time.Second},
		{"exponential capped", Policy{Mode: Exponential, Initial: time.Second, Max: 5 * time.Second}, 4, 5 * time.Second},
		{"exponential huge", Policy{Mode: Exponential, Initial: time.Second, Max: 5 * time.Second}, 100, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Delay(tt.retry))
		})
	}
}

func TestPolicy_Allow(t *testing.T) {
	p := Policy{MaxRetries: 2}
	assert.True(t, p.Allow(0))
	assert.True(t, p.Allow(1))
	assert.False(t, p.Allow(2))

	assert.False(t, Policy{}.Allow(0))
}

func TestPolicy_Validate(t *testing.T) {
	assert.Error(t, Policy{Max: time.Second}.Validate())
	assert.Error(t, Policy{Initial: time.Second}.Validate())
	assert.Error(t, Policy{Initial: time.Second, Max: time.Second, MaxRetries: -1}.Validate())
	assert.Error(t, Policy{Mode: "random", Initial: time.Second, Max: time.Second}.Validate())
	assert.NoError(t, Policy{Initial: time.Second, Max: time.Second}.Validate())
	assert.NoError(t, DefaultPolicy().Validate())
}
