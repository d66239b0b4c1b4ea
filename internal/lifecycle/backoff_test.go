package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay(t *testing.T) {
	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 60 * time.Second},
		{1, 120 * time.Second},
		{2, 240 * time.Second},
		{3, 480 * time.Second},
		{4, 600 * time.Second},
		{5, 600 * time.Second},
		{100, 600 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Delay(tt.retryCount), "retry_count=%d", tt.retryCount)
	}
}

func TestDelayNegativeCount(t *testing.T) {
	assert.Equal(t, 60*time.Second, Delay(-1))
}
