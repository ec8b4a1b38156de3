package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponentialRetryDelay(t *testing.T) {
	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
	}

	for n, want := range expected {
		require.Equal(t, want, ExponentialRetryDelay(n, nil, nil), "delay after %d retries", n)
	}
}
