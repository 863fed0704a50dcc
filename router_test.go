package dubbo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickHostEmptyHostsFails(t *testing.T) {
	_, err := PickHost("com.example.Svc", RoutingEntry{})
	require.Error(t, err)
	var registerErr *RegisterError
	assert.ErrorAs(t, err, &registerErr)
}

func TestPickHostUniformWithoutWeights(t *testing.T) {
	entry := RoutingEntry{Hosts: []string{"a:1", "b:2", "c:3"}}
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		host, err := PickHost("com.example.Svc", entry)
		require.NoError(t, err)
		seen[host] = true
	}
	assert.Len(t, seen, 3)
}

func TestPickHostAlwaysReturnsKnownHost(t *testing.T) {
	entry := RoutingEntry{
		Hosts:   []string{"a:1", "b:2"},
		Weights: map[string]int{"a:1": 10},
	}
	known := map[string]bool{"a:1": true, "b:2": true}
	for i := 0; i < 200; i++ {
		host, err := PickHost("com.example.Svc", entry)
		require.NoError(t, err)
		assert.True(t, known[host])
	}
}

func TestPickHostWeightedDistribution(t *testing.T) {
	entry := RoutingEntry{
		Hosts:   []string{"heavy:1", "light:2"},
		Weights: map[string]int{"heavy:1": 900, "light:2": 100},
	}
	const draws = 10000
	counts := make(map[string]int)
	for i := 0; i < draws; i++ {
		host, err := PickHost("com.example.Svc", entry)
		require.NoError(t, err)
		counts[host]++
	}

	heavyShare := float64(counts["heavy:1"]) / float64(draws)
	assert.InDelta(t, 0.9, heavyShare, 0.015)
}

func TestPickHostMissingWeightDefaultsTo100(t *testing.T) {
	entry := RoutingEntry{
		Hosts:   []string{"a:1", "b:2"},
		Weights: map[string]int{"a:1": 100},
	}
	const draws = 5000
	counts := make(map[string]int)
	for i := 0; i < draws; i++ {
		host, err := PickHost("com.example.Svc", entry)
		require.NoError(t, err)
		counts[host]++
	}
	share := float64(counts["a:1"]) / float64(draws)
	assert.InDelta(t, 0.5, share, 0.03)
}
