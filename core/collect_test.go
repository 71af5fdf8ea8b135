package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCollectErrors verifies the best-effort loop keeps going and reports
// every failure in order
func TestCollectErrors(t *testing.T) {
	t.Run("nil when everything succeeds", func(t *testing.T) {
		perr := CollectErrors("test", []int{1, 2, 3}, func(int) error { return nil })
		assert.Nil(t, perr)
	})

	t.Run("nil on empty input", func(t *testing.T) {
		perr := CollectErrors("test", nil, func(int) error { return errors.New("never called") })
		assert.Nil(t, perr)
	})

	t.Run("continues past failures and keeps order", func(t *testing.T) {
		var visited []int
		perr := CollectErrors("cart.RemoveLines", []int{1, 2, 3, 4}, func(i int) error {
			visited = append(visited, i)
			if i%2 == 0 {
				return errors.New("boom")
			}
			return nil
		})
		require.NotNil(t, perr)
		assert.Equal(t, []int{1, 2, 3, 4}, visited)
		assert.Equal(t, 4, perr.Total)
		assert.Len(t, perr.Failed, 2)
		assert.Contains(t, perr.Error(), "2 of 4")
	})

	t.Run("individual failures reachable through errors.Is", func(t *testing.T) {
		perr := CollectErrors("cart.MigrateGuestCart", []int{1, 2}, func(i int) error {
			if i == 2 {
				return ErrServerUnavailable
			}
			return nil
		})
		require.NotNil(t, perr)
		assert.True(t, errors.Is(perr, ErrServerUnavailable))
	})
}
