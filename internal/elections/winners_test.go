package elections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectWinners(t *testing.T) {
	t.Run("highest vote count wins each role", func(t *testing.T) {
		candidates := []Candidate{
			{ID: 1, PlayerName: "Ann", Role: "mayor", Votes: 3},
			{ID: 2, PlayerName: "Bob", Role: "mayor", Votes: 5},
			{ID: 3, PlayerName: "Cid", Role: "mayor", Votes: 3},
			{ID: 4, PlayerName: "Dee", Role: "sheriff", Votes: 1},
		}

		winners := SelectWinners(candidates)

		require.Len(t, winners, 2)
		assert.Equal(t, "mayor", winners[0].Role)
		assert.Equal(t, "Bob", winners[0].PlayerName)
		assert.Equal(t, "sheriff", winners[1].Role)
		assert.Equal(t, "Dee", winners[1].PlayerName)
	})

	t.Run("ties resolve by player name", func(t *testing.T) {
		candidates := []Candidate{
			{ID: 1, PlayerName: "Zed", Role: "mayor", Votes: 2},
			{ID: 2, PlayerName: "Amy", Role: "mayor", Votes: 2},
		}

		winners := SelectWinners(candidates)

		require.Len(t, winners, 1)
		assert.Equal(t, "Amy", winners[0].PlayerName)
	})

	t.Run("zero votes still elect the sole candidate", func(t *testing.T) {
		winners := SelectWinners([]Candidate{{ID: 9, PlayerName: "Ann", Role: "mayor"}})

		require.Len(t, winners, 1)
		assert.EqualValues(t, 9, winners[0].ID)
	})

	t.Run("no candidates means no winners", func(t *testing.T) {
		assert.Empty(t, SelectWinners(nil))
	})
}
