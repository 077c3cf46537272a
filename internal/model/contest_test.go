package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContestTransitions(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{ContestStatusScheduled, ContestStatusOpen, true},
		{ContestStatusOpen, ContestStatusClosed, true},
		{ContestStatusOpen, ContestStatusCancelled, true},
		{ContestStatusClosed, ContestStatusSettled, true},
		{ContestStatusClosed, ContestStatusCancelled, true},

		// 不允许跳级或回退
		{ContestStatusScheduled, ContestStatusClosed, false},
		{ContestStatusScheduled, ContestStatusSettled, false},
		{ContestStatusScheduled, ContestStatusCancelled, false},
		{ContestStatusOpen, ContestStatusScheduled, false},
		{ContestStatusOpen, ContestStatusSettled, false},
		{ContestStatusClosed, ContestStatusOpen, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.allowed, CanContestTransitionTo(c.from, c.to),
			"%s -> %s", c.from, c.to)
	}
}

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	for _, status := range []string{ContestStatusSettled, ContestStatusCancelled} {
		_, exists := ValidContestTransitions[status]
		assert.False(t, exists, "终态 %s 不应有出边", status)
	}
}

func TestContestIsTerminal(t *testing.T) {
	assert.True(t, (&Contest{Status: ContestStatusSettled}).IsTerminal())
	assert.True(t, (&Contest{Status: ContestStatusCancelled}).IsTerminal())
	assert.False(t, (&Contest{Status: ContestStatusOpen}).IsTerminal())
	assert.False(t, (&Contest{Status: ContestStatusClosed}).IsTerminal())
	assert.False(t, (&Contest{Status: ContestStatusScheduled}).IsTerminal())
}
