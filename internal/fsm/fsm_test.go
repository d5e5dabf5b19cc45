// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string
type event string

func table() []Transition[state, event] {
	return []Transition[state, event]{
		{From: "off", Event: "power", To: "on"},
		{From: "on", Event: "power", To: "off"},
	}
}

func TestMachine_FireFollowsTable(t *testing.T) {
	m, err := New[state, event]("off", table())
	require.NoError(t, err)

	var seen []string
	m.OnTransition(func(from, to state, ev event) {
		seen = append(seen, string(from)+">"+string(to))
	})

	to, err := m.Fire("power")
	require.NoError(t, err)
	assert.Equal(t, state("on"), to)
	assert.Equal(t, state("on"), m.State())

	_, err = m.Fire("power")
	require.NoError(t, err)
	assert.Equal(t, []string{"off>on", "on>off"}, seen)
}

func TestMachine_UnknownEdgeIsRejected(t *testing.T) {
	m := MustNew[state, event]("off", table())

	assert.False(t, m.Can("explode"))
	from, err := m.Fire("explode")
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, state("off"), from)
	assert.Equal(t, state("off"), m.State())
}

func TestMachine_ObserverSeesOnlyAppliedTransitions(t *testing.T) {
	m := MustNew[state, event]("off", table())
	calls := 0
	m.OnTransition(func(state, state, event) { calls++ })

	_, err := m.Fire("explode")
	require.Error(t, err)
	assert.Zero(t, calls)

	_, err = m.Fire("power")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, m.Can("power"))
}

func TestNew_RejectsDuplicateEdges(t *testing.T) {
	_, err := New[state, event]("off", append(table(), Transition[state, event]{From: "off", Event: "power", To: "off"}))
	require.Error(t, err)
}
