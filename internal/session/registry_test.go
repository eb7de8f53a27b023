package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Connect(1))
	assert.ErrorIs(t, r.Connect(1), ErrDuplicateConn)

	_, bound := r.CharacterOf(1)
	assert.False(t, bound, "до объявления имени персонаж не привязан")

	require.NoError(t, r.Bind(1, 42, "Aria"))
	assert.ErrorIs(t, r.Bind(1, 43, "Aria"), ErrAlreadyBound)

	id, ok := r.CharacterOf(1)
	require.True(t, ok)
	assert.Equal(t, 42, id)
	_, ok = r.ReadyCharacterOf(1)
	assert.False(t, ok, "загружаемый персонаж ещё не ready")
	assert.False(t, r.IsReady(42))
	assert.Empty(t, r.Roster())

	require.NoError(t, r.MarkReady(1))
	assert.Error(t, r.MarkReady(1))
	assert.True(t, r.IsReady(42))
	conn, ok := r.ConnOf(42)
	require.True(t, ok)
	assert.Equal(t, ConnID(1), conn)
	assert.Equal(t, []Entry{{Conn: 1, CharacterID: 42, Name: "Aria"}}, r.Roster())

	state, charID, err := r.Disconnect(1)
	require.NoError(t, err)
	assert.Equal(t, StateReady, state)
	assert.Equal(t, 42, charID)
	_, ok = r.ConnOf(42)
	assert.False(t, ok)

	_, _, err = r.Disconnect(1)
	assert.ErrorIs(t, err, ErrUnknownConn)
}

func TestRegistry_OneToOne(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Connect(1))
	require.NoError(t, r.Connect(2))
	require.NoError(t, r.Bind(1, 42, "Aria"))
	assert.ErrorIs(t, r.Bind(2, 42, "Aria"), ErrCharacterBusy)
	assert.ErrorIs(t, r.Bind(3, 7, "X"), ErrUnknownConn)

	pending, loading, ready := r.Counts()
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, loading)
	assert.Equal(t, 0, ready)

	state, _, err := r.Disconnect(2)
	require.NoError(t, err)
	assert.Equal(t, StatePending, state)
	assert.Equal(t, []ConnID{1}, r.Connections())
}
