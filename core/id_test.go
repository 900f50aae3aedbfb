package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDUnmarshal(t *testing.T) {
	tcs := []struct {
		name string
		in   string
		exp  ID
	}{
		{name: "string id", in: `{"user_id": "42"}`, exp: "42"},
		{name: "numeric id", in: `{"user_id": 42}`, exp: "42"},
		{name: "large numeric id keeps its digits", in: `{"user_id": 9007199254740993}`, exp: "9007199254740993"},
		{name: "uuid", in: `{"user_id": "b2c0e3e2-4f4a-4d1e-9d3e-0a4f4b5e6c7d"}`, exp: "b2c0e3e2-4f4a-4d1e-9d3e-0a4f4b5e6c7d"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var u User
			require.Nil(t, json.Unmarshal([]byte(tc.in), &u))
			assert.Equal(t, tc.exp, u.ID)
		})
	}
}

func TestRoomNames(t *testing.T) {
	assert.Equal(t, "user_42", PersonalRoom("42"))
	assert.Equal(t, "group_7", GroupRoom("7"))
}

func TestNorm(t *testing.T) {
	assert.Equal(t, ID("42"), Norm(42))
	assert.Equal(t, ID("42"), Norm("42"))
	assert.Equal(t, ID("42"), Norm(int64(42)))
	assert.Equal(t, ID("42"), Norm(float64(42)))
	assert.Equal(t, ID("42"), Norm(ID("42")))
}

func TestMessageChannel(t *testing.T) {
	group := Message{GroupID: "7", ReceiverID: ""}
	assert.Equal(t, GroupChannel{Group: "7"}, group.Channel())

	direct := Message{ReceiverID: "42"}
	assert.Equal(t, DirectChannel{Peer: "42"}, direct.Channel())

	// the group branch wins when both are somehow set
	both := Message{GroupID: "7", ReceiverID: "42"}
	assert.Equal(t, GroupChannel{Group: "7"}, both.Channel())
}
