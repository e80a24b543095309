package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Sessions int                 `json:"sessions"`
	Rooms    map[string][]string `json:"rooms"`
}

func TestMarshalUnmarshal(t *testing.T) {
	in := snapshot{Sessions: 2, Rooms: map[string][]string{"public": {"alice", "bob"}}}
	data, err := Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessions":2,"rooms":{"public":["alice","bob"]}}`, string(data))

	var out snapshot
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)

	assert.Error(t, Unmarshal([]byte("{"), &out))
}
