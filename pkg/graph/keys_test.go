package graph

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeKeyBytesRoundTrip(t *testing.T) {
	k := EdgeKey{Src: "alice", EdgeType: "KNOWS", Ranking: -7, Dst: "bob"}
	b := EdgeKeyBytes(42, k)

	spaceID, decoded, err := ParseEdgeKeyBytes(b)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), spaceID)
	assert.Equal(t, k, decoded)
}

func TestParseEdgeKeyBytesTruncated(t *testing.T) {
	k := EdgeKey{Src: "a", EdgeType: "E", Ranking: 0, Dst: "b"}
	b := EdgeKeyBytes(1, k)
	for _, n := range []int{0, 3, 5, len(b) - 1} {
		_, _, err := ParseEdgeKeyBytes(b[:n])
		assert.Error(t, err, "length %d", n)
	}
}

func TestVertexKeyPrefixes(t *testing.T) {
	key := VertexKey(7, "v1")
	prefix := VertexPrefix(7)
	assert.True(t, bytes.HasPrefix(key, prefix))

	other := VertexKey(8, "v1")
	assert.False(t, bytes.HasPrefix(other, prefix))
}

func TestNodeEdgeIndexKeyPrefix(t *testing.T) {
	k := EdgeKey{Src: "v1", EdgeType: "E", Ranking: 0, Dst: "v2"}
	edgeKey := EdgeKeyBytes(1, k)

	entry := NodeEdgeIndexKey(1, "v1", edgeKey)
	assert.True(t, bytes.HasPrefix(entry, NodeEdgeIndexPrefix(1, "v1")))
	assert.False(t, bytes.HasPrefix(entry, NodeEdgeIndexPrefix(1, "v2")))

	// The suffix after the prefix is exactly the edge key bytes.
	suffix := entry[len(NodeEdgeIndexPrefix(1, "v1")):]
	assert.Equal(t, edgeKey, suffix)
}

func TestEdgeKeyString(t *testing.T) {
	k := EdgeKey{Src: "a", EdgeType: "KNOWS", Ranking: 3, Dst: "b"}
	assert.Equal(t, "a->b:KNOWS@3", k.String())
}

func TestPathReverse(t *testing.T) {
	p := &Path{
		Src: Vertex{VID: "1"},
		Steps: []Step{
			{Edge: Edge{EdgeKey: EdgeKey{Src: "1", Dst: "2", EdgeType: "E"}}, Dst: Vertex{VID: "2"}},
			{Edge: Edge{EdgeKey: EdgeKey{Src: "2", Dst: "3", EdgeType: "E"}}, Dst: Vertex{VID: "3"}},
		},
	}
	p.Reverse()

	assert.Equal(t, VID("3"), p.Src.VID)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, VID("2"), p.Steps[0].Dst.VID)
	assert.Equal(t, VID("3"), p.Steps[0].Edge.Src)
	assert.Equal(t, VID("2"), p.Steps[0].Edge.Dst)
	assert.Equal(t, VID("1"), p.EndVertex().VID)
}

func TestTagByName(t *testing.T) {
	v := &Vertex{VID: "1", Tags: []Tag{{Name: "person"}, {Name: "employee"}}}
	tag, ok := v.TagByName("employee")
	assert.True(t, ok)
	assert.Equal(t, "employee", tag.Name)

	_, ok = v.TagByName("city")
	assert.False(t, ok)
}
