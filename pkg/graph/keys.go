package graph

import (
	"encoding/binary"
	"fmt"
)

// Key layouts for the named kvstore tables (storage file format):
//
//	vertex            [space_id(4)][vid_len(4)][vid]
//	edge              [space_id(4)][src_len(4)][src][edge_type_len(4)][edge_type][ranking(8)][dst_len(4)][dst]
//	node_edge_index   [space_id(4)][vid_len(4)][vid][edge_key_bytes]   -> empty value, existence marks membership
//	edge_type_index   [space_id(4)][edge_type_len(4)][edge_type][edge_key_bytes] -> empty value
//
// Every multi-part key is built with explicit length prefixes (rather than
// keycodec's order-preserving string encoding) because these keys are only
// ever looked up by exact match or by prefix scan on a leading component,
// never range-scanned on an internal string field.

func putUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func putUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func putLenPrefixed(b []byte, s string) []byte {
	b = putUint32(b, uint32(len(s)))
	return append(b, s...)
}

// VertexKey encodes the key for a vertex record.
func VertexKey(spaceID uint32, vid VID) []byte {
	b := make([]byte, 0, 8+len(vid))
	b = putUint32(b, spaceID)
	b = putLenPrefixed(b, string(vid))
	return b
}

// VertexPrefix encodes the prefix shared by every vertex key in a space,
// used for full-space vertex scans.
func VertexPrefix(spaceID uint32) []byte {
	return putUint32(nil, spaceID)
}

// EdgeKeyBytes encodes the key for a single edge record.
func EdgeKeyBytes(spaceID uint32, k EdgeKey) []byte {
	b := make([]byte, 0, 32+len(k.Src)+len(k.EdgeType)+len(k.Dst))
	b = putUint32(b, spaceID)
	b = putLenPrefixed(b, string(k.Src))
	b = putLenPrefixed(b, k.EdgeType)
	b = putUint64(b, uint64(k.Ranking))
	b = putLenPrefixed(b, string(k.Dst))
	return b
}

// EdgeSrcPrefix encodes the prefix of all edges originating from src,
// regardless of edge type or destination.
func EdgeSrcPrefix(spaceID uint32, src VID) []byte {
	b := make([]byte, 0, 8+len(src))
	b = putUint32(b, spaceID)
	b = putLenPrefixed(b, string(src))
	return b
}

// NodeEdgeIndexKey encodes a (vertex -> edge key) adjacency entry: the
// node_edge_index table maps a vid to every edge key touching it, in
// either direction, so cascade delete can locate all edges for a vertex
// without scanning the whole edge table.
func NodeEdgeIndexKey(spaceID uint32, vid VID, edgeKeyBytes []byte) []byte {
	b := make([]byte, 0, 8+len(vid)+len(edgeKeyBytes))
	b = putUint32(b, spaceID)
	b = putLenPrefixed(b, string(vid))
	return append(b, edgeKeyBytes...)
}

// NodeEdgeIndexPrefix encodes the prefix of every adjacency entry for vid.
func NodeEdgeIndexPrefix(spaceID uint32, vid VID) []byte {
	b := make([]byte, 0, 8+len(vid))
	b = putUint32(b, spaceID)
	b = putLenPrefixed(b, string(vid))
	return b
}

// EdgeTypeIndexKey encodes an (edge type -> edge key) index entry, used to
// enumerate every edge of a given type irrespective of the vertices it
// touches.
func EdgeTypeIndexKey(spaceID uint32, edgeType string, edgeKeyBytes []byte) []byte {
	b := make([]byte, 0, 8+len(edgeType)+len(edgeKeyBytes))
	b = putUint32(b, spaceID)
	b = putLenPrefixed(b, edgeType)
	return append(b, edgeKeyBytes...)
}

// EdgeTypeIndexPrefix encodes the prefix of every edge-type-index entry for
// edgeType.
func EdgeTypeIndexPrefix(spaceID uint32, edgeType string) []byte {
	b := make([]byte, 0, 8+len(edgeType))
	b = putUint32(b, spaceID)
	b = putLenPrefixed(b, edgeType)
	return b
}

// ParseEdgeKeyBytes decodes an edge key previously produced by
// EdgeKeyBytes, used when an adjacency scan yields only the embedded edge
// key suffix and the caller needs the structured EdgeKey back.
func ParseEdgeKeyBytes(b []byte) (spaceID uint32, k EdgeKey, err error) {
	if len(b) < 4 {
		return 0, EdgeKey{}, fmt.Errorf("graph: truncated edge key")
	}
	spaceID = binary.BigEndian.Uint32(b[:4])
	b = b[4:]

	src, b, err := readLenPrefixed(b)
	if err != nil {
		return 0, EdgeKey{}, err
	}
	edgeType, b, err := readLenPrefixed(b)
	if err != nil {
		return 0, EdgeKey{}, err
	}
	if len(b) < 8 {
		return 0, EdgeKey{}, fmt.Errorf("graph: truncated edge key ranking")
	}
	ranking := int64(binary.BigEndian.Uint64(b[:8]))
	b = b[8:]
	dst, _, err := readLenPrefixed(b)
	if err != nil {
		return 0, EdgeKey{}, err
	}
	return spaceID, EdgeKey{Src: VID(src), EdgeType: edgeType, Ranking: ranking, Dst: VID(dst)}, nil
}

func readLenPrefixed(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, fmt.Errorf("graph: truncated length prefix")
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < n {
		return "", nil, fmt.Errorf("graph: truncated string body")
	}
	return string(b[:n]), b[n:], nil
}
