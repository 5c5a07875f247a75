// Package lock implements a strict two-phase row-level lock manager with a
// standard lock-compatibility matrix and wait-for-graph deadlock detection.
package lock

import (
	"fmt"
)

// Type is the lock mode requested.
type Type uint8

const (
	Shared Type = iota
	Exclusive
	IntentionShared
	IntentionExclusive
	SharedIntentionExclusive
)

func (t Type) String() string {
	switch t {
	case Shared:
		return "S"
	case Exclusive:
		return "X"
	case IntentionShared:
		return "IS"
	case IntentionExclusive:
		return "IX"
	case SharedIntentionExclusive:
		return "SIX"
	default:
		return "?"
	}
}

// compatible implements the standard S/X/IS/IX/SIX compatibility matrix:
// two modes are compatible if both may be held simultaneously by different
// transactions on the same resource.
func compatible(held, requested Type) bool {
	matrix := map[Type]map[Type]bool{
		Shared:                   {Shared: true, IntentionShared: true, IntentionExclusive: false, SharedIntentionExclusive: false, Exclusive: false},
		Exclusive:                {Shared: false, IntentionShared: false, IntentionExclusive: false, SharedIntentionExclusive: false, Exclusive: false},
		IntentionShared:          {Shared: true, IntentionShared: true, IntentionExclusive: true, SharedIntentionExclusive: true, Exclusive: false},
		IntentionExclusive:       {Shared: false, IntentionShared: true, IntentionExclusive: true, SharedIntentionExclusive: false, Exclusive: false},
		SharedIntentionExclusive: {Shared: false, IntentionShared: true, IntentionExclusive: false, SharedIntentionExclusive: false, Exclusive: false},
	}
	return matrix[held][requested]
}

// ResourceType distinguishes what kind of resource a Key names, mirroring
// the record kinds a transaction can touch: individual vertices and edges
// at row granularity, whole tags and edge types at table granularity.
type ResourceType uint8

const (
	ResourceVertex ResourceType = iota
	ResourceEdge
	ResourceTag
	ResourceEdgeType
)

// Key identifies a lockable resource.
type Key struct {
	Resource ResourceType
	Name     string
}

func VertexKey(vid string) Key   { return Key{ResourceVertex, vid} }
func EdgeKey(edgeKey string) Key { return Key{ResourceEdge, edgeKey} }
func TagKey(tag string) Key      { return Key{ResourceTag, tag} }
func EdgeTypeKey(et string) Key  { return Key{ResourceEdgeType, et} }

// Result is the outcome of a TryLock call.
type Result uint8

const (
	ResultGranted Result = iota
	ResultWaiting
	ResultTimeout
	ResultDeadlock
	ResultSkipped
)

func (r Result) String() string {
	switch r {
	case ResultGranted:
		return "Granted"
	case ResultWaiting:
		return "Waiting"
	case ResultTimeout:
		return "Timeout"
	case ResultDeadlock:
		return "Deadlock"
	case ResultSkipped:
		return "Skipped"
	default:
		return "?"
	}
}

type heldLock struct {
	txID uint64
	mode Type
}

type waiter struct {
	txID uint64
	mode Type
	ch   chan Result
}

type lockRecord struct {
	held    []heldLock
	waiters []*waiter
}

func (r *lockRecord) holds(txID uint64) (Type, bool) {
	for _, h := range r.held {
		if h.txID == txID {
			return h.mode, true
		}
	}
	return 0, false
}

func (r *lockRecord) compatibleWithAllHeld(txID uint64, mode Type) bool {
	for _, h := range r.held {
		if h.txID == txID {
			continue
		}
		if !compatible(h.mode, mode) {
			return false
		}
	}
	return true
}

func keyString(k Key) string {
	return fmt.Sprintf("%d:%s", k.Resource, k.Name)
}
