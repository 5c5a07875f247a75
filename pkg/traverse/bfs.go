// Package traverse implements graph traversal: GO and GetNeighbors
// expansion operators, and a bidirectional-BFS all-paths search where two
// frontiers expand towards each other over npath.NPath chains until they
// meet, emitting every acyclic path up to MaxSteps between any left start
// id and any right start id.
package traverse

import (
	"container/list"
	"time"

	"github.com/cuemby/graphd/pkg/graph"
	"github.com/cuemby/graphd/pkg/log"
	"github.com/cuemby/graphd/pkg/metrics"
	"github.com/cuemby/graphd/pkg/npath"
)

// pathThresholdSize and pathThresholdRatio gate the single-vs-both
// frontier expansion heuristic: once both frontiers have visited more
// than pathThresholdSize vertices, only the smaller side expands once the
// larger side outgrows it by more than pathThresholdRatio.
const (
	pathThresholdSize  = 100
	pathThresholdRatio = 2
)

// NodeEdges abstracts the storage engine lookup AllPaths needs: every edge
// touching vid in the given direction. Satisfied by *storage.Engine.
type NodeEdges interface {
	GetNodeEdges(spaceID uint32, vid graph.VID, dir graph.Direction) ([]*graph.Edge, error)
	GetVertex(spaceID uint32, vid graph.VID) (*graph.Vertex, error)
}

// Options configures one AllPaths call.
type Options struct {
	SpaceID       uint32
	LeftStartIDs  []graph.VID
	RightStartIDs []graph.VID
	Direction     graph.Direction
	EdgeTypes     []string // nil means all edge types
	MaxSteps      int
	WithLoop      bool
	Limit         int
	Offset        int
}

type frontier struct {
	visited map[graph.VID]struct{}
	pathMap map[graph.VID]*npath.NPath
	queue   *list.List // of queueItem
	steps   int
}

type queueItem struct {
	vid  graph.VID
	path *npath.NPath
}

func newFrontier(store NodeEdges, spaceID uint32, starts []graph.VID) (*frontier, error) {
	f := &frontier{
		visited: make(map[graph.VID]struct{}),
		pathMap: make(map[graph.VID]*npath.NPath),
		queue:   list.New(),
	}
	for _, id := range starts {
		v, err := store.GetVertex(spaceID, id)
		if err != nil {
			continue
		}
		f.queue.PushBack(queueItem{vid: id, path: npath.New(v)})
	}
	return f, nil
}

// AllPaths runs the bidirectional BFS all-paths search and returns every
// distinct acyclic path (subject to WithLoop) of length at most MaxSteps
// connecting a left start id to a right start id.
func AllPaths(store NodeEdges, opts Options) ([]*graph.Path, error) {
	start := time.Now()
	if opts.MaxSteps <= 0 {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = int(^uint(0) >> 1) // effectively unlimited
	}

	left, err := newFrontier(store, opts.SpaceID, opts.LeftStartIDs)
	if err != nil {
		return nil, err
	}
	right, err := newFrontier(store, opts.SpaceID, opts.RightStartIDs)
	if err != nil {
		return nil, err
	}

	leftDir, rightDir := leftRightDirections(opts.Direction)

	// The same route can be joined more than once: once from each side, or
	// at different junction vertices as the frontiers sweep past each
	// other. expandSide deduplicates joins by NPath content hash via
	// `joined`, so every emitted path is unique and Limit counts distinct
	// paths only.
	var results []*npath.NPath
	joined := make(map[uint64]struct{})

	for left.steps+right.steps < opts.MaxSteps {
		if left.queue.Len() == 0 && right.queue.Len() == 0 {
			break
		}
		if len(results) >= limit {
			break
		}

		expandBoth := shouldExpandBoth(left, right)
		if expandBoth {
			if left.queue.Len() > 0 {
				results = append(results, expandSide(store, opts, left, right, leftDir, true, joined, limit, &results)...)
			}
			if right.queue.Len() > 0 {
				results = append(results, expandSide(store, opts, right, left, rightDir, false, joined, limit, &results)...)
			}
		} else if len(left.visited) <= len(right.visited) && left.queue.Len() > 0 {
			results = append(results, expandSide(store, opts, left, right, leftDir, true, joined, limit, &results)...)
		} else if right.queue.Len() > 0 {
			results = append(results, expandSide(store, opts, right, left, rightDir, false, joined, limit, &results)...)
		}

		metrics.TraversalFrontierSize.Observe(float64(len(left.visited) + len(right.visited)))
		if len(results) >= limit {
			break
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}
	if opts.Offset > 0 && opts.Offset < len(results) {
		results = results[opts.Offset:]
	} else if opts.Offset >= len(results) {
		results = nil
	}

	paths := toPathsParallel(results)
	metrics.TraversalDuration.Observe(time.Since(start).Seconds())
	log.WithComponent("traverse").Debug().
		Int("paths", len(paths)).
		Int("left_visited", len(left.visited)).
		Int("right_visited", len(right.visited)).
		Msg("all-paths traversal complete")
	return paths, nil
}

// leftRightDirections maps the caller's requested traversal direction onto
// the pair of directions each frontier should query edges in: the right
// frontier always walks the opposite way to the left so the two searches
// close on each other.
func leftRightDirections(dir graph.Direction) (left, right graph.Direction) {
	switch dir {
	case graph.DirIncoming:
		return graph.DirIncoming, graph.DirOutgoing
	case graph.DirBoth:
		return graph.DirBoth, graph.DirBoth
	default:
		return graph.DirOutgoing, graph.DirIncoming
	}
}

// shouldExpandBoth implements the frontier-size heuristic.
func shouldExpandBoth(left, right *frontier) bool {
	l, r := len(left.visited), len(right.visited)
	if l > pathThresholdSize && r > pathThresholdSize {
		if l > r && l/r > pathThresholdRatio {
			return false
		}
		if r > l && r/l > pathThresholdRatio {
			return false
		}
	}
	return true
}

// expandSide pops one full BFS layer off `side` (exactly the vertices
// queued when the call starts — vertices discovered during the call land
// in the next layer), expands each one hop in `dir`, and joins any path
// that meets `other`'s frontier, skipping joins whose content hash is
// already in `seen`. side.steps then counts drained layers.
func expandSide(store NodeEdges, opts Options, side, other *frontier, dir graph.Direction, isLeft bool, seen map[uint64]struct{}, limit int, results *[]*npath.NPath) []*npath.NPath {
	var joined []*npath.NPath
	layer := side.queue.Len()
	for i := 0; i < layer && side.queue.Len() > 0; i++ {
		front := side.queue.Front()
		side.queue.Remove(front)
		item := front.Value.(queueItem)

		if _, ok := side.visited[item.vid]; ok {
			continue
		}
		side.visited[item.vid] = struct{}{}
		side.pathMap[item.vid] = item.path

		if len(*results)+len(joined) >= limit {
			return joined
		}

		edges, err := store.GetNodeEdges(opts.SpaceID, item.vid, dir)
		if err != nil {
			continue
		}

		for _, e := range edges {
			if !edgeTypeAllowed(opts.EdgeTypes, e.EdgeType) {
				continue
			}
			neighbor := neighborOf(e, item.vid)
			if e.Src == e.Dst {
				// Self-loops are permitted only when explicitly requested,
				// and the same loop edge (full key, ranking included) may
				// appear at most once along one path.
				if !opts.WithLoop || item.path.ContainsEdge(e.EdgeKey) {
					continue
				}
			} else {
				if item.path.ContainsVertex(neighbor) {
					continue
				}
				if _, ok := side.visited[neighbor]; ok {
					continue
				}
			}

			neighborVertex, err := store.GetVertex(opts.SpaceID, neighbor)
			if err != nil {
				continue
			}
			newPath := npath.Extend(item.path, e, neighborVertex)

			if otherPath, ok := other.pathMap[neighbor]; ok {
				var full *npath.NPath
				if isLeft {
					full = joinPaths(newPath, otherPath, opts.MaxSteps)
				} else {
					full = joinPaths(otherPath, newPath, opts.MaxSteps)
				}
				if full != nil {
					if _, dup := seen[full.Hash()]; !dup {
						seen[full.Hash()] = struct{}{}
						joined = append(joined, full)
					}
				}
			}

			side.queue.PushBack(queueItem{vid: neighbor, path: newPath})
		}
	}
	side.steps++
	return joined
}

func edgeTypeAllowed(allowed []string, et string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == et {
			return true
		}
	}
	return false
}

// neighborOf returns the endpoint of e that isn't from: e.Dst when from is
// the source, e.Src when from is the destination (self-loops return from
// itself either way). Works regardless of which direction the edge was
// fetched in, so it stays correct when dir is DirBoth.
func neighborOf(e *graph.Edge, from graph.VID) graph.VID {
	if e.Src == from {
		return e.Dst
	}
	return e.Src
}

// joinPaths verifies left and right meet at exactly one vertex (their
// respective ends) and, if so, returns the combined path: left followed by
// right traversed backward with every edge reversed.
func joinPaths(left, right *npath.NPath, maxSteps int) *npath.NPath {
	if left.EndVertex().VID != right.EndVertex().VID {
		return nil
	}
	if left.Len()+right.Len() > maxSteps {
		return nil
	}

	leftIDs := make(map[graph.VID]struct{})
	for cur := left; cur != nil; cur = cur.Parent() {
		leftIDs[cur.Vertex().VID] = struct{}{}
	}
	// Count distinct shared vertices: a self-loop puts the same vid on two
	// chain nodes and must not count twice.
	rightSeen := make(map[graph.VID]struct{})
	common := 0
	for cur := right; cur != nil; cur = cur.Parent() {
		vid := cur.Vertex().VID
		if _, dup := rightSeen[vid]; dup {
			continue
		}
		rightSeen[vid] = struct{}{}
		if _, ok := leftIDs[vid]; ok {
			common++
		}
	}
	if common != 1 {
		return nil // more than the junction vertex in common: would create a cycle
	}

	// Collect right's (edge, vertex) steps from its end back to its origin,
	// skip the junction (already `left`'s end), and re-attach each in
	// reverse. The re-attached edge departs the combined path's current end
	// and arrives at the step's vertex, so Step.Edge.Dst always equals
	// Step.Dst.VID, the same orientation graph.Path.Reverse produces.
	type step struct {
		edge   *graph.Edge
		vertex *graph.Vertex
	}
	var steps []step
	for cur := right; cur.Parent() != nil; cur = cur.Parent() {
		steps = append(steps, step{edge: cur.Edge(), vertex: cur.Parent().Vertex()})
	}

	full := left
	for _, s := range steps {
		reversed := &graph.Edge{
			EdgeKey: graph.EdgeKey{
				Src:      full.EndVertex().VID,
				Dst:      s.vertex.VID,
				EdgeType: s.edge.EdgeType,
				Ranking:  s.edge.Ranking,
			},
			Properties: s.edge.Properties,
		}
		full = npath.Extend(full, reversed, s.vertex)
	}
	return full
}

// toPathsParallel flattens every NPath into a graph.Path, converting large
// result sets in parallel chunks.
func toPathsParallel(npaths []*npath.NPath) []*graph.Path {
	const chunkSize = 1000
	paths := make([]*graph.Path, len(npaths))
	if len(npaths) < chunkSize {
		for i, np := range npaths {
			paths[i] = np.ToPath()
		}
		return paths
	}

	type job struct{ lo, hi int }
	var jobs []job
	for i := 0; i < len(npaths); i += chunkSize {
		hi := i + chunkSize
		if hi > len(npaths) {
			hi = len(npaths)
		}
		jobs = append(jobs, job{i, hi})
	}
	done := make(chan struct{}, len(jobs))
	for _, j := range jobs {
		go func(j job) {
			for i := j.lo; i < j.hi; i++ {
				paths[i] = npaths[i].ToPath()
			}
			done <- struct{}{}
		}(j)
	}
	for range jobs {
		<-done
	}
	return paths
}
