package graph

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tramline/tramline/internal/itinerary"
)

// MemoryEngineName identifies the in-memory engine.
const MemoryEngineName = "memory"

// Edge is one option between two stops. Edges are traversable in both directions.
type Edge struct {
	From   string             `yaml:"from"`
	To     string             `yaml:"to"`
	Kind   itinerary.EdgeKind `yaml:"kind"`
	Route  string             `yaml:"route"`
	Weight float64            `yaml:"weight"`
	Mode   itinerary.Mode     `yaml:"mode"`
}

// FixtureStop is a stop as written in a fixture file.
type FixtureStop struct {
	ID   string  `yaml:"id"`
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

// Fixture is a small network described in YAML.
type Fixture struct {
	Stops []FixtureStop `yaml:"stops"`
	Edges []Edge        `yaml:"edges"`
}

// StopList returns the fixture stops in file order.
func (f *Fixture) StopList() []itinerary.Stop {
	out := make([]itinerary.Stop, len(f.Stops))
	for i, s := range f.Stops {
		out[i] = itinerary.Stop{ID: s.ID, Name: s.Name, Lat: s.Lat, Lon: s.Lon}
	}
	return out
}

// LoadFixture reads a YAML network fixture.
func LoadFixture(path string) (*Fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	return ParseFixture(b)
}

// ParseFixture decodes a YAML network fixture.
func ParseFixture(b []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decoding fixture: %w", err)
	}
	for i, e := range f.Edges {
		if e.Kind == "" {
			f.Edges[i].Kind = itinerary.KindTransit
			if e.Route == "" || e.Route == "Walk" {
				f.Edges[i].Kind = itinerary.KindWalk
			}
		}
	}
	return &f, nil
}

// MemoryEngine is an Engine over an in-memory undirected multigraph.
// It is used in tests and by the CLI when no graph database is configured.
type MemoryEngine struct {
	stops map[string]itinerary.Stop
	edges map[StopPair][]itinerary.EdgeOption
	adj   map[string][]string
}

// NewMemoryEngine builds an engine from stops and edges. Edges referring to
// unknown stops are rejected.
func NewMemoryEngine(stops []itinerary.Stop, edges []Edge) (*MemoryEngine, error) {
	m := &MemoryEngine{
		stops: make(map[string]itinerary.Stop, len(stops)),
		edges: make(map[StopPair][]itinerary.EdgeOption),
		adj:   make(map[string][]string),
	}
	for _, s := range stops {
		m.stops[s.ID] = s
	}

	for _, e := range edges {
		if _, ok := m.stops[e.From]; !ok {
			return nil, fmt.Errorf("edge %s-%s: %w: %s", e.From, e.To, ErrStopUnknown, e.From)
		}
		if _, ok := m.stops[e.To]; !ok {
			return nil, fmt.Errorf("edge %s-%s: %w: %s", e.From, e.To, ErrStopUnknown, e.To)
		}
		opt := itinerary.EdgeOption{Kind: e.Kind, Route: e.Route, Weight: e.Weight, Mode: e.Mode}
		fwd := StopPair{From: e.From, To: e.To}
		rev := StopPair{From: e.To, To: e.From}
		if _, seen := m.edges[fwd]; !seen {
			m.adj[e.From] = append(m.adj[e.From], e.To)
			m.adj[e.To] = append(m.adj[e.To], e.From)
		}
		m.edges[fwd] = append(m.edges[fwd], opt)
		m.edges[rev] = append(m.edges[rev], opt)
	}

	for id := range m.adj {
		sort.Strings(m.adj[id])
	}
	return m, nil
}

// NewMemoryEngineFromFixture builds an engine from a parsed fixture.
func NewMemoryEngineFromFixture(f *Fixture) (*MemoryEngine, error) {
	return NewMemoryEngine(f.StopList(), f.Edges)
}

// Name returns the engine name.
func (m *MemoryEngine) Name() string {
	return MemoryEngineName
}

// EdgeOptions returns the options of the requested pairs.
func (m *MemoryEngine) EdgeOptions(_ context.Context, pairs []StopPair) (map[StopPair][]itinerary.EdgeOption, error) {
	out := make(map[StopPair][]itinerary.EdgeOption, len(pairs))
	for _, p := range pairs {
		if opts, ok := m.edges[p]; ok {
			out[p] = append([]itinerary.EdgeOption(nil), opts...)
		}
	}
	return out, nil
}

// KShortestPaths runs Yen's algorithm over the cheapest edge of each stop pair.
func (m *MemoryEngine) KShortestPaths(ctx context.Context, fromID, toID string, k int) ([]itinerary.CandidatePath, error) {
	if _, ok := m.stops[fromID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrStopUnknown, fromID)
	}
	if _, ok := m.stops[toID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrStopUnknown, toID)
	}
	if k <= 0 {
		return nil, nil
	}
	if fromID == toID {
		return []itinerary.CandidatePath{{m.stops[fromID]}}, nil
	}

	first, ok := m.shortest(fromID, toID, nil, nil)
	if !ok {
		return nil, nil
	}

	found := []weightedPath{first}
	var pool []weightedPath

	for len(found) < k {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prev := found[len(found)-1].ids
		for i := 0; i < len(prev)-1; i++ {
			root := prev[:i+1]

			removedEdges := map[StopPair]bool{}
			for _, p := range found {
				if len(p.ids) > i && equalIDs(p.ids[:i+1], root) {
					removedEdges[StopPair{From: p.ids[i], To: p.ids[i+1]}] = true
				}
			}
			removedNodes := map[string]bool{}
			for _, id := range root[:len(root)-1] {
				removedNodes[id] = true
			}

			spur, ok := m.shortest(root[len(root)-1], toID, removedNodes, removedEdges)
			if !ok {
				continue
			}
			ids := append(append([]string(nil), root[:len(root)-1]...), spur.ids...)
			candidate := weightedPath{ids: ids, cost: m.pathCost(ids)}
			if !containsPath(found, ids) && !containsPath(pool, ids) {
				pool = append(pool, candidate)
			}
		}
		if len(pool) == 0 {
			break
		}
		sort.SliceStable(pool, func(a, b int) bool { return pool[a].cost < pool[b].cost })
		found = append(found, pool[0])
		pool = pool[1:]
	}

	out := make([]itinerary.CandidatePath, len(found))
	for i, p := range found {
		path := make(itinerary.CandidatePath, len(p.ids))
		for j, id := range p.ids {
			path[j] = m.stops[id]
		}
		out[i] = path
	}
	return out, nil
}

type weightedPath struct {
	ids  []string
	cost float64
}

func (m *MemoryEngine) cheapest(a, b string) float64 {
	best := math.Inf(1)
	for _, o := range m.edges[StopPair{From: a, To: b}] {
		if o.Weight >= 0 && o.Weight < best {
			best = o.Weight
		}
	}
	return best
}

func (m *MemoryEngine) pathCost(ids []string) float64 {
	total := 0.0
	for i := 1; i < len(ids); i++ {
		total += m.cheapest(ids[i-1], ids[i])
	}
	return total
}

// shortest is Dijkstra over the graph without the removed nodes and edges.
func (m *MemoryEngine) shortest(from, to string, removedNodes map[string]bool, removedEdges map[StopPair]bool) (weightedPath, bool) {
	dist := map[string]float64{from: 0}
	prev := map[string]string{}
	done := map[string]bool{}
	pq := &nodeQueue{{id: from}}

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(nodeItem)
		if done[cur.id] {
			continue
		}
		done[cur.id] = true
		if cur.id == to {
			break
		}
		for _, next := range m.adj[cur.id] {
			if removedNodes[next] || removedEdges[StopPair{From: cur.id, To: next}] || done[next] {
				continue
			}
			w := m.cheapest(cur.id, next)
			if math.IsInf(w, 1) {
				continue
			}
			nd := cur.dist + w
			if d, ok := dist[next]; !ok || nd < d {
				dist[next] = nd
				prev[next] = cur.id
				heap.Push(pq, nodeItem{id: next, dist: nd})
			}
		}
	}

	if !done[to] {
		return weightedPath{}, false
	}
	ids := []string{to}
	for id := to; id != from; {
		id = prev[id]
		ids = append(ids, id)
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return weightedPath{ids: ids, cost: dist[to]}, true
}

type nodeItem struct {
	id   string
	dist float64
}

type nodeQueue []nodeItem

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].dist == q[j].dist {
		return q[i].id < q[j].id
	}
	return q[i].dist < q[j].dist
}
func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)   { *q = append(*q, x.(nodeItem)) }
func (q *nodeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsPath(paths []weightedPath, ids []string) bool {
	for _, p := range paths {
		if equalIDs(p.ids, ids) {
			return true
		}
	}
	return false
}

var _ Engine = (*MemoryEngine)(nil)
