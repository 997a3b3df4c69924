/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package chunk

import (
	"encoding/hex"
	"sort"
	"strconv"

	"lukechampine.com/blake3"

	"bennypowers.dev/grafo/graph"
	"bennypowers.dev/grafo/module"
)

// draft is a chunk under assignment, before ordering and hashing.
type draft struct {
	name    string
	kind    Kind
	seeds   []module.ID
	members map[module.ID]bool
}

func kindRank(k Kind) int {
	switch k {
	case KindEntry:
		return 0
	case KindDynamic:
		return 1
	default:
		return 2
	}
}

// Compute partitions the modules reachable from entries into chunks.
//
// Every entrypoint seeds a chunk, as does every dynamic-import target not
// statically reachable from an entrypoint. A module statically reachable
// from one seed joins that seed's chunk; from several seeds, it is
// duplicated into each below the hoisting threshold and hoisted into a
// shared chunk at or above it. Dynamic edges never pull their target into
// the importing chunk. Cross-chunk cycles are merged until the chunk graph
// is acyclic.
//
// The result is deterministic for identical graph state. The graph must be
// quiescent for the duration of the call; build and dev consumers run it
// between batches.
func Compute(g *graph.Graph, entries []module.ID, policy Policy) (*Graph, error) {
	threshold := policy.HoistThreshold
	if threshold <= 0 {
		threshold = DefaultHoistThreshold
	}
	maxPasses := policy.MaxMergePasses
	if maxPasses <= 0 {
		maxPasses = defaultMergePasses
	}

	nodes, live := snapshot(g, entries)

	entrySeeds := make([]module.ID, 0, len(entries))
	seen := make(map[module.ID]bool, len(entries))
	for _, e := range entries {
		if seen[e] || nodes[e] == nil {
			continue
		}
		seen[e] = true
		entrySeeds = append(entrySeeds, e)
	}
	if len(entrySeeds) == 0 {
		return &Graph{byName: map[string]*Chunk{}, owners: map[module.ID][]string{}}, nil
	}

	seedOrder, seedSet := discoverSeeds(nodes, live, entrySeeds)

	reach := make(map[module.ID]map[module.ID]bool, len(seedOrder))
	for _, s := range seedOrder {
		reach[s] = staticReach(s, nodes, seedSet)
	}

	drafts := assign(nodes, live, entrySeeds, seedOrder, reach, threshold, policy.EntryNames)

	var eager, async map[*draft]map[*draft]bool
	for pass := 0; ; pass++ {
		eager, async = crossDeps(drafts, nodes, live)
		sccs := cyclicComponents(drafts, eager)
		if len(sccs) == 0 {
			break
		}
		if pass+1 >= maxPasses {
			names := make([]string, 0, len(sccs[0]))
			for _, d := range sccs[0] {
				names = append(names, d.name)
			}
			sort.Strings(names)
			return nil, &CycleOverflowError{Chunks: names, Passes: pass + 1}
		}
		drafts = mergeComponents(drafts, sccs)
	}

	return finalize(drafts, eager, async, nodes), nil
}

// snapshot collects the nodes reachable from entries over edges of either
// kind, keyed by id, plus the sorted id list.
func snapshot(g *graph.Graph, entries []module.ID) (map[module.ID]*graph.Node, []module.ID) {
	nodes := make(map[module.ID]*graph.Node)
	var queue []module.ID
	visit := func(id module.ID) {
		if _, ok := nodes[id]; ok {
			return
		}
		if n, ok := g.Node(id); ok {
			nodes[id] = n
			queue = append(queue, id)
		}
	}
	for _, e := range entries {
		visit(e)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range nodes[cur].Edges {
			visit(e.To)
		}
	}

	live := make([]module.ID, 0, len(nodes))
	for id := range nodes {
		live = append(live, id)
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].String() < live[j].String()
	})
	return nodes, live
}

// discoverSeeds returns entry seeds followed by dynamic seeds in sorted
// order. A dynamic-import target only seeds a chunk when no static path
// from an entrypoint reaches it; otherwise it already has a home.
func discoverSeeds(nodes map[module.ID]*graph.Node, live, entrySeeds []module.ID) ([]module.ID, map[module.ID]bool) {
	entryStatic := make(map[module.ID]bool)
	queue := make([]module.ID, 0, len(entrySeeds))
	for _, e := range entrySeeds {
		entryStatic[e] = true
		queue = append(queue, e)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range nodes[cur].Edges {
			if e.Kind != graph.EdgeStatic || entryStatic[e.To] || nodes[e.To] == nil {
				continue
			}
			entryStatic[e.To] = true
			queue = append(queue, e.To)
		}
	}

	seedSet := make(map[module.ID]bool, len(entrySeeds))
	for _, e := range entrySeeds {
		seedSet[e] = true
	}

	dynSet := make(map[module.ID]bool)
	for _, id := range live {
		for _, e := range nodes[id].Edges {
			if e.Kind != graph.EdgeDynamic || nodes[e.To] == nil {
				continue
			}
			if seedSet[e.To] || entryStatic[e.To] {
				continue
			}
			dynSet[e.To] = true
		}
	}
	dynSeeds := make([]module.ID, 0, len(dynSet))
	for id := range dynSet {
		dynSeeds = append(dynSeeds, id)
	}
	sort.Slice(dynSeeds, func(i, j int) bool {
		return dynSeeds[i].String() < dynSeeds[j].String()
	})

	order := append(append([]module.ID{}, entrySeeds...), dynSeeds...)
	for _, s := range dynSeeds {
		seedSet[s] = true
	}
	return order, seedSet
}

// staticReach walks static edges from seed, stopping at other seeds since
// they own their own subtrees.
func staticReach(seed module.ID, nodes map[module.ID]*graph.Node, seedSet map[module.ID]bool) map[module.ID]bool {
	seen := map[module.ID]bool{seed: true}
	queue := []module.ID{seed}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range nodes[cur].Edges {
			if e.Kind != graph.EdgeStatic || seen[e.To] || seedSet[e.To] || nodes[e.To] == nil {
				continue
			}
			seen[e.To] = true
			queue = append(queue, e.To)
		}
	}
	return seen
}

// assign places every live module into one or more drafts.
func assign(nodes map[module.ID]*graph.Node, live, entrySeeds, seedOrder []module.ID,
	reach map[module.ID]map[module.ID]bool, threshold int, entryNames map[module.ID]string) []*draft {

	used := make(map[string]int)
	unique := func(base string) string {
		used[base]++
		if used[base] == 1 {
			return base
		}
		for {
			candidate := base + "-" + strconv.Itoa(used[base])
			if used[candidate] == 0 {
				used[candidate]++
				return candidate
			}
			used[base]++
		}
	}

	entrySet := make(map[module.ID]bool, len(entrySeeds))
	for _, e := range entrySeeds {
		entrySet[e] = true
	}

	drafts := make([]*draft, 0, len(seedOrder))
	seedDraft := make(map[module.ID]*draft, len(seedOrder))
	for _, s := range seedOrder {
		kind := KindDynamic
		base := stem(s.Path)
		if entrySet[s] {
			kind = KindEntry
			if n, ok := entryNames[s]; ok && n != "" {
				base = n
			}
		}
		d := &draft{
			name:    unique(base),
			kind:    kind,
			seeds:   []module.ID{s},
			members: map[module.ID]bool{s: true},
		}
		drafts = append(drafts, d)
		seedDraft[s] = d
	}

	shared := make(map[string]*draft)
	for _, id := range live {
		if seedDraft[id] != nil {
			continue
		}
		var owners []*draft
		for _, s := range seedOrder {
			if reach[s][id] {
				owners = append(owners, seedDraft[s])
			}
		}
		switch {
		case len(owners) == 0:
			// Statically unreachable from every seed; nothing loads it.
		case len(owners) < threshold:
			for _, d := range owners {
				d.members[id] = true
			}
		default:
			key := ""
			for _, d := range owners {
				key += d.name + "\x00"
			}
			d := shared[key]
			if d == nil {
				d = &draft{
					name:    unique(sharedName(key)),
					kind:    KindShared,
					members: map[module.ID]bool{},
				}
				shared[key] = d
				drafts = append(drafts, d)
			}
			d.members[id] = true
		}
	}
	return drafts
}

func sharedName(key string) string {
	sum := blake3.Sum256([]byte(key))
	return "shared-" + hex.EncodeToString(sum[:4])
}

// crossDeps derives chunk-level dependencies from module edges. An edge
// whose target lives in the importing chunk needs no dependency; otherwise
// the target's owning chunk is recorded. Static edges become eager
// dependencies, which must stay acyclic; dynamic edges become async
// references, which tolerate cycles since the importer has already run by
// the time the load fires.
func crossDeps(drafts []*draft, nodes map[module.ID]*graph.Node, live []module.ID) (eager, async map[*draft]map[*draft]bool) {
	owners := make(map[module.ID][]*draft)
	for _, d := range drafts {
		for id := range d.members {
			owners[id] = append(owners[id], d)
		}
	}
	for _, list := range owners {
		sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
	}

	eager = make(map[*draft]map[*draft]bool, len(drafts))
	async = make(map[*draft]map[*draft]bool, len(drafts))
	for _, d := range drafts {
		eager[d] = make(map[*draft]bool)
		async[d] = make(map[*draft]bool)
	}
	for _, id := range live {
		for _, e := range nodes[id].Edges {
			targets := owners[e.To]
			if len(targets) == 0 {
				continue
			}
			for _, from := range owners[id] {
				if from.members[e.To] {
					continue
				}
				to := targets[0]
				if to == from {
					continue
				}
				if e.Kind == graph.EdgeStatic {
					eager[from][to] = true
				} else {
					async[from][to] = true
				}
			}
		}
	}
	return eager, async
}

// cyclicComponents returns the strongly connected components of size > 1
// in the chunk dependency graph, in deterministic order.
func cyclicComponents(drafts []*draft, deps map[*draft]map[*draft]bool) [][]*draft {
	index := make(map[*draft]int, len(drafts))
	low := make(map[*draft]int, len(drafts))
	onStack := make(map[*draft]bool, len(drafts))
	var stack []*draft
	next := 0
	var out [][]*draft

	neighbors := func(d *draft) []*draft {
		list := make([]*draft, 0, len(deps[d]))
		for t := range deps[d] {
			list = append(list, t)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
		return list
	}

	type frame struct {
		d    *draft
		next []*draft
	}
	for _, root := range drafts {
		if _, ok := index[root]; ok {
			continue
		}
		frames := []frame{{d: root, next: neighbors(root)}}
		index[root] = next
		low[root] = next
		next++
		stack = append(stack, root)
		onStack[root] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			if len(f.next) > 0 {
				n := f.next[0]
				f.next = f.next[1:]
				if _, ok := index[n]; !ok {
					index[n] = next
					low[n] = next
					next++
					stack = append(stack, n)
					onStack[n] = true
					frames = append(frames, frame{d: n, next: neighbors(n)})
				} else if onStack[n] && index[n] < low[f.d] {
					low[f.d] = index[n]
				}
				continue
			}
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].d
				if low[f.d] < low[parent] {
					low[parent] = low[f.d]
				}
			}
			if low[f.d] == index[f.d] {
				var comp []*draft
				for {
					top := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[top] = false
					comp = append(comp, top)
					if top == f.d {
						break
					}
				}
				if len(comp) > 1 {
					out = append(out, comp)
				}
			}
		}
	}
	return out
}

// mergeComponents folds each cyclic component into its earliest draft,
// keeping slice order so output stays deterministic across runs.
func mergeComponents(drafts []*draft, sccs [][]*draft) []*draft {
	absorbed := make(map[*draft]*draft)
	position := make(map[*draft]int, len(drafts))
	for i, d := range drafts {
		position[d] = i
	}
	for _, comp := range sccs {
		keep := comp[0]
		for _, d := range comp[1:] {
			if position[d] < position[keep] {
				keep = d
			}
		}
		sort.Slice(comp, func(i, j int) bool { return position[comp[i]] < position[comp[j]] })
		for _, d := range comp {
			if d == keep {
				continue
			}
			absorbed[d] = keep
			if kindRank(d.kind) < kindRank(keep.kind) {
				keep.kind = d.kind
			}
			keep.seeds = append(keep.seeds, d.seeds...)
			for id := range d.members {
				keep.members[id] = true
			}
		}
	}

	out := drafts[:0]
	for _, d := range drafts {
		if absorbed[d] == nil {
			out = append(out, d)
		}
	}
	return out
}

// finalize orders each draft's members dependency-first, hashes them, and
// assembles the chunk graph.
func finalize(drafts []*draft, eager, async map[*draft]map[*draft]bool, nodes map[module.ID]*graph.Node) *Graph {
	cg := &Graph{
		Chunks: make([]*Chunk, 0, len(drafts)),
		byName: make(map[string]*Chunk, len(drafts)),
		owners: make(map[module.ID][]string),
	}
	names := func(set map[*draft]bool) []string {
		out := make([]string, 0, len(set))
		for t := range set {
			out = append(out, t.name)
		}
		sort.Strings(out)
		return out
	}
	for _, d := range drafts {
		modules := topoOrder(d, nodes)

		c := &Chunk{
			Name:           d.name,
			Kind:           d.kind,
			Seeds:          d.seeds,
			Modules:        modules,
			Imports:        names(eager[d]),
			DynamicImports: names(async[d]),
			Hash:           chunkHash(modules, nodes),
		}
		cg.Chunks = append(cg.Chunks, c)
		cg.byName[c.Name] = c
		for _, id := range modules {
			cg.owners[id] = append(cg.owners[id], c.Name)
		}
	}
	for _, list := range cg.owners {
		sort.Strings(list)
	}
	return cg
}

// topoOrder emits a draft's members with dependencies before dependents.
// Ties and intra-chunk import cycles break on sorted module id, keeping
// the order reproducible.
func topoOrder(d *draft, nodes map[module.ID]*graph.Node) []module.ID {
	ids := make([]module.ID, 0, len(d.members))
	for id := range d.members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	prereqs := make(map[module.ID]map[module.ID]bool, len(ids))
	dependents := make(map[module.ID][]module.ID, len(ids))
	for _, id := range ids {
		for _, e := range nodes[id].Edges {
			if e.Kind != graph.EdgeStatic || e.To == id || !d.members[e.To] {
				continue
			}
			set := prereqs[id]
			if set == nil {
				set = make(map[module.ID]bool)
				prereqs[id] = set
			}
			if !set[e.To] {
				set[e.To] = true
				dependents[e.To] = append(dependents[e.To], id)
			}
		}
	}

	var ready []module.ID
	insert := func(id module.ID) {
		i := sort.Search(len(ready), func(i int) bool { return ready[i].String() >= id.String() })
		ready = append(ready, module.ID{})
		copy(ready[i+1:], ready[i:])
		ready[i] = id
	}
	for _, id := range ids {
		if len(prereqs[id]) == 0 {
			insert(id)
		}
	}

	out := make([]module.ID, 0, len(ids))
	emitted := make(map[module.ID]bool, len(ids))
	for len(out) < len(ids) {
		var cur module.ID
		if len(ready) > 0 {
			cur = ready[0]
			ready = ready[1:]
			if emitted[cur] {
				continue
			}
		} else {
			// Import cycle inside the chunk; force the smallest pending id.
			for _, id := range ids {
				if !emitted[id] {
					cur = id
					break
				}
			}
		}
		emitted[cur] = true
		out = append(out, cur)
		for _, dep := range dependents[cur] {
			delete(prereqs[dep], cur)
			if len(prereqs[dep]) == 0 && !emitted[dep] {
				insert(dep)
			}
		}
	}
	return out
}

// chunkHash hashes member ids and fingerprints in output order.
func chunkHash(modules []module.ID, nodes map[module.ID]*graph.Node) string {
	h := blake3.New(32, nil)
	for _, id := range modules {
		h.Write([]byte(id.String()))
		h.Write([]byte{0})
		fp := nodes[id].Fingerprint
		h.Write(fp[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
