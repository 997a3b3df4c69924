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
package graph

import (
	"context"
	"errors"
	"sync"

	"bennypowers.dev/grafo/module"
)

// Ensure idempotently materializes the subgraph reachable from id: modules
// not yet in the graph are resolved and transformed, already-clean modules
// are traversed without rework. The first unresolvable static import or
// failed transform aborts the walk.
func (g *Graph) Ensure(ctx context.Context, id module.ID) error {
	g.batchMu.Lock()
	defer g.batchMu.Unlock()
	_, err := g.walk(ctx, []module.ID{id}, true, nil)
	return err
}

// EnsureEntry registers id as a program entrypoint and ensures its subgraph.
// Entrypoints are the roots the garbage collector and the chunker start
// from.
func (g *Graph) EnsureEntry(ctx context.Context, id module.ID) error {
	g.mu.Lock()
	if !g.entrySet[id] {
		g.entrySet[id] = true
		g.entries = append(g.entries, id)
	}
	if n, ok := g.nodes[id]; ok {
		n.Entry = true
	}
	g.mu.Unlock()
	return g.Ensure(ctx, id)
}

// walkJob is one unit of resolve+transform work handed to the pool.
type walkJob struct {
	id module.ID
	// generation observed when the job was scheduled; results are dropped
	// if the node has been rebuilt past it by the time they apply.
	generation uint64
}

// walkResult is the completed work a worker submits to the applier.
type walkResult struct {
	id           module.ID
	generation   uint64
	code         []byte
	edges        []Edge
	acceptsSelf  bool
	acceptedDeps []string
	deferred     []Deferred
	err          error
}

// walkOutcome accumulates what a walk did, for recompute consumers.
type walkOutcome struct {
	changed   []module.ID
	unchanged []module.ID
	errs      map[module.ID]error
}

type applyStatus int

const (
	applyChanged applyStatus = iota
	applyUnchanged
	applyFailed
	applyStale
)

// walk materializes the subgraph reachable from roots using a bounded worker
// pool. Workers perform the blocking resolve and transform calls; this
// goroutine is the single applier of structural mutations. With fatal set,
// the first error cancels outstanding work and is returned with its import
// chain; otherwise errors are recorded per node and the walk continues.
// Nodes listed in force are re-transformed even when clean.
func (g *Graph) walk(ctx context.Context, roots []module.ID, fatal bool, force map[module.ID]bool) (*walkOutcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan walkJob)
	results := make(chan walkResult)

	var wg sync.WaitGroup
	for range g.workers {
		wg.Go(func() {
			for job := range jobs {
				results <- g.process(ctx, job)
			}
		})
	}

	outcome := &walkOutcome{errs: make(map[module.ID]error)}
	visited := make(map[module.ID]bool)
	parents := make(map[module.ID]module.ID)
	var queue []walkJob
	// traverse holds clean nodes whose recorded edges still need visiting.
	var traverse []module.ID

	add := func(id, from module.ID) {
		if visited[id] {
			return
		}
		visited[id] = true
		if !from.IsZero() {
			parents[id] = from
		}
		g.mu.RLock()
		n, ok := g.nodes[id]
		clean := ok && !n.Dirty && n.Err == nil && !force[id]
		var gen uint64
		if ok {
			gen = n.Generation
		}
		g.mu.RUnlock()
		if clean {
			traverse = append(traverse, id)
		} else {
			queue = append(queue, walkJob{id: id, generation: gen})
		}
	}

	for _, root := range roots {
		add(root, module.ID{})
	}

	pending := 0
	var firstErr error
	for {
		for len(traverse) > 0 && firstErr == nil {
			id := traverse[len(traverse)-1]
			traverse = traverse[:len(traverse)-1]
			g.mu.RLock()
			var targets []module.ID
			if n, ok := g.nodes[id]; ok {
				for _, e := range n.Edges {
					targets = append(targets, e.To)
				}
			}
			g.mu.RUnlock()
			for _, t := range targets {
				add(t, id)
			}
		}

		if pending == 0 && (firstErr != nil || len(queue) == 0) {
			break
		}

		var jobsCh chan walkJob
		var next walkJob
		if len(queue) > 0 && firstErr == nil {
			jobsCh = jobs
			next = queue[0]
		}

		select {
		case jobsCh <- next:
			queue = queue[1:]
			pending++
		case res := <-results:
			pending--
			followups, status := g.applyResult(res)
			switch status {
			case applyChanged:
				outcome.changed = append(outcome.changed, res.id)
			case applyUnchanged:
				outcome.unchanged = append(outcome.unchanged, res.id)
			case applyFailed:
				outcome.errs[res.id] = res.err
				if fatal && firstErr == nil {
					firstErr = withChain(res.err, chainTo(parents, res.id, roots))
					cancel()
				}
			case applyStale:
				g.staleDiscards.Add(1)
				g.logger.Debug("discarded stale result for %s (scheduled at generation %d)", res.id, res.generation)
			}
			for _, t := range followups {
				add(t, res.id)
			}
		}
	}

	close(jobs)
	cancel()
	wg.Wait()

	return outcome, firstErr
}

// process resolves and transforms one module. It runs on worker goroutines
// and must not touch graph structure.
func (g *Graph) process(ctx context.Context, job walkJob) walkResult {
	res := walkResult{id: job.id, generation: job.generation}
	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	tr, err := g.adapter.Transform(ctx, job.id)
	if err != nil {
		res.err = &TransformError{ID: job.id, Err: err}
		return res
	}

	res.code = tr.Code
	res.acceptsSelf = tr.AcceptsSelf
	res.acceptedDeps = tr.AcceptedDeps

	for _, imp := range tr.Imports {
		target, rerr := g.resolver.Resolve(imp.Specifier, job.id.Path)
		if rerr != nil {
			if imp.Dynamic {
				// Dynamic imports fail at load time, not build time.
				res.deferred = append(res.deferred, Deferred{Specifier: imp.Specifier, Line: imp.Line, Err: rerr})
				continue
			}
			res.err = &ResolutionError{Specifier: imp.Specifier, Importer: job.id, Line: imp.Line, Err: rerr}
			return res
		}
		kind := EdgeStatic
		if imp.Dynamic {
			kind = EdgeDynamic
		}
		res.edges = append(res.edges, Edge{
			From:      job.id,
			To:        target,
			Specifier: imp.Specifier,
			Kind:      kind,
			Line:      imp.Line,
			Start:     imp.Start,
			End:       imp.End,
		})
	}

	return res
}

// applyResult folds one completed result into the graph and reports the edge
// targets the walk should visit next. This is the single mutation point for
// node and edge storage.
func (g *Graph) applyResult(res walkResult) ([]module.ID, applyStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing := g.nodes[res.id]
	if existing != nil && existing.Generation != res.generation {
		// A newer rebuild superseded this job while it was in flight.
		return nil, applyStale
	}

	if res.err != nil {
		if existing != nil && !errors.Is(res.err, context.Canceled) {
			existing.Err = res.err
		}
		return nil, applyFailed
	}

	fp := fingerprint(res.code, res.edges, res.acceptsSelf, res.acceptedDeps)

	if existing != nil && existing.Fingerprint == fp {
		// Touch-only write: observed content is identical, so dependents
		// see no change and no generation is consumed.
		existing.Dirty = false
		existing.Err = nil
		return edgeTargets(existing.Edges), applyUnchanged
	}

	node := existing
	if node == nil {
		node = &Node{ID: res.id, Entry: g.entrySet[res.id]}
		g.nodes[res.id] = node
	}

	oldTargets := make(map[module.ID]bool, len(node.Edges))
	for _, e := range node.Edges {
		oldTargets[e.To] = true
	}

	node.Code = res.code
	node.Edges = res.edges
	node.AcceptsSelf = res.acceptsSelf
	node.AcceptedDeps = res.acceptedDeps
	node.Deferred = res.deferred
	node.Fingerprint = fp
	node.Generation++
	node.Dirty = false
	node.Err = nil

	node.acceptedTargets = make(map[module.ID]bool)
	for _, dep := range res.acceptedDeps {
		for _, e := range res.edges {
			if e.Specifier == dep {
				node.acceptedTargets[e.To] = true
			}
		}
	}

	newTargets := make(map[module.ID]bool, len(res.edges))
	for _, e := range res.edges {
		newTargets[e.To] = true
	}
	for t := range oldTargets {
		if !newTargets[t] {
			if set := g.dependents[t]; set != nil {
				delete(set, res.id)
				if len(set) == 0 {
					delete(g.dependents, t)
				}
			}
		}
	}
	for t := range newTargets {
		set := g.dependents[t]
		if set == nil {
			set = make(map[module.ID]bool)
			g.dependents[t] = set
		}
		set[res.id] = true
	}

	return edgeTargets(res.edges), applyChanged
}

func edgeTargets(edges []Edge) []module.ID {
	out := make([]module.ID, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.To)
	}
	return out
}

// chainTo reconstructs the import path from the walk root to id.
func chainTo(parents map[module.ID]module.ID, id module.ID, roots []module.ID) []module.ID {
	rootSet := make(map[module.ID]bool, len(roots))
	for _, r := range roots {
		rootSet[r] = true
	}
	var chain []module.ID
	seen := make(map[module.ID]bool)
	for cur := id; !seen[cur]; {
		seen[cur] = true
		chain = append(chain, cur)
		if rootSet[cur] {
			break
		}
		next, ok := parents[cur]
		if !ok {
			break
		}
		cur = next
	}
	// reverse into root-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// withChain attaches an import chain to a walk error when it carries one.
func withChain(err error, chain []module.ID) error {
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		resErr.Chain = chain
		return err
	}
	var trErr *TransformError
	if errors.As(err, &trErr) {
		trErr.Chain = chain
		return err
	}
	return err
}
