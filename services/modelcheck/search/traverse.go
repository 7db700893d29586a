// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"fmt"
	"iter"

	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
)

// FindSources lists the candidate sources that reach target with polarity.
//
// Description:
//
//	Breadth-first traversal backward from (target, +1) over (node,
//	polarity) pairs. For every predecessor edge of a dequeued pair the
//	predecessor polarity is edge_sign * polarity. If the predecessor is in
//	sources (nil means any rule) and that polarity equals the requested
//	one, a hit is yielded with length depth+1. A pair is enqueued the first
//	time it is seen; the target starts out seen with polarity +1. The
//	target is never a hit itself, so a feedback loop through it does not
//	explain it.
//
//	The same source may be yielded several times, once per witnessing edge
//	and per depth. Lengths are non-decreasing across the sequence, so the
//	first hit for a source is its shortest witness.
//
// Inputs:
//
//	target - Rule to explain. An unknown target yields nothing.
//	sources - Candidate sources; nil matches any rule.
//	polarity - Required sign of the effect, Positive or Negative.
//	opts - WithMaxLength bounds depth, WithContext enables cancellation.
//
// Outputs:
//
//	iter.Seq2[SourceHit, error] - Hits in BFS order. A non-nil error ends
//	the sequence; it is ErrInvalidPolarity, a sign resolution error from
//	the graph, or the context error.
//
// Thread Safety: Safe for concurrent use. Each call owns its own queue.
func (e *Engine) FindSources(target string, sources NodeSet, polarity influence.Sign, opts ...SearchOption) iter.Seq2[SourceHit, error] {
	options := applySearchOptions(opts)

	return func(yield func(SourceHit, error) bool) {
		if !polarity.Valid() {
			yield(SourceHit{}, fmt.Errorf("%w: got %d", ErrInvalidPolarity, polarity))
			return
		}

		start := state{node: target, polarity: influence.Positive}
		visited := map[state]struct{}{start: {}}
		queue := []queueItem{{state: start}}
		dequeued := 0

		for len(queue) > 0 {
			item := queue[0]
			queue = queue[1:]

			dequeued++
			if dequeued%contextCheckInterval == 0 {
				if err := options.Ctx.Err(); err != nil {
					yield(SourceHit{}, err)
					return
				}
			}
			if options.MaxLength > 0 && item.depth >= options.MaxLength {
				continue
			}

			for pred := range e.graph.Predecessors(item.node) {
				sign, err := e.graph.EdgeSign(pred, item.node)
				if err != nil {
					yield(SourceHit{}, err)
					return
				}
				next := state{node: pred, polarity: sign * item.polarity}

				if pred != target && sources.Has(pred) && next.polarity == polarity {
					hit := SourceHit{Source: pred, Polarity: next.polarity, Length: item.depth + 1}
					if !yield(hit, nil) {
						return
					}
				}
				if _, seen := visited[next]; !seen {
					visited[next] = struct{}{}
					queue = append(queue, queueItem{state: next, depth: item.depth + 1})
				}
			}
		}
	}
}

// FindSourcesWithPaths lists explicit backward paths from target to
// qualifying sources.
//
// Description:
//
//	Breadth-first traversal whose queue entries are whole paths starting at
//	(target, +1). A path is yielded when its last step is a qualifying
//	source other than the target, with the requested polarity, and it has
//	at least one edge. A predecessor is skipped only if its (node, polarity)
//	pair already occurs in the same path, so one rule may show up in many
//	yielded paths.
//
//	Each call starts a fresh traversal. On cyclic graphs the sequence is
//	unbounded unless WithMaxLength is given or the consumer stops early.
//
// Outputs:
//
//	iter.Seq2[influence.Path, error] - Backward paths, target first. Each
//	step's polarity is the sign of that rule's effect on the target. Use
//	Orient to obtain a source-first path.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) FindSourcesWithPaths(target string, sources NodeSet, polarity influence.Sign, opts ...SearchOption) iter.Seq2[influence.Path, error] {
	options := applySearchOptions(opts)

	return func(yield func(influence.Path, error) bool) {
		if !polarity.Valid() {
			yield(nil, fmt.Errorf("%w: got %d", ErrInvalidPolarity, polarity))
			return
		}

		queue := []influence.Path{{{Node: target, Polarity: influence.Positive}}}
		dequeued := 0

		for len(queue) > 0 {
			path := queue[0]
			queue = queue[1:]

			dequeued++
			if dequeued%contextCheckInterval == 0 {
				if err := options.Ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
			}

			last := path[len(path)-1]
			if len(path) > 1 && last.Node != target && last.Polarity == polarity && sources.Has(last.Node) {
				if !yield(path, nil) {
					return
				}
			}
			if options.MaxLength > 0 && path.Len() >= options.MaxLength {
				continue
			}

			for pred := range e.graph.Predecessors(last.Node) {
				sign, err := e.graph.EdgeSign(pred, last.Node)
				if err != nil {
					yield(nil, err)
					return
				}
				predPolarity := sign * last.Polarity
				if path.Contains(pred, predPolarity) {
					continue
				}
				next := make(influence.Path, len(path), len(path)+1)
				copy(next, path)
				queue = append(queue, append(next, influence.Step{Node: pred, Polarity: predPolarity}))
			}
		}
	}
}

// Orient converts a backward path into a source-first path.
//
// Description:
//
//	In a backward path each polarity is the sign from that rule to the
//	target. The polarity of rule i measured from the source is therefore
//	the source's polarity times rule i's polarity. The oriented path starts
//	with Positive and ends with the overall path sign.
//
// Errors:
//
//	ErrEmptyPath - path has no steps
//	ErrInvalidPolarity - a step carries a sign other than +1 or -1
func Orient(path influence.Path) (influence.Path, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}
	sourcePolarity := path[len(path)-1].Polarity
	out := make(influence.Path, len(path))
	for i, step := range path {
		if !step.Polarity.Valid() {
			return nil, fmt.Errorf("%w: step %d (%s)", ErrInvalidPolarity, i, step.Node)
		}
		out[len(path)-1-i] = influence.Step{
			Node:     step.Node,
			Polarity: sourcePolarity * step.Polarity,
		}
	}
	return out, nil
}
