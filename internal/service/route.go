package service

import (
	"context"
	"fmt"

	"dora/internal/model"
	"dora/internal/utils"
)

// RouteFinder computes walking routes over the location neighbour graph
type RouteFinder struct {
	store  *LocationStore
	search *LocationSearch
}

// NewRouteFinder creates a route finder that resolves endpoints with search
func NewRouteFinder(store *LocationStore, search *LocationSearch) *RouteFinder {
	return &RouteFinder{store: store, search: search}
}

// Route resolves both ends to their first search match and returns the
// shortest path between them. Neighbour links are treated as undirected.
func (f *RouteFinder) Route(ctx context.Context, from, to string) (model.Route, error) {
	src, err := f.resolve(ctx, from)
	if err != nil {
		return model.Route{}, err
	}
	dst, err := f.resolve(ctx, to)
	if err != nil {
		return model.Route{}, err
	}

	route := model.Route{From: src.Name, To: dst.Name}
	if utils.Normalize(src.Name) == utils.Normalize(dst.Name) {
		route.Path = []string{src.Name}
		route.Steps = []string{fmt.Sprintf("You are already at %s", src.Name)}
		route.Found = true
		return route, nil
	}

	path := shortestPath(f.store.All(ctx), src.Name, dst.Name)
	if path == nil {
		route.Path = []string{src.Name, dst.Name}
		route.Steps = []string{
			fmt.Sprintf("Navigate from %s to %s", src.Name, dst.Name),
			"Use the main pathways and follow campus signage",
		}
		return route, nil
	}

	route.Path = path
	route.Found = true
	route.Steps = append(route.Steps, fmt.Sprintf("Start from %s", path[0]))
	for _, hop := range path[1 : len(path)-1] {
		route.Steps = append(route.Steps, fmt.Sprintf("Head towards %s", hop))
	}
	route.Steps = append(route.Steps, fmt.Sprintf("Continue to %s", path[len(path)-1]))
	return route, nil
}

func (f *RouteFinder) resolve(ctx context.Context, query string) (model.LocationRecord, error) {
	if rec, ok := f.store.Get(ctx, query); ok {
		return rec, nil
	}
	matches := f.search.Search(ctx, query)
	if len(matches) == 0 {
		return model.LocationRecord{}, fmt.Errorf("%w: location %q", model.ErrNotFound, query)
	}
	return matches[0], nil
}

// shortestPath runs a breadth-first search and returns nil when dst is
// unreachable. Neighbour names that are not known locations are skipped.
func shortestPath(all []model.LocationRecord, src, dst string) []string {
	names := make(map[string]string, len(all))
	for _, l := range all {
		names[utils.Normalize(l.Name)] = l.Name
	}

	adj := make(map[string][]string, len(all))
	link := func(a, b string) {
		adj[a] = append(adj[a], b)
	}
	for _, l := range all {
		a := utils.Normalize(l.Name)
		for _, n := range l.NeighboringLocationNames {
			b := utils.Normalize(n)
			if _, ok := names[b]; !ok || a == b {
				continue
			}
			link(a, b)
			link(b, a)
		}
	}

	start, goal := utils.Normalize(src), utils.Normalize(dst)
	prev := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == goal {
			break
		}
		for _, next := range adj[cur] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			queue = append(queue, next)
		}
	}
	if _, ok := prev[goal]; !ok {
		return nil
	}

	var rev []string
	for at := goal; at != ""; at = prev[at] {
		rev = append(rev, names[at])
	}
	path := make([]string, len(rev))
	for i, n := range rev {
		path[len(rev)-1-i] = n
	}
	return path
}
