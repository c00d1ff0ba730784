package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ---- path parsing ----

// segment is one resource path element. "Books(201)" carries a key, "Books()"
// carries an empty one, "author" carries none.
type segment struct {
	name   string
	key    string
	hasKey bool
}

func splitPath(p string) ([]segment, error) {
	parts := strings.Split(p, "/")
	segs := make([]segment, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, ErrNotFound
		}
		part, err := url.PathUnescape(part)
		if err != nil {
			return nil, ErrNotFound
		}
		open := strings.IndexByte(part, '(')
		if open < 0 {
			segs = append(segs, segment{name: part})
			continue
		}
		if !strings.HasSuffix(part, ")") {
			return nil, ErrNotFound
		}
		segs = append(segs, segment{
			name:   part[:open],
			key:    part[open+1 : len(part)-1],
			hasKey: true,
		})
	}
	return segs, nil
}

// resolveKey turns a raw key predicate into the set's key type. An empty
// predicate is a 400, a malformed one a 404 — matching the service contract.
func resolveKey(meta *entitySet, seg segment) (any, error) {
	raw := strings.TrimSpace(seg.key)
	if raw == "" {
		return nil, errMissingKey()
	}
	// quoted keys are accepted for either kind
	if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		raw = raw[1 : len(raw)-1]
	}
	switch meta.KeyKind {
	case keyUUID:
		if !isUUID(raw) {
			return nil, errInvalidKey(raw, meta.Name)
		}
		return raw, nil
	default:
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errInvalidKey(raw, meta.Name)
		}
		return id, nil
	}
}

// ---- query options ----

type expandNode struct {
	name     string
	children []expandNode
}

type queryOptions struct {
	expand []expandNode
	sel    []string
}

func parseOptions(values url.Values) (queryOptions, error) {
	var opts queryOptions
	if raw := values.Get("$expand"); raw != "" {
		nodes, err := parseExpand(raw)
		if err != nil {
			return opts, err
		}
		opts.expand = nodes
	}
	if raw := values.Get("$select"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				opts.sel = append(opts.sel, f)
			}
		}
	}
	return opts, nil
}

// parseExpand parses "book($expand=author),other" into a tree. Only the
// nested $expand option is honored inside parentheses.
func parseExpand(raw string) ([]expandNode, error) {
	var nodes []expandNode
	for _, item := range splitTopLevel(raw) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		open := strings.IndexByte(item, '(')
		if open < 0 {
			nodes = append(nodes, expandNode{name: item})
			continue
		}
		if !strings.HasSuffix(item, ")") {
			return nil, &requestError{status: 400, message: fmt.Sprintf("Malformed $expand option %q", raw)}
		}
		node := expandNode{name: strings.TrimSpace(item[:open])}
		inner := item[open+1 : len(item)-1]
		if rest, ok := strings.CutPrefix(strings.TrimSpace(inner), "$expand="); ok {
			children, err := parseExpand(rest)
			if err != nil {
				return nil, err
			}
			node.children = children
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// splitTopLevel splits on commas outside parentheses.
func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

// ---- resolution ----

// resolver assembles response payloads: it walks navigation paths, runs
// expansions as recursive joins over the relation edges and applies
// projections last.
type resolver struct {
	repo *Repository
}

func (q *resolver) fetchCollection(ctx context.Context, set string) ([]record, error) {
	switch set {
	case "Authors":
		authors, err := q.repo.ListAuthors(ctx)
		if err != nil {
			return nil, err
		}
		recs := make([]record, 0, len(authors))
		for _, a := range authors {
			recs = append(recs, authorRecord(a))
		}
		return recs, nil
	case "Books":
		books, err := q.repo.ListBooks(ctx)
		if err != nil {
			return nil, err
		}
		recs := make([]record, 0, len(books))
		for _, b := range books {
			recs = append(recs, bookRecord(b))
		}
		return recs, nil
	case "Orders":
		orders, err := q.repo.ListOrders(ctx)
		if err != nil {
			return nil, err
		}
		recs := make([]record, 0, len(orders))
		for _, o := range orders {
			recs = append(recs, orderRecord(o))
		}
		return recs, nil
	}
	return nil, ErrNotFound
}

func (q *resolver) fetchOne(ctx context.Context, set string, key any) (record, error) {
	switch set {
	case "Authors":
		id, ok := key.(int64)
		if !ok {
			return nil, ErrNotFound
		}
		a, err := q.repo.GetAuthor(ctx, id)
		if err != nil {
			return nil, err
		}
		return authorRecord(*a), nil
	case "Books":
		id, ok := key.(int64)
		if !ok {
			return nil, ErrNotFound
		}
		b, err := q.repo.GetBook(ctx, id)
		if err != nil {
			return nil, err
		}
		return bookRecord(*b), nil
	case "Orders":
		id, ok := key.(string)
		if !ok {
			return nil, ErrNotFound
		}
		o, err := q.repo.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		return orderRecord(*o), nil
	}
	return nil, ErrNotFound
}

func (q *resolver) fetchRelated(ctx context.Context, set string, rel *relation, rec record) (any, error) {
	if rel.ToMany {
		id, ok := rec["ID"].(int64)
		if !ok {
			return []record{}, nil
		}
		switch rel.Target {
		case "Books":
			books, err := q.repo.ListBooksByAuthor(ctx, id)
			if err != nil {
				return nil, err
			}
			recs := make([]record, 0, len(books))
			for _, b := range books {
				recs = append(recs, bookRecord(b))
			}
			return recs, nil
		case "Orders":
			orders, err := q.repo.ListOrdersByBook(ctx, id)
			if err != nil {
				return nil, err
			}
			recs := make([]record, 0, len(orders))
			for _, o := range orders {
				recs = append(recs, orderRecord(o))
			}
			return recs, nil
		}
		return nil, ErrNotFound
	}
	return q.fetchOne(ctx, rel.Target, rec[rel.FKField])
}

// expandRecords inlines the requested relations into every record,
// recursively for nested nodes. A dangling to-one edge expands to null.
func (q *resolver) expandRecords(ctx context.Context, set string, recs []record, nodes []expandNode) error {
	if len(nodes) == 0 {
		return nil
	}
	meta := entitySets[set]
	for _, node := range nodes {
		rel := meta.relation(node.name)
		if rel == nil {
			return errNoSuchNavigation(node.name, set)
		}
		for _, rec := range recs {
			val, err := q.fetchRelated(ctx, set, rel, rec)
			if err != nil {
				if errors.Is(err, ErrNotFound) && !rel.ToMany {
					rec[node.name] = nil
					continue
				}
				return err
			}
			if rel.ToMany {
				children := val.([]record)
				if err := q.expandRecords(ctx, rel.Target, children, node.children); err != nil {
					return err
				}
				rec[node.name] = children
			} else {
				child := val.(record)
				if err := q.expandRecords(ctx, rel.Target, []record{child}, node.children); err != nil {
					return err
				}
				rec[node.name] = child
			}
		}
	}
	return nil
}

// project keeps the selected fields plus the key.
func project(recs []record, sel []string) {
	if len(sel) == 0 {
		return
	}
	keep := map[string]bool{"ID": true}
	for _, f := range sel {
		keep[f] = true
	}
	for i, rec := range recs {
		out := make(record, len(keep))
		for k, v := range rec {
			if keep[k] {
				out[k] = v
			}
		}
		recs[i] = out
	}
}

// collection resolves GET /Set with options applied.
func (q *resolver) collection(ctx context.Context, set string, opts queryOptions) (any, error) {
	recs, err := q.fetchCollection(ctx, set)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []record{}
	}
	if err := q.expandRecords(ctx, set, recs, opts.expand); err != nil {
		return nil, err
	}
	project(recs, opts.sel)
	return record{"value": recs}, nil
}

// single resolves GET /Set(key) followed by any navigation segments.
// Scalar segments wrap as {"value": ...}, to-many navigations as
// collections; to-one navigations continue the walk.
func (q *resolver) single(ctx context.Context, set string, key any, nav []segment, opts queryOptions) (any, error) {
	cur, err := q.fetchOne(ctx, set, key)
	if err != nil {
		return nil, err
	}
	meta := entitySets[set]

	for i, seg := range nav {
		last := i == len(nav)-1
		if rel := meta.relation(seg.name); rel != nil {
			if rel.ToMany {
				if !last {
					return nil, ErrNotFound
				}
				val, err := q.fetchRelated(ctx, set, rel, cur)
				if err != nil {
					return nil, err
				}
				recs := val.([]record)
				if err := q.expandRecords(ctx, rel.Target, recs, opts.expand); err != nil {
					return nil, err
				}
				project(recs, opts.sel)
				return record{"value": recs}, nil
			}
			val, err := q.fetchRelated(ctx, set, rel, cur)
			if err != nil {
				return nil, err
			}
			cur = val.(record)
			meta = entitySets[rel.Target]
			set = rel.Target
			continue
		}
		if meta.hasField(seg.name) {
			if !last {
				return nil, ErrNotFound
			}
			return record{"value": cur[seg.name]}, nil
		}
		return nil, ErrNotFound
	}

	if err := q.expandRecords(ctx, set, []record{cur}, opts.expand); err != nil {
		return nil, err
	}
	recs := []record{cur}
	project(recs, opts.sel)
	return recs[0], nil
}
