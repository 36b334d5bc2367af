package contract

import (
	"fmt"
	"strings"

	"github.com/portcullis-io/portcullis/internal/core/domain"
)

// routeIndex resolves concrete paths against templated routes. Resolution is
// deterministic: among all templates that match, the one with the most static
// segments wins. Two templates with identical specificity for the same method
// would make resolution ambiguous, so they are rejected when the index is
// built, never at request time.
type routeIndex struct {
	byMethod map[string][]*route
}

type route struct {
	op       *Operation
	segments []segment
	// statics counts literal segments; higher wins at resolution time.
	statics int
}

type segment struct {
	literal string
	param   string // non-empty for {name} segments
}

func newRouteIndex() *routeIndex {
	return &routeIndex{byMethod: make(map[string][]*route)}
}

func parseTemplate(template string) ([]segment, error) {
	if !strings.HasPrefix(template, "/") {
		return nil, fmt.Errorf("path template %q must start with /", template)
	}
	parts := splitPath(template)
	segs := make([]segment, 0, len(parts))
	seen := make(map[string]bool)
	for _, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := part[1 : len(part)-1]
			if name == "" {
				return nil, fmt.Errorf("path template %q has an unnamed parameter", template)
			}
			if seen[name] {
				return nil, fmt.Errorf("path template %q repeats parameter %q", template, name)
			}
			seen[name] = true
			segs = append(segs, segment{param: name})
			continue
		}
		if strings.ContainsAny(part, "{}") {
			return nil, fmt.Errorf("path template %q has a malformed segment %q", template, part)
		}
		segs = append(segs, segment{literal: part})
	}
	return segs, nil
}

func (idx *routeIndex) add(op *Operation) error {
	segs, err := parseTemplate(op.PathTemplate)
	if err != nil {
		return fmt.Errorf("operation %q: %w", op.ID, err)
	}

	r := &route{op: op, segments: segs}
	for _, s := range segs {
		if s.param == "" {
			r.statics++
		}
	}

	method := strings.ToUpper(op.Method)
	for _, existing := range idx.byMethod[method] {
		// Overlapping templates with different static counts are ordered by
		// specificity; at equal counts no rule can pick a winner, so the
		// pair is rejected here rather than resolved arbitrarily per request.
		if overlaps(existing.segments, segs) && existing.statics == r.statics {
			return fmt.Errorf(
				"operations %q and %q have ambiguous path templates %q and %q for method %s",
				existing.op.ID, op.ID, existing.op.PathTemplate, op.PathTemplate, method)
		}
	}

	idx.byMethod[method] = append(idx.byMethod[method], r)
	return nil
}

// overlaps reports whether some concrete path matches both templates: equal
// length, and no position where both hold differing literals.
func overlaps(a, b []segment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].param == "" && b[i].param == "" && a[i].literal != b[i].literal {
			return false
		}
	}
	return true
}

func (idx *routeIndex) resolve(method, path string) (string, domain.PathParams, bool) {
	parts := splitPath(path)

	var best *route
	var bestParams domain.PathParams
	for _, r := range idx.byMethod[strings.ToUpper(method)] {
		params, ok := matchSegments(r.segments, parts)
		if !ok {
			continue
		}
		if best == nil || r.statics > best.statics {
			best = r
			bestParams = params
		}
	}
	if best == nil {
		return "", nil, false
	}
	return best.op.ID, bestParams, true
}

func matchSegments(segs []segment, parts []string) (domain.PathParams, bool) {
	if len(segs) != len(parts) {
		return nil, false
	}
	var params domain.PathParams
	for i, s := range segs {
		if s.param != "" {
			if parts[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(domain.PathParams, 2)
			}
			params[s.param] = parts[i]
			continue
		}
		if s.literal != parts[i] {
			return nil, false
		}
	}
	return params, true
}

// splitPath splits a path into segments, normalizing the trailing slash so
// "/users" and "/users/" resolve identically.
func splitPath(p string) []string {
	p = strings.TrimSuffix(strings.TrimPrefix(p, "/"), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
