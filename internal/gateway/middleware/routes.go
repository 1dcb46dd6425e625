package middleware

import (
	"sort"
	"strings"
)

// OtherRoute labels requests that match no registered route
const OtherRoute = "other"

// RouteLabels maps request paths onto the registered route patterns so
// metric and span labels stay bounded whatever paths clients send
type RouteLabels struct {
	routes []routePattern
}

type routePattern struct {
	pattern  string
	segments []string
	params   int
}

// NewRouteLabels builds labels from go-zero style patterns such as
// /api/v1/jobs/:id
func NewRouteLabels(patterns ...string) *RouteLabels {
	l := &RouteLabels{}
	for _, p := range patterns {
		rp := routePattern{pattern: p, segments: strings.Split(p, "/")}
		for _, s := range rp.segments {
			if strings.HasPrefix(s, ":") {
				rp.params++
			}
		}
		l.routes = append(l.routes, rp)
	}
	// static routes win over parameterized ones of the same shape
	sort.SliceStable(l.routes, func(i, j int) bool {
		return l.routes[i].params < l.routes[j].params
	})
	return l
}

// Label returns the pattern matching path, or OtherRoute
func (l *RouteLabels) Label(path string) string {
	if l == nil {
		return OtherRoute
	}

	segments := strings.Split(path, "/")
	for _, rp := range l.routes {
		if rp.match(segments) {
			return rp.pattern
		}
	}
	return OtherRoute
}

func (rp routePattern) match(segments []string) bool {
	if len(segments) != len(rp.segments) {
		return false
	}
	for i, s := range rp.segments {
		if strings.HasPrefix(s, ":") {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if s != segments[i] {
			return false
		}
	}
	return true
}
