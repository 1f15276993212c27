package audit

import (
	"net/http"
	"strings"
)

// Route prefixes of the proctoring API.
const (
	SessionRoutePrefix    = "/api/session-cheating-detection/"
	StatisticsRoutePrefix = "/api/cheating-detection/"
)

// Resources recorded in audit logs.
const (
	ResourceSession    = "proctoring_session"
	ResourceReport     = "proctoring_report"
	ResourceLiveFeed   = "live_feed"
	ResourceStatistics = "proctoring_statistics"
	ResourceHealth     = "health"
)

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseRoute returns action and resource for an HTTP method and path.
// Lifecycle routes map to their verb (start, update, end) on the session resource;
// per-interview reads map to list, export or subscribe. Unknown routes fall back to
// a verb derived from the method and resource "unknown".
func ParseRoute(method, path string) ActionResource {
	path = strings.TrimSuffix(path, "/")
	switch {
	case path == "/health":
		return ActionResource{Action: "get", Resource: ResourceHealth}
	case strings.HasPrefix(path, StatisticsRoutePrefix):
		rest := strings.TrimPrefix(path, StatisticsRoutePrefix)
		if rest == "statistics" {
			return ActionResource{Action: "get", Resource: ResourceStatistics}
		}
	case strings.HasPrefix(path, SessionRoutePrefix):
		segs := strings.Split(strings.TrimPrefix(path, SessionRoutePrefix), "/")
		switch {
		case len(segs) == 1 && method == http.MethodPost:
			switch segs[0] {
			case "start", "update", "end":
				return ActionResource{Action: segs[0], Resource: ResourceSession}
			}
		case len(segs) == 1 && segs[0] != "":
			return ActionResource{Action: "list", Resource: ResourceSession}
		case len(segs) == 2 && segs[1] == "export":
			return ActionResource{Action: "export", Resource: ResourceReport}
		case len(segs) == 2 && segs[1] == "live":
			return ActionResource{Action: "subscribe", Resource: ResourceLiveFeed}
		}
	}
	return ActionResource{Action: methodToAction(method), Resource: "unknown"}
}

// IsMutating reports whether method changes state and is therefore always audited.
func IsMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "get"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
