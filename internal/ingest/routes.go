package ingest

import "strings"

// Route paths served by default.
const (
	RouteLogGroup       = "/logstores/{name}/shards/lb"
	RouteOTUpload       = "/otupload"
	RouteOTLPHTTP       = "/v1/logs"
	RouteOTLPGRPCExport = "/opentelemetry.proto.collector.logs.v1.LogsService/Export"
)

// Transport identifies the surface a route is served on.
type Transport int

const (
	TransportHTTP Transport = iota
	TransportGRPC
)

// Route binds a path pattern to the schema its bodies are decoded against.
// Pattern segments of the form {param} match any single non-empty segment.
type Route struct {
	Pattern   string
	Schema    Schema
	Transport Transport
}

// RouteTable is an ordered route-to-schema binding. The first match wins.
type RouteTable []Route

// DefaultRoutes returns the shard write API, the /otupload endpoint, the
// standard OTLP/HTTP path and the OTLP/gRPC export method.
func DefaultRoutes() RouteTable {
	return RouteTable{
		{Pattern: RouteLogGroup, Schema: LogGroupSchema()},
		{Pattern: RouteOTUpload, Schema: OTLPLogsSchema()},
		{Pattern: RouteOTLPHTTP, Schema: OTLPLogsSchema()},
		{Pattern: RouteOTLPGRPCExport, Schema: OTLPLogsSchema(), Transport: TransportGRPC},
	}
}

// Match finds the route for path and returns the captured pattern parameters.
func (t RouteTable) Match(path string) (Route, map[string]string, bool) {
	segments := splitPath(path)
	for _, route := range t {
		if params, ok := matchPattern(splitPath(route.Pattern), segments); ok {
			return route, params, true
		}
	}
	return Route{}, nil, false
}

// HTTP returns the routes served over HTTP.
func (t RouteTable) HTTP() RouteTable {
	out := make(RouteTable, 0, len(t))
	for _, route := range t {
		if route.Transport == TransportHTTP {
			out = append(out, route)
		}
	}
	return out
}

// GinPath converts a {param} pattern to gin's :param syntax.
func (r Route) GinPath() string {
	segments := splitPath(r.Pattern)
	for i, seg := range segments {
		if name, ok := paramName(seg); ok {
			segments[i] = ":" + name
		}
	}
	return "/" + strings.Join(segments, "/")
}

func matchPattern(pattern, segments []string) (map[string]string, bool) {
	if len(pattern) != len(segments) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range pattern {
		if name, ok := paramName(seg); ok {
			if segments[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[name] = segments[i]
			continue
		}
		if seg != segments[i] {
			return nil, false
		}
	}
	return params, true
}

func paramName(segment string) (string, bool) {
	if len(segment) > 2 && strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
		return segment[1 : len(segment)-1], true
	}
	return "", false
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return []string{}
	}
	return strings.Split(trimmed, "/")
}
