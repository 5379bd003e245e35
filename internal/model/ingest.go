package model

import (
	"strings"
	"time"
)

// Metadata is the request environment, shaped like a CGI/WSGI environ:
// REQUEST_METHOD, PATH_INFO, QUERY_STRING, REMOTE_ADDR, CONTENT_TYPE, ...
// and one HTTP_<NAME> entry per request header.
type Metadata map[string]string

// Well-known metadata keys.
const (
	MetaRequestMethod  = "REQUEST_METHOD"
	MetaPathInfo       = "PATH_INFO"
	MetaQueryString    = "QUERY_STRING"
	MetaRemoteAddr     = "REMOTE_ADDR"
	MetaServerProtocol = "SERVER_PROTOCOL"
	MetaContentType    = "CONTENT_TYPE"
	MetaContentLength  = "CONTENT_LENGTH"
	MetaRequestID      = "REQUEST_ID"
)

// HeaderKey converts an HTTP header name to its metadata key.
// Content-Type and Content-Length map to their CGI names.
func HeaderKey(name string) string {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
	switch key {
	case MetaContentType, MetaContentLength:
		return key
	}
	return "HTTP_" + key
}

// Header returns the value of the named HTTP header, or "" when absent.
func (m Metadata) Header(name string) string {
	if m == nil {
		return ""
	}
	return m[HeaderKey(name)]
}

// SetHeader stores a header value, joining repeated headers with ", ".
func (m Metadata) SetHeader(name, value string) {
	key := HeaderKey(name)
	if prev, ok := m[key]; ok && prev != "" {
		m[key] = prev + ", " + value
		return
	}
	m[key] = value
}

// Clone returns a shallow copy of the metadata.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RawRequest carries one received body with its request metadata.
// It is the transport contract between the HTTP/gRPC surfaces and the endpoint.
type RawRequest struct {
	Path       string
	Body       []byte
	Metadata   Metadata
	ReceivedAt time.Time
}
