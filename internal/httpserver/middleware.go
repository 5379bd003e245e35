package httpserver

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tinytelemetry/logmock/internal/model"
)

const (
	headerRequestID = "X-Request-Id"

	ctxRequestID  = "logmock.request_id"
	ctxRawRequest = "logmock.raw_request"

	maxRequestIDLen = 128
)

// requestID assigns every request an id, reusing a sane incoming X-Request-Id.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// recordRequest reads the body, builds the request metadata and records it
// exactly once before routing outcome or any handler runs. The body is
// restored for handlers that bind it. A body that could not be read in full
// is recorded with the bytes read so far.
func (s *Server) recordRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := s.readBody(c)
		md := requestMetadata(c.Request, c.GetString(ctxRequestID))
		if s.recorder != nil {
			s.recorder.Record(md, body)
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.logger.Warn().Int64("limit", tooLarge.Limit).Str("path", c.Request.URL.Path).Msg("body too large")
				c.AbortWithStatus(http.StatusRequestEntityTooLarge)
				return
			}
			s.logger.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("body read failed")
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Set(ctxRawRequest, model.RawRequest{
			Path:       c.Request.URL.Path,
			Body:       body,
			Metadata:   md,
			ReceivedAt: time.Now(),
		})
		c.Next()
	}
}

func (s *Server) readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	reader := c.Request.Body
	if s.maxBodyBytes > 0 {
		reader = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)
	}
	return io.ReadAll(reader)
}

// requestMetadata flattens an HTTP request into environ-style metadata.
func requestMetadata(r *http.Request, requestID string) model.Metadata {
	md := model.Metadata{
		model.MetaRequestMethod:  r.Method,
		model.MetaPathInfo:       r.URL.Path,
		model.MetaQueryString:    r.URL.RawQuery,
		model.MetaServerProtocol: r.Proto,
		model.MetaRemoteAddr:     remoteHost(r.RemoteAddr),
		model.MetaRequestID:      requestID,
	}
	for name, values := range r.Header {
		for _, v := range values {
			md.SetHeader(name, v)
		}
	}
	// net/http lifts Host out of the header map.
	if r.Host != "" {
		md.SetHeader("Host", r.Host)
	}
	if _, ok := md[model.MetaContentLength]; !ok && r.ContentLength >= 0 {
		md[model.MetaContentLength] = strconv.FormatInt(r.ContentLength, 10)
	}
	return md
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func rawRequest(c *gin.Context) (model.RawRequest, bool) {
	v, ok := c.Get(ctxRawRequest)
	if !ok {
		return model.RawRequest{}, false
	}
	raw, ok := v.(model.RawRequest)
	return raw, ok
}
