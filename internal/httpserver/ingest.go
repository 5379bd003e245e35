package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/logmock/internal/ingest"
)

// HelloBody is the response of GET /.
const HelloBody = "Hello, World!"

func (s *Server) handleHello(c *gin.Context) {
	c.String(http.StatusOK, HelloBody)
}

// handleIngest hands the already-recorded request to the endpoint.
func (s *Server) handleIngest(c *gin.Context) {
	raw, ok := rawRequest(c)
	if !ok {
		c.String(http.StatusInternalServerError, "request not recorded")
		return
	}
	status, body := s.endpoint.Process(raw.Path, raw.Body, raw.Metadata)
	c.String(status, body)
}

func (s *Server) handleNotFound(c *gin.Context) {
	c.String(http.StatusNotFound, ingest.NotFoundBody)
}

func (s *Server) handleMethodNotAllowed(c *gin.Context) {
	c.String(http.StatusMethodNotAllowed, "method not allowed")
}
