// Package mcp exposes the gateway over the Model Context Protocol: the chat
// and image relays plus the model catalog, as MCP tools served on /mcp via the
// official Go SDK's streamable HTTP transport.
package mcp

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
)

// serverName identifies this implementation to MCP clients.
const serverName = "shinway-mcp"

const serverVersion = "1.0.0"

// Server binds one caller's credentials to an MCP server instance. The chat
// and image tools relay through the gateway's own HTTP edge, so the caller's
// API key rides along and the usual routing, billing, and rate limits apply.
type Server struct {
	server *mcp.Server

	baseURL string
	token   string
	client  *http.Client
}

// NewServer builds a server whose relay tools call the edge at baseURL with
// the given bearer token.
func NewServer(baseURL, token string) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: config.UpstreamAttemptTimeout + 30*time.Second},
	}
	s.addTools()
	return s
}

// Handler adapts the SDK's streamable HTTP handler to gin. A fresh server is
// bound per request so each MCP session carries its own caller token.
func Handler() gin.HandlerFunc {
	h := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return NewServer(config.APIURL, bearerToken(req)).server
	}, nil)
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func bearerToken(req *http.Request) string {
	auth := req.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	if key := req.Header.Get("x-api-key"); key != "" {
		return key
	}
	return auth
}
