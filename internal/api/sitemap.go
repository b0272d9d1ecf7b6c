package api

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

func (s *Server) endpoints() []Endpoint {
	endpoints := []Endpoint{
		{Path: "/", Method: "GET", Description: "This sitemap - lists all available API endpoints"},
		{Path: "/api/state", Method: "GET", Description: "Get the document; ?select=<expr> returns an expression over it"},
		{Path: "/api/state", Method: "PATCH", Description: "Shallow-merge a JSON object into the document"},
		{Path: "/api/state", Method: "PUT", Description: "Replace the document with a JSON object"},
		{Path: "/health", Method: "GET", Description: "Health check endpoint - returns {\"status\": \"ok\"}"},
	}
	if s.journal != nil {
		endpoints = append(endpoints, Endpoint{Path: "/api/history", Method: "GET", Description: "Recent transitions; ?since=<seq> returns only newer ones"})
	}
	if s.status != nil {
		endpoints = append(endpoints, Endpoint{Path: "/api/status", Method: "GET", Description: "Daemon status and seed load state"})
	}
	if s.stream != nil {
		endpoints = append(endpoints, Endpoint{Path: "/ws", Method: "GET", Description: "WebSocket stream: snapshot, then one message per transition"})
	}
	if s.gatherer != nil {
		endpoints = append(endpoints, Endpoint{Path: "/metrics", Method: "GET", Description: "Prometheus metrics"})
	}
	return endpoints
}

// handleSitemap returns a list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	// Only handle requests to the root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	endpoints := s.endpoints()
	base := "http://" + r.Host
	accept := r.Header.Get("Accept")
	preferHTML := strings.HasPrefix(accept, "text/html") || strings.HasPrefix(accept, "*/*")

	// 404 for automation compatibility, with a helpful body
	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>storekit API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
    </style>
</head>
<body>
    <h1>storekit API</h1>
`)
		for _, ep := range endpoints {
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "</body>\n</html>\n")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "storekit API\n")
		fmt.Fprintf(w, "============\n\n")
		fmt.Fprintf(w, "Available endpoints:\n\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-6s %-14s %s\n", ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "\nExamples:\n\n")
		fmt.Fprintf(w, "  curl %s/api/state\n", base)
		fmt.Fprintf(w, "  curl -X PATCH -d '{\"count\": 1}' %s/api/state\n", base)
		fmt.Fprintf(w, "  curl '%s/api/state?select=count%%20*%%202'\n", base)
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("html_format", preferHTML))
}
