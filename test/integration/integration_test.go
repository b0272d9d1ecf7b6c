// Package integration runs the storekit stack end to end over real HTTP and
// WebSocket connections.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storekit/internal/api"
	"storekit/internal/guard"
	"storekit/internal/journal"
	"storekit/internal/middleware"
	"storekit/internal/store"
	"storekit/internal/stream"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stack struct {
	url     string
	doc     *store.Serial[store.Map]
	journal *journal.Journal[store.Map]
	hub     *stream.Hub
}

var testRules = []guard.Rule{
	{Name: "count_non_negative", Expression: "!has(state.count) || state.count >= 0.0", Message: "count cannot go below zero"},
	{Name: "owner_is_fixed", Expression: "!has(prev.owner) || !has(state.owner) || state.owner == prev.owner"},
}

func setupTest(t *testing.T, initial store.Map) *stack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	g, err := guard.Compile(testRules)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	collectors, err := middleware.NewCollectors(reg)
	require.NoError(t, err)

	chain, err := middleware.DocumentRegistry().Chain([]string{"metrics", "logger", "guard"}, middleware.Deps{
		StoreName:  "integration",
		Logger:     logger,
		Collectors: collectors,
		Guard:      g,
	})
	require.NoError(t, err)

	doc := store.NewSerial(store.NewMap(initial, store.WithMiddleware(chain...)), logger)
	ctx, cancel := context.WithCancel(context.Background())
	go doc.Run(ctx)

	j := journal.New[store.Map](256, nil)
	j.Attach(doc)
	hub := stream.NewHub(doc, logger)

	server := api.NewServer(doc, logger, ":0",
		api.WithJournal(j),
		api.WithStream(hub),
		api.WithMetrics(reg),
	)
	srv := httptest.NewServer(server.Handler())

	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		cancel()
		<-doc.Done()
	})

	return &stack{url: srv.URL, doc: doc, journal: j, hub: hub}
}

func (s *stack) send(method, path, body string) (*http.Response, error) {
	req, err := http.NewRequest(method, s.url+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return http.DefaultClient.Do(req)
}

func (s *stack) patch(t *testing.T, body string) int {
	t.Helper()
	resp, err := s.send(http.MethodPatch, "/api/state", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func (s *stack) getJSON(t *testing.T, path string, v any) {
	t.Helper()
	resp, err := http.Get(s.url + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, fmt.Sprintf("GET %s", path))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
