package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storekit/internal/api"
	"storekit/internal/clock"
	"storekit/internal/config"
	"storekit/internal/guard"
	"storekit/internal/journal"
	"storekit/internal/middleware"
	"storekit/internal/resource"
	"storekit/internal/store"
	"storekit/internal/stream"
	pkgstore "storekit/pkg/store"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	docStoreName = "doc"
	seedTimeout  = 30 * time.Second
)

// daemon owns every store and server of one storekitd process
type daemon struct {
	cfg     *config.Config
	logger  *zap.Logger
	doc     *store.Serial[store.Map]
	status  *store.Serial[api.Status]
	journal *journal.Journal[store.Map]
	hub     *stream.Hub
	server  *api.Server
	client  *http.Client
}

func newDaemon(cfg *config.Config, logger *zap.Logger, reg *prometheus.Registry) (*daemon, error) {
	g, err := guard.Compile(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	metrics, err := middleware.NewCollectors(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	chain, err := middleware.DocumentRegistry().Chain(cfg.Middleware, middleware.Deps{
		StoreName:  docStoreName,
		Logger:     logger,
		Collectors: metrics,
		Guard:      g,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build middleware chain: %w", err)
	}

	initial, err := cfg.Document()
	if err != nil {
		return nil, err
	}

	// Rules must already hold for the initial state
	if err := g.Check(initial, initial); err != nil {
		return nil, fmt.Errorf("initial_state: %w", err)
	}

	clk := clock.NewReal()
	doc := store.NewSerial(
		store.NewMap(initial, store.WithMode[store.Map](cfg.StoreMode()), store.WithMiddleware(chain...)),
		logger.Named("doc"),
	)

	status := store.NewSerial(store.New(api.Status{
		Started:    clk.Now(),
		Mode:       cfg.StoreMode().String(),
		ReadOnly:   cfg.ReadOnly,
		Middleware: cfg.Middleware,
		Rules:      g.Names(),
		Seed:       resource.Idle[store.Map](),
	}), logger.Named("status"))

	// Journal first so its sequence is current when the hub broadcasts
	j := journal.New[store.Map](cfg.JournalSize, clk)
	j.Attach(doc)
	hub := stream.NewHub(doc, logger.Named("stream"))

	var handle pkgstore.Handle[store.Map] = doc
	if cfg.ReadOnly {
		handle = pkgstore.ReadOnly(handle)
	}

	server := api.NewServer(handle, logger, cfg.Listen,
		api.WithJournal(j),
		api.WithStatus(status),
		api.WithStream(hub),
		api.WithMetrics(reg),
	)

	return &daemon{
		cfg:     cfg,
		logger:  logger,
		doc:     doc,
		status:  status,
		journal: j,
		hub:     hub,
		server:  server,
		client:  &http.Client{Timeout: seedTimeout},
	}, nil
}

// run serves until ctx is done
func (d *daemon) run(ctx context.Context) error {
	go d.doc.Run(ctx)
	go d.status.Run(ctx)

	if d.cfg.SeedURL != "" {
		go func() {
			if err := d.seed(ctx); err != nil {
				d.logger.Warn("Seed load failed", zap.String("url", d.cfg.SeedURL), zap.Error(err))
			}
		}()
	}

	if err := d.server.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	d.hub.Close()
	if err := d.server.Stop(); err != nil {
		return err
	}
	<-d.doc.Done()
	<-d.status.Done()

	d.logger.Info("storekitd stopped", zap.Uint64("transitions", d.journal.Seq()))
	return nil
}

// seed loads the seed document, tracking progress in the status store, and
// merges it into the document store
func (d *daemon) seed(ctx context.Context) error {
	if err := resource.Load(ctx, d.status, api.SeedLens, fetchSeed(d.client, d.cfg.SeedURL)); err != nil {
		return err
	}

	seed := d.status.GetState().Seed.Data
	if err := d.doc.Update(ctx, store.Update(func(current store.Map) store.Map {
		return store.MergeMap(current, seed)
	})); err != nil {
		return fmt.Errorf("failed to apply seed: %w", err)
	}

	d.logger.Info("Seed applied", zap.String("url", d.cfg.SeedURL), zap.Int("keys", len(seed)))
	return nil
}

// fetchSeed returns a fetcher for a JSON object served at url
func fetchSeed(client *http.Client, url string) resource.Fetcher[store.Map] {
	return func(ctx context.Context) (store.Map, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create seed request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("seed returned status %d", resp.StatusCode)
		}

		var doc store.Map
		decoder := json.NewDecoder(resp.Body)
		if err := decoder.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode seed: %w", err)
		}
		if err := decoder.Decode(&json.RawMessage{}); err != io.EOF {
			return nil, fmt.Errorf("failed to decode seed: unexpected data after object")
		}
		if doc == nil {
			return nil, fmt.Errorf("seed is not a JSON object")
		}
		return doc, nil
	}
}
