package main

import (
	"context"
	"net/http"
	"os"

	"github.com/go-redis/redis"
	"github.com/gorilla/mux"
	client "github.com/influxdata/influxdb/client/v2"
	"github.com/olivere/elastic"
	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/aggregates"
	"github.com/retro-framework/cqrskit/commands"
	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cache"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/depot"
	"github.com/retro-framework/cqrskit/framework/engine"
	"github.com/retro-framework/cqrskit/framework/packing"
	"github.com/retro-framework/cqrskit/framework/processor"
	"github.com/retro-framework/cqrskit/framework/resolver"
	"github.com/retro-framework/cqrskit/framework/storage/memory"
	"github.com/retro-framework/cqrskit/framework/storage/postgres"
	redistracker "github.com/retro-framework/cqrskit/framework/storage/redis"
	"github.com/retro-framework/cqrskit/projections"
)

// app is everything the demo server is wired from.
type app struct {
	log cqrs.Logger

	store    *depot.Memory
	types    *packing.EventManifest
	packer   *packing.JSONPacker
	registry *engine.Registry
	engine   *engine.Engine
	resolver *resolver.Resolver

	tracker  cqrs.ProgressTracker
	handlers *processor.Handlers
	runner   *processor.Runner

	board       *projections.Board
	search      *projections.Search
	projections map[string]projections.Projection

	closers []func() error
}

func newApp(ctx context.Context, opts options, log cqrs.Logger, clock cqrs.Clock) (*app, error) {
	a := &app{
		log:         log,
		store:       depot.NewMemory(clock),
		types:       packing.NewEventManifest(),
		packer:      packing.NewJSONPacker(),
		registry:    engine.NewRegistry(),
		resolver:    resolver.New(),
		handlers:    processor.NewHandlers(),
		runner:      processor.NewRunner(),
		board:       projections.NewBoard(),
		projections: map[string]projections.Projection{},
	}
	a.closers = append(a.closers, a.store.Close)

	if err := events.Register(a.types); err != nil {
		return nil, err
	}
	if err := aggregates.Register(a.registry); err != nil {
		return nil, err
	}
	if err := commands.Register(a.registry, clock); err != nil {
		return nil, err
	}
	if err := commands.RegisterFactories(a.resolver); err != nil {
		return nil, err
	}

	var c cache.Cache = cache.Noop{}
	if opts.cacheSize > 0 {
		lru, err := cache.NewLRU(opts.cacheSize)
		if err != nil {
			return nil, err
		}
		c = lru
	}
	a.engine = engine.New(a.store, a.types, a.packer, a.registry,
		engine.WithCache(c),
		engine.WithUpcasters(events.Upcasters()),
		engine.WithLogger(log),
		engine.WithSource("demo-server"),
	)

	tracker, err := a.openTracker(ctx, opts)
	if err != nil {
		return nil, err
	}
	a.tracker = tracker

	if err := a.addProjection(a.board); err != nil {
		return nil, err
	}
	if opts.influxAddr != "" {
		ic, err := client.NewHTTPClient(client.HTTPConfig{Addr: opts.influxAddr})
		if err != nil {
			return nil, errors.Wrap(err, "can't create influxdb client")
		}
		a.closers = append(a.closers, ic.Close)
		metrics := projections.NewMetrics(ic, opts.influxDatabase)
		if err := metrics.EnsureDatabase(ctx); err != nil {
			return nil, err
		}
		if err := a.addProjection(metrics); err != nil {
			return nil, err
		}
	}
	if opts.elasticURL != "" {
		ec, err := elastic.NewClient(elastic.SetURL(opts.elasticURL), elastic.SetSniff(false))
		if err != nil {
			return nil, errors.Wrap(err, "can't create elasticsearch client")
		}
		a.search = projections.NewSearch(ec)
		if err := a.search.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		if err := a.addProjection(a.search); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openTracker(ctx context.Context, opts options) (cqrs.ProgressTracker, error) {
	switch opts.tracker {
	case "memory":
		return memory.NewProgressTracker(), nil
	case "redis":
		rc := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		if err := rc.Ping().Err(); err != nil {
			return nil, errors.Wrapf(err, "can't reach redis at %s", opts.redisAddr)
		}
		a.closers = append(a.closers, rc.Close)
		return redistracker.NewProgressTracker(rc, "cqrskit"), nil
	case "postgres":
		db, err := postgres.Open(opts.postgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		pt := postgres.NewProgressTracker(db, "", nil)
		if err := pt.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pt, nil
	}
	return nil, errors.Errorf("unknown tracker %q", opts.tracker)
}

func (a *app) addProjection(p projections.Projection) error {
	if err := p.Register(a.handlers); err != nil {
		return errors.Wrapf(err, "can't register projection %s", p.Group())
	}
	a.projections[p.Group()] = p
	return nil
}

// processors builds one processor per partition of every configured
// group, every projection is run with the defaults when no config file
// is given.
func (a *app) processors(ctx context.Context, opts options) ([]*processor.Processor, error) {
	var cfgs []processor.Config
	if opts.processorsConfig != "" {
		f, err := os.Open(opts.processorsConfig)
		if err != nil {
			return nil, errors.Wrap(err, "can't open processors config")
		}
		defer f.Close()
		if cfgs, err = processor.LoadConfigs(f); err != nil {
			return nil, err
		}
	} else {
		for group := range a.projections {
			cfgs = append(cfgs, processor.DefaultConfig(group))
		}
	}

	var out []*processor.Processor
	for _, cfg := range cfgs {
		if _, ok := a.projections[cfg.Group]; !ok {
			a.log.Warnf("no projection handles group %s, not starting it", cfg.Group)
			continue
		}
		for _, part := range cfg.Split() {
			out = append(out, processor.New(a.store, a.tracker, a.types, a.packer, a.handlers, part,
				processor.WithUpcasters(events.Upcasters()),
				processor.WithLogger(a.log),
			))
		}
	}
	return out, nil
}

func (a *app) routes(r *mux.Router) *mux.Router {
	r.Handle("/apply", engineServer{a.engine, a.resolver}).Methods("POST")
	r.Handle("/list/events", eventManifestServer{a.types}).Methods("GET")
	r.Handle("/list/commands", commandManifestServer{a.registry, a.resolver}).Methods("GET")
	r.Handle("/events", eventsServer{a.store}).Methods("GET")
	r.Handle("/board", boardServer{a.board}).Methods("GET")
	r.Handle("/board/{id}", boardServer{a.board}).Methods("GET")
	if a.search != nil {
		r.Handle("/search", searchServer{a.search}).Methods("GET")
	}
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := a.engine.Ping(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods("GET")
	return r
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warnf("close: %s", err)
		}
	}
}
