package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/namsral/flag"
	opentracing "github.com/opentracing/opentracing-go"
	zipkin "github.com/openzipkin/zipkin-go-opentracing"
	"github.com/sirupsen/logrus"

	"github.com/retro-framework/cqrskit/framework/cqrs"
)

type options struct {
	listenAddr       string
	zipkinURL        string
	cacheSize        int
	tracker          string
	redisAddr        string
	postgresDSN      string
	processorsConfig string
	influxAddr       string
	influxDatabase   string
	elasticURL       string
	debug            bool
}

func main() {
	var opts options

	flag.StringVar(&opts.listenAddr, "listen", ":8080", "address the HTTP server listens on")
	flag.StringVar(&opts.zipkinURL, "zipkin_url", "", "zipkin span collector, e.g. http://localhost:9411/api/v1/spans")
	flag.IntVar(&opts.cacheSize, "cache_size", 1024, "number of rebuilt aggregates kept in memory, 0 disables the cache")
	flag.StringVar(&opts.tracker, "tracker", "memory", "where processors keep their progress: memory, redis or postgres")
	flag.StringVar(&opts.redisAddr, "redis_addr", "localhost:6379", "redis address for the redis tracker")
	flag.StringVar(&opts.postgresDSN, "postgres_dsn", "postgres://localhost/cqrskit?sslmode=disable", "connection string for the postgres tracker")
	flag.StringVar(&opts.processorsConfig, "processors_config", "", "YAML file with the processors to run, every projection with defaults when empty")
	flag.StringVar(&opts.influxAddr, "influx_addr", "", "InfluxDB address, enables the metrics projection")
	flag.StringVar(&opts.influxDatabase, "influx_db", "taskboard", "InfluxDB database of the metrics projection")
	flag.StringVar(&opts.elasticURL, "elastic_url", "", "Elasticsearch URL, enables the search projection")
	flag.BoolVar(&opts.debug, "debug", false, "log at debug level")
	flag.Parse()

	log := logrus.New()
	if opts.debug {
		log.SetLevel(logrus.DebugLevel)
	}

	if opts.zipkinURL != "" {
		collector, err := zipkin.NewHTTPCollector(opts.zipkinURL)
		if err != nil {
			log.Fatal(err)
		}
		defer collector.Close()
		tracer, err := zipkin.NewTracer(
			zipkin.NewRecorder(collector, true, opts.listenAddr, "cqrskit-demo-server"),
		)
		if err != nil {
			log.Fatal(err)
		}
		opentracing.SetGlobalTracer(tracer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts, log, cqrs.SystemClock{})
	if err != nil {
		log.Fatal(err)
	}
	defer a.close()

	procs, err := a.processors(ctx, opts)
	if err != nil {
		log.Fatal(err)
	}
	go func() {
		if err := a.runner.Run(ctx, procs...); err != nil && ctx.Err() == nil {
			log.Errorf("processors stopped: %s", err)
			stop()
		}
	}()

	s := &http.Server{
		Addr:           opts.listenAddr,
		Handler:        handlers.CombinedLoggingHandler(os.Stdout, a.routes(mux.NewRouter())),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	log.Infof("listening on %s", opts.listenAddr)
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
