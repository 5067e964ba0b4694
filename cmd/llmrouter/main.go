// Package main is the entry point for the llmgateway process.
package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/llmgw/llmgateway/internal/bootstrap"
	"github.com/llmgw/llmgateway/internal/config"
	"github.com/llmgw/llmgateway/internal/dispatch"
	"github.com/llmgw/llmgateway/internal/metrics"
	"github.com/llmgw/llmgateway/internal/pipeline"
	"github.com/llmgw/llmgateway/internal/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	reg, err := bootstrap.BuildRegistry(cfg.Providers)
	if err != nil {
		log.Fatalf("failed to build provider registry: %v", err)
	}
	for _, p := range cfg.Providers {
		log.Printf("registered provider %q (%s) serving %v", p.Slug, p.Family, p.Models)
	}

	rateLimits := bootstrap.BuildRateLimitStore(cfg.RateLimits)
	selectorHeaders := bootstrap.BuildSelectorHeaders(cfg.RateLimits)

	promReg := prometheus.NewRegistry()
	sink := metrics.NewPrometheusSink(promReg)

	disp := dispatch.NewHTTPDispatcher(http.DefaultClient)

	gw := pipeline.New(
		reg,
		rateLimits,
		selectorHeaders,
		disp,
		sink,
		bootstrap.Defaults(cfg.Defaults),
		cfg.Defaults.RequestTimeout(),
		cfg.Defaults.RequestTokenEstimate,
	)

	srv := server.New(gw, reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.Handle("/", srv)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("llmgateway listening on :%d", cfg.Server.Port)

	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
