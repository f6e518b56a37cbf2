// Package main is the entry point for the mealscan service.
package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/ollie-ward/mealscan/internal/config"
	"github.com/ollie-ward/mealscan/internal/nutrition"
	"github.com/ollie-ward/mealscan/internal/server"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// One shared HTTP client for all provider calls. Per-request deadlines
	// come from the analyzer's context, so no client-level timeout here.
	analyzer := nutrition.NewAnalyzer(cfg, &http.Client{})

	srv := server.New(cfg, analyzer)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("mealscan listening on :%d (provider: %s)",
		cfg.Server.Port, cfg.ResolveProvider().Provider)

	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
