package main

import (
	"net/http"

	"github.com/retro-framework/cqrskit/framework/engine"
	"github.com/retro-framework/cqrskit/framework/resolver"
)

type commandManifestServer struct {
	registry *engine.Registry
	resolver *resolver.Resolver
}

// ServeHTTP lists the command types with a handler and the command names
// /apply accepts.
func (ms commandManifestServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"handled":    ms.registry.CommandTypes(),
		"resolvable": ms.resolver.Names(),
	})
}
