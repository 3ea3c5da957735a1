package main

import (
	"net/http"

	"github.com/retro-framework/cqrskit/framework/packing"
)

type eventManifestServer struct {
	m *packing.EventManifest
}

func (ms eventManifestServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ms.m.List())
}
