package main

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamware/replistore/internal/cluster"
	"github.com/dreamware/replistore/internal/coordinator"
)

// clusterView is the read-only coordinator state the admin endpoint exposes.
type clusterView interface {
	ReplicationFactor() int
	Members() []cluster.Member
	Files() []coordinator.FileRecord
}

func newAdminMux(view clusterView, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		handleHealth(view, w, r)
	})
	mux.HandleFunc("/nodes", func(w http.ResponseWriter, r *http.Request) {
		handleNodes(view, w, r)
	})
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		handleFiles(view, w, r)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// handleHealth always answers 200; Ready tells whether enough storage
// nodes are live to serve requests.
func handleHealth(view clusterView, w http.ResponseWriter, _ *http.Request) {
	members := len(view.Members())
	writeJSON(w, struct {
		Status            string `json:"status"`
		Members           int    `json:"members"`
		ReplicationFactor int    `json:"replication_factor"`
		Ready             bool   `json:"ready"`
	}{
		Status:            "ok",
		Members:           members,
		ReplicationFactor: view.ReplicationFactor(),
		Ready:             members >= view.ReplicationFactor(),
	})
}

func handleNodes(view clusterView, w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, struct {
		Nodes []cluster.Member `json:"nodes"`
	}{Nodes: view.Members()})
}

func handleFiles(view clusterView, w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, struct {
		Files []coordinator.FileRecord `json:"files"`
	}{Files: view.Files()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
