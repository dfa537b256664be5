// Package profiling mounts pprof and runtime statistics on the API router.
// The endpoints expose goroutine stacks and heap contents, so serve only
// enables them when server.profiling is set.
package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/searchy/internal/web/response"
)

// DefaultPath is where Mount registers the endpoints
const DefaultPath = "/debug/pprof"

// Mount registers the pprof handlers and a JSON stats endpoint under path
func Mount(router chi.Router, path string) {
	if path == "" {
		path = DefaultPath
	}

	router.Route(path, func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			r.Handle("/"+name, pprof.Handler(name))
		}
		r.Get("/stats", StatsHandler)
	})
}

// Stats is a snapshot of runtime counters
type Stats struct {
	Goroutines int    `json:"goroutines"`
	NumCPU     int    `json:"num_cpu"`
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

// ReadStats samples the runtime
func ReadStats() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		Goroutines: runtime.NumGoroutine(),
		NumCPU:     runtime.NumCPU(),
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

// StatsHandler serves ReadStats as JSON
func StatsHandler(w http.ResponseWriter, r *http.Request) {
	response.RenderJSON(w, http.StatusOK, ReadStats())
}
