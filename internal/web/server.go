package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"papi-ng/internal/ingest"
	"papi-ng/internal/location"
	"papi-ng/internal/logging"
	"papi-ng/internal/publish"
	"papi-ng/internal/runway"
)

// StateSource exposes the aggregator's published snapshot.
type StateSource interface {
	Snapshot() location.State
}

// SourceSwitcher changes the active telemetry source.
type SourceSwitcher interface {
	Switch(name string) error
	Status() ingest.Status
}

// ApproachSelector manages the selected runway.
type ApproachSelector interface {
	Select(ctx context.Context, airport, ident string) (runway.Selection, error)
	Clear()
	Current() (runway.Selection, bool)
}

// Deps are the collaborators behind the HTTP API. Nil members disable the
// routes that need them.
// RunwayLister lists the runway idents known at an airport.
type RunwayLister interface {
	Runways(ctx context.Context, airport string) ([]string, error)
}

// PublisherStatus reports the MQTT publisher's counters.
type PublisherStatus interface {
	Snapshot() publish.Snapshot
}

type Deps struct {
	Status   *Status
	State    StateSource
	Sources  SourceSwitcher
	Approach ApproachSelector
	Runways  RunwayLister
	Settings SettingsStore
	Logs     *logging.Buffer
	Stream   *StateBroadcaster
	MQTT     PublisherStatus
}

func Handler(d Deps) http.Handler {
	if d.Status == nil {
		d.Status = NewStatus()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if d.State == nil {
			http.Error(w, "state unavailable", http.StatusNotFound)
			return
		}
		writeJSON(w, d.State.Snapshot())
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, d.Status.Snapshot(time.Now().UTC(), d))
	})

	mux.HandleFunc("/api/source", func(w http.ResponseWriter, r *http.Request) {
		if d.Sources == nil {
			http.Error(w, "sources unavailable", http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, d.Sources.Status())
		case http.MethodPost:
			var req struct {
				Source string `json:"source"`
			}
			if err := decodeStrict(w, r, &req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := d.Sources.Switch(req.Source); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			writeJSON(w, d.Sources.Status())
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/approach/runways", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if d.Runways == nil {
			http.Error(w, "runway lookup unavailable", http.StatusNotFound)
			return
		}
		airport := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("airport")))
		if airport == "" {
			http.Error(w, "airport is required", http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		idents, err := d.Runways.Runways(ctx, airport)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(idents) == 0 {
			http.Error(w, "no runways for airport "+airport, http.StatusNotFound)
			return
		}
		writeJSON(w, struct {
			Airport string   `json:"airport"`
			Runways []string `json:"runways"`
		}{airport, idents})
	})
	mux.HandleFunc("/api/approach", func(w http.ResponseWriter, r *http.Request) {
		if d.Approach == nil {
			http.Error(w, "runway lookup unavailable", http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			sel, ok := d.Approach.Current()
			if !ok {
				http.Error(w, "no approach selected", http.StatusNotFound)
				return
			}
			writeJSON(w, sel)
		case http.MethodPost:
			var req struct {
				Airport string `json:"airport"`
				Runway  string `json:"runway"`
			}
			if err := decodeStrict(w, r, &req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if req.Airport == "" || req.Runway == "" {
				http.Error(w, "airport and runway are required", http.StatusBadRequest)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			sel, err := d.Approach.Select(ctx, req.Airport, req.Runway)
			if errors.Is(err, runway.ErrNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			writeJSON(w, sel)
		case http.MethodDelete:
			d.Approach.Clear()
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("{\"ok\":true}\n"))
		default:
			w.Header().Set("Allow", "GET, POST, DELETE")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.Handle("/api/settings", d.Settings.Handler())

	if d.Logs != nil {
		mux.Handle("/api/logs", LogsHandler(d.Logs))
	}
	if d.Stream != nil {
		mux.Handle("/api/ws", StreamHandler(d.Stream))
	}
	mux.Handle("/api/about", AboutHandler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path != "/" && path.Dir(r.URL.Path) == "/api" {
			http.NotFound(w, r)
			return
		}
		var st location.State
		if d.State != nil {
			st = d.State.Snapshot()
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>papi-ng</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>papi-ng</h1>")
		_, _ = fmt.Fprintf(w, "<p>See <a href=\"/api/state\">/api/state</a> and <a href=\"/api/status\">/api/status</a>.</p>")
		_, _ = fmt.Fprintf(w, "<pre>phase=%s\nsource=%s\nstale=%t\npapi_position=%.3f\nlights=%.2f</pre>",
			st.Phase, st.Source, st.Stale, st.PAPIPosition, st.Lights,
		)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

func Serve(ctx context.Context, listenAddr string, d Deps) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Printf("web listening addr=%s", listenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

// decodeStrict reads one small JSON object with no unknown fields.
func decodeStrict(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if dec.More() {
		return errors.New("invalid json: trailing data")
	}
	return nil
}
