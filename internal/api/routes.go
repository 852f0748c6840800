// Package api provides HTTP handlers for the plate grid server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/joris-gentinetta/vizarr/internal/catalog"
	"github.com/joris-gentinetta/vizarr/internal/geometry"
	"github.com/joris-gentinetta/vizarr/internal/loader"
	"github.com/joris-gentinetta/vizarr/internal/render"
	"github.com/joris-gentinetta/vizarr/internal/service"
)

// PlateCatalog is the persisted record of imported plates.
type PlateCatalog interface {
	GetPlate(id string) (*catalog.Plate, error)
	DeletePlate(id string) error
}

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry      *PlateRegistry
	Catalog       PlateCatalog
	CORSOrigins   []string
	ImportManager *ImportManager
	Renderer      *render.PreviewRenderer
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// CacheStats reports shared cache usage on /api/stats.
	CacheStats func() map[string]interface{}
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Get("/api/stats", statsHandler(cfg))

	r.Route("/api/plates", func(r chi.Router) {
		r.Get("/", platesHandler(cfg.Registry))
		r.Get("/{plate}", plateHandler(cfg))
		r.Delete("/{plate}", deletePlateHandler(cfg))
	})

	r.Route("/api/imports", func(r chi.Router) {
		r.Post("/", importSubmitHandler(cfg.ImportManager))
		r.Get("/{job_id}", importStatusHandler(cfg.ImportManager))
	})

	// Plate-scoped routes: /p/{plate}/...
	r.Route("/p/{plate}", func(r chi.Router) {
		r.Use(plateMiddleware(cfg.Registry))

		r.Get("/preview.png", previewHandler(cfg.Renderer))

		r.Route("/api", func(r chi.Router) {
			r.Get("/view", viewHandler)
			r.Post("/view", viewportHandler)
			r.Get("/context", contextHandler)
			r.Get("/pick", pickHandler)
			r.Post("/scrub", scrubHandler)
			r.Get("/selections", selectionsHandler)
			r.Put("/selections", setSelectionsHandler)
		})
	})

	return r
}

// Context key for the grid service
type ctxKey string

const gridServiceKey ctxKey = "gridService"

// plateMiddleware resolves the plate from URL and injects the grid service into context.
func plateMiddleware(registry *PlateRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plateID := chi.URLParam(r, "plate")
			svc := registry.Get(plateID)
			if svc == nil {
				http.Error(w, "plate not found: "+plateID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), gridServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getGridService(r *http.Request) *service.GridService {
	if svc, ok := r.Context().Value(gridServiceKey).(*service.GridService); ok {
		return svc
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// platesHandler returns the list of registered plates.
func platesHandler(registry *PlateRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"default": registry.DefaultPlateID(),
			"plates":  registry.Plates(),
			"title":   registry.Title(),
		})
	}
}

// plateHandler returns the registered view of a plate and its catalog record,
// whichever exist.
func plateHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plateID := chi.URLParam(r, "plate")
		resp := map[string]interface{}{}
		if info, ok := cfg.Registry.Info(plateID); ok {
			resp["plate"] = info
		}
		if cfg.Catalog != nil {
			rec, err := cfg.Catalog.GetPlate(plateID)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if rec != nil {
				resp["catalog"] = rec
			}
		}
		if len(resp) == 0 {
			http.Error(w, "plate not found: "+plateID, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// deletePlateHandler removes an imported plate from the catalog and stops
// serving it. Configured and demo plates cannot be deleted.
func deletePlateHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plateID := chi.URLParam(r, "plate")
		source := cfg.Registry.Source(plateID)
		if source != "" && source != SourceCatalog {
			http.Error(w, "plate "+plateID+" comes from "+string(source)+" and cannot be deleted", http.StatusConflict)
			return
		}
		if cfg.Catalog == nil {
			http.Error(w, "catalog not configured", http.StatusNotImplemented)
			return
		}

		rec, err := cfg.Catalog.GetPlate(plateID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if rec == nil && source == "" {
			http.Error(w, "plate not found: "+plateID, http.StatusNotFound)
			return
		}
		if rec != nil {
			if err := cfg.Catalog.DeletePlate(plateID); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		cfg.Registry.Unregister(plateID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func statsHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"plates": len(cfg.Registry.PlateIDs()),
		}
		if cfg.CacheStats != nil {
			resp["cache"] = cfg.CacheStats()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// viewResponse is the committed view plus the outcome of the refresh that
// produced it. Transient load failures leave the previous cells in place and
// are reported in Error.
type viewResponse struct {
	service.View
	Error string `json:"error,omitempty"`
}

// refreshOutcome writes the view after a refresh. Invariant violations are
// server errors; anything else is reported next to the unchanged view.
func refreshOutcome(w http.ResponseWriter, svc *service.GridService, err error) {
	if err != nil && errors.Is(err, loader.ErrInvariant) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := viewResponse{View: svc.View()}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func viewHandler(w http.ResponseWriter, r *http.Request) {
	svc := getGridService(r)
	if svc == nil {
		http.Error(w, "grid service not found", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{View: svc.View()})
}

func viewportHandler(w http.ResponseWriter, r *http.Request) {
	svc := getGridService(r)
	if svc == nil {
		http.Error(w, "grid service not found", http.StatusInternalServerError)
		return
	}

	var vp geometry.OrthographicViewport
	if err := json.NewDecoder(r.Body).Decode(&vp); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if vp.ScreenWidth <= 0 || vp.ScreenHeight <= 0 {
		http.Error(w, "width and height must be positive", http.StatusBadRequest)
		return
	}

	err := svc.UpdateViewport(r.Context(), vp)
	refreshOutcome(w, svc, err)
}

func contextHandler(w http.ResponseWriter, r *http.Request) {
	svc := getGridService(r)
	if svc == nil {
		http.Error(w, "grid service not found", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, svc.Context())
}

func pickHandler(w http.ResponseWriter, r *http.Request) {
	svc := getGridService(r)
	if svc == nil {
		http.Error(w, "grid service not found", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	sx, errX := strconv.ParseFloat(q.Get("sx"), 64)
	sy, errY := strconv.ParseFloat(q.Get("sy"), 64)
	if errX != nil || errY != nil {
		http.Error(w, "sx and sy must be numbers", http.StatusBadRequest)
		return
	}

	info, ok := svc.Pick(geometry.Point{X: sx, Y: sy})
	if !ok {
		http.Error(w, "nothing under cursor", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type scrubRequest struct {
	Axis  string `json:"axis"`
	Delta int    `json:"delta"`
}

func scrubHandler(w http.ResponseWriter, r *http.Request) {
	svc := getGridService(r)
	if svc == nil {
		http.Error(w, "grid service not found", http.StatusInternalServerError)
		return
	}

	var req scrubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Axis = strings.TrimSpace(req.Axis)
	if req.Axis == "" {
		http.Error(w, "axis is required", http.StatusBadRequest)
		return
	}

	_, err := svc.Scrub(r.Context(), req.Axis, req.Delta)
	if errors.Is(err, service.ErrUnknownAxis) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	refreshOutcome(w, svc, err)
}

func selectionsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getGridService(r)
	if svc == nil {
		http.Error(w, "grid service not found", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"selections": svc.Selections(),
	})
}

type selectionsRequest struct {
	Selections [][]int `json:"selections"`
}

func setSelectionsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getGridService(r)
	if svc == nil {
		http.Error(w, "grid service not found", http.StatusInternalServerError)
		return
	}

	var req selectionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := svc.SetSelections(r.Context(), req.Selections)
	if errors.Is(err, service.ErrInvalidSelection) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	refreshOutcome(w, svc, err)
}

// previewHandler draws the committed view as a PNG.
func previewHandler(renderer *render.PreviewRenderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if renderer == nil {
			http.Error(w, "preview not configured", http.StatusNotImplemented)
			return
		}
		svc := getGridService(r)
		if svc == nil {
			http.Error(w, "grid service not found", http.StatusInternalServerError)
			return
		}

		png, err := renderer.RenderView(svc.View(), svc.Extent(), svc.MaxLevel())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(png)
	}
}

type importSubmitRequest struct {
	ZarrPath string `json:"zarr_path"`
	PlateID  string `json:"plate_id"`
}

func importSubmitHandler(im *ImportManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if im == nil {
			http.Error(w, "imports not configured", http.StatusNotImplemented)
			return
		}

		var req importSubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		req.ZarrPath = strings.TrimSpace(req.ZarrPath)
		if req.ZarrPath == "" {
			http.Error(w, "zarr_path is required", http.StatusBadRequest)
			return
		}

		job, err := im.Submit(req.ZarrPath, strings.TrimSpace(req.PlateID))
		if err != nil {
			if errors.Is(err, ErrQueueFull) {
				http.Error(w, err.Error(), http.StatusTooManyRequests)
				return
			}
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	}
}

func importStatusHandler(im *ImportManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if im == nil {
			http.Error(w, "imports not configured", http.StatusNotImplemented)
			return
		}
		jobID := chi.URLParam(r, "job_id")
		job, ok := im.Get(jobID)
		if !ok {
			http.Error(w, "import not found: "+jobID, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}
