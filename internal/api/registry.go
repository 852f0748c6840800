package api

import (
	"sync"

	"github.com/joris-gentinetta/vizarr/internal/service"
)

// PlateSource records where a registered plate came from.
type PlateSource string

const (
	SourceConfig  PlateSource = "config"
	SourceCatalog PlateSource = "catalog"
	SourceDemo    PlateSource = "demo"
)

// PlateInfo contains information about a plate for the API response.
type PlateInfo struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Source  PlateSource `json:"source"`
	Rows    int         `json:"rows"`
	Columns int         `json:"columns"`
	Level   int         `json:"level"`
}

type plateEntry struct {
	title  string
	source PlateSource
	svc    *service.GridService
}

// PlateRegistry holds grid services for all registered plates. Plates can be
// added while serving, so access is synchronized.
type PlateRegistry struct {
	mu           sync.RWMutex
	plates       map[string]plateEntry
	defaultPlate string
	order        []string
	title        string
}

// NewPlateRegistry creates a new plate registry.
func NewPlateRegistry(title string) *PlateRegistry {
	return &PlateRegistry{
		plates: make(map[string]plateEntry),
		title:  title,
	}
}

// Register adds or replaces the grid service for a plate. The first plate
// registered becomes the default.
func (r *PlateRegistry) Register(plateID, title string, source PlateSource, svc *service.GridService) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plates[plateID]; !ok {
		r.order = append(r.order, plateID)
	}
	if title == "" {
		title = plateID
	}
	r.plates[plateID] = plateEntry{title: title, source: source, svc: svc}
	if r.defaultPlate == "" {
		r.defaultPlate = plateID
	}
}

// Unregister removes a plate and reports whether it was registered. Removing
// the default plate promotes the next plate in registration order.
func (r *PlateRegistry) Unregister(plateID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plates[plateID]; !ok {
		return false
	}
	delete(r.plates, plateID)
	for i, id := range r.order {
		if id == plateID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.defaultPlate == plateID {
		r.defaultPlate = ""
		if len(r.order) > 0 {
			r.defaultPlate = r.order[0]
		}
	}
	return true
}

// Has reports whether a plate is registered.
func (r *PlateRegistry) Has(plateID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.plates[plateID]
	return ok
}

// Get returns the grid service for a plate, or nil if not found.
func (r *PlateRegistry) Get(plateID string) *service.GridService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plates[plateID].svc
}

// Source returns where a plate came from, or "" if it is not registered.
func (r *PlateRegistry) Source(plateID string) PlateSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plates[plateID].source
}

// Info returns plate info for one plate.
func (r *PlateRegistry) Info(plateID string) (PlateInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.plates[plateID]
	if !ok {
		return PlateInfo{}, false
	}
	return e.info(plateID), true
}

// DefaultPlateID returns the default plate ID.
func (r *PlateRegistry) DefaultPlateID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultPlate
}

// PlateIDs returns all plate IDs in registration order.
func (r *PlateRegistry) PlateIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Title returns the configured site title.
func (r *PlateRegistry) Title() string {
	if r.title != "" {
		return r.title
	}
	return "Plate Grid"
}

// Plates returns plate info for all registered plates.
func (r *PlateRegistry) Plates() []PlateInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]PlateInfo, 0, len(r.order))
	for _, id := range r.order {
		infos = append(infos, r.plates[id].info(id))
	}
	return infos
}

func (e plateEntry) info(id string) PlateInfo {
	opts := e.svc.Options()
	return PlateInfo{
		ID:      id,
		Title:   e.title,
		Source:  e.source,
		Rows:    opts.Rows,
		Columns: opts.Columns,
		Level:   e.svc.ActiveLevel(),
	}
}
