package space

import (
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/clients/gcp"
	"github.com/yungbote/atelier-backend/internal/data/repos"
	"github.com/yungbote/atelier-backend/internal/db"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/services"
)

// Manager owns one coordinator per space, opened lazily on first touch.
// Each coordinator keeps its own embedded store file, so spaces never
// contend with each other on the database level either.
type Manager struct {
	log        *logger.Logger
	dataDir    string
	hub        *realtime.Hub
	blobs      gcp.BlobStore
	dispatcher services.GenerationDispatcher

	mu           sync.Mutex
	coordinators map[uuid.UUID]*Coordinator
}

func NewManager(dataDir string, hub *realtime.Hub, blobs gcp.BlobStore, dispatcher services.GenerationDispatcher, log *logger.Logger) *Manager {
	return &Manager{
		log:          log.With("component", "SpaceManager"),
		dataDir:      dataDir,
		hub:          hub,
		blobs:        blobs,
		dispatcher:   dispatcher,
		coordinators: make(map[uuid.UUID]*Coordinator),
	}
}

// Get returns the coordinator for a space, opening its store on first use.
func (m *Manager) Get(spaceID uuid.UUID) (*Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if coord, ok := m.coordinators[spaceID]; ok {
		return coord, nil
	}

	store, err := db.OpenSpaceStore(m.dataDir, spaceID, m.log)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}

	refs := services.NewRefcountService(m.log, repos.NewImageRefRepo(store.DB(), m.log), m.blobs)
	coord := NewCoordinator(spaceID, store, m.hub, refs, m.blobs, m.dispatcher, m.log)
	m.coordinators[spaceID] = coord
	m.log.Info("Space coordinator opened", "space_id", spaceID.String())
	return coord, nil
}

// Close shuts every open coordinator down. Called once on server shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for spaceID, coord := range m.coordinators {
		if err := coord.Close(); err != nil {
			m.log.Warn("Space store close failed", "space_id", spaceID.String(), "error", err)
		}
		delete(m.coordinators, spaceID)
	}
}
