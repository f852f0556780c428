package space

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/atelier-backend/internal/clients/gcp"
	"github.com/yungbote/atelier-backend/internal/data/repos"
	"github.com/yungbote/atelier-backend/internal/db"
	"github.com/yungbote/atelier-backend/internal/platform/apierr"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/services"
	"github.com/yungbote/atelier-backend/internal/types"
)

// Actor is the resolved identity a mutation runs as. Websocket commands
// carry the connection's immutable identity; internal HTTP calls run as a
// trusted service actor.
type Actor struct {
	UserID uuid.UUID
	Role   types.Role
}

type emitFunc func(msg realtime.ServerMessage)

// Coordinator owns the authoritative mutable state of one space: its
// embedded store, its in-memory presence map and the fanout of committed
// mutations to every live connection. All mutations, client commands and
// job-completion callbacks alike, serialize through the coordinator mutex,
// so no two read-modify-write sequences against one space ever interleave.
type Coordinator struct {
	SpaceID uuid.UUID

	log   *logger.Logger
	store *db.SpaceStore
	hub   *realtime.Hub

	assets        repos.AssetRepo
	variants      repos.VariantRepo
	lineage       repos.LineageRepo
	chat          repos.ChatRepo
	tileSets      repos.TileSetRepo
	tilePositions repos.TilePositionRepo

	refs       *services.RefcountService
	blobs      gcp.BlobStore
	dispatcher services.GenerationDispatcher

	mu       sync.Mutex
	presence map[uuid.UUID]*types.PresenceEntry
	now      func() time.Time

	// pendingDispatches collects generation requests queued during the
	// current mutation; they go to the executor only after commit, so a
	// rolled-back transaction never leaks a job.
	pendingDispatches []services.GenerationRequest
}

func NewCoordinator(
	spaceID uuid.UUID,
	store *db.SpaceStore,
	hub *realtime.Hub,
	refs *services.RefcountService,
	blobs gcp.BlobStore,
	dispatcher services.GenerationDispatcher,
	baseLog *logger.Logger,
) *Coordinator {
	log := baseLog.With("component", "Coordinator", "space_id", spaceID.String())
	gdb := store.DB()
	return &Coordinator{
		SpaceID:       spaceID,
		log:           log,
		store:         store,
		hub:           hub,
		assets:        repos.NewAssetRepo(gdb, log),
		variants:      repos.NewVariantRepo(gdb, log),
		lineage:       repos.NewLineageRepo(gdb, log),
		chat:          repos.NewChatRepo(gdb, log),
		tileSets:      repos.NewTileSetRepo(gdb, log),
		tilePositions: repos.NewTilePositionRepo(gdb, log),
		refs:          refs,
		blobs:         blobs,
		dispatcher:    dispatcher,
		presence:      make(map[uuid.UUID]*types.PresenceEntry),
		now:           time.Now,
	}
}

// apply runs one mutation under the single-writer lock: the callback does
// all of its reads and writes inside one store transaction and queues
// broadcast events; events are fanned out after commit, still under the
// lock, so per-connection delivery order equals commit order. A failed
// transaction broadcasts nothing.
func (c *Coordinator) apply(ctx context.Context, fn func(dbc dbctx.Context, emit emitFunc) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(ctx, fn)
}

func (c *Coordinator) applyLocked(ctx context.Context, fn func(dbc dbctx.Context, emit emitFunc) error) error {
	var events []realtime.ServerMessage
	emit := func(msg realtime.ServerMessage) { events = append(events, msg) }

	err := c.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx}, emit)
	})
	if err != nil {
		c.pendingDispatches = nil
		return err
	}
	for _, msg := range events {
		c.hub.Broadcast(c.SpaceID, msg)
	}

	dispatches := c.pendingDispatches
	c.pendingDispatches = nil
	for _, req := range dispatches {
		if err := c.dispatcher.Dispatch(ctx, req); err != nil {
			c.log.Error("Generation dispatch failed", "job_id", req.JobID, "error", err)
			c.recordDispatchFailureLocked(ctx, req, err)
		}
	}
	return nil
}

// queueDispatch schedules a generation request for after the commit of the
// mutation currently holding the lock.
func (c *Coordinator) queueDispatch(req services.GenerationRequest) {
	c.pendingDispatches = append(c.pendingDispatches, req)
}

// read runs a snapshot read outside any transaction.
func (c *Coordinator) read(ctx context.Context) dbctx.Context {
	return dbctx.Context{Ctx: ctx}
}

func requireRole(actor Actor, min types.Role) error {
	if !actor.Role.AtLeast(min) {
		return apierr.PermissionDenied("operation requires at least %s role", min)
	}
	return nil
}

func (c *Coordinator) touch(t *time.Time) {
	*t = c.now().UTC()
}

// Close releases the space store. The manager calls this on shutdown.
func (c *Coordinator) Close() error {
	return c.store.Close()
}
