package space

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/platform/apierr"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/types"
)

// AddLineageEdge records provenance between two live variants. The lineage
// graph tolerates cycles (it is history, not a dependency order), so no
// cycle check happens here.
func (c *Coordinator) AddLineageEdge(ctx context.Context, actor Actor, parentVariantID, childVariantID uuid.UUID, relationType string) (*types.Lineage, error) {
	if err := requireRole(actor, types.RoleEditor); err != nil {
		return nil, err
	}
	if !types.ValidRelationType(relationType) {
		return nil, apierr.Validation("unknown relation type %q", relationType)
	}

	var edge *types.Lineage
	err := c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		for _, id := range []uuid.UUID{parentVariantID, childVariantID} {
			v, err := c.variants.GetByID(dbc, id)
			if err != nil {
				return apierr.Internal(err)
			}
			if v == nil {
				return apierr.NotFound("variant %s not found", id)
			}
		}
		edge = &types.Lineage{
			ID:              uuid.New(),
			ParentVariantID: parentVariantID,
			ChildVariantID:  childVariantID,
			RelationType:    relationType,
			CreatedAt:       c.now().UTC(),
		}
		if _, err := c.lineage.Create(dbc, []*types.Lineage{edge}); err != nil {
			return apierr.Internal(err)
		}
		emit(realtime.ServerMessage{Type: realtime.EventLineageCreated, Payload: map[string]interface{}{"lineage": edge}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// SeverLineage soft-deletes an edge. The row stays so provenance survives.
func (c *Coordinator) SeverLineage(ctx context.Context, actor Actor, lineageID uuid.UUID) (*types.Lineage, error) {
	if err := requireRole(actor, types.RoleEditor); err != nil {
		return nil, err
	}

	var edge *types.Lineage
	err := c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		found, err := c.lineage.GetByID(dbc, lineageID)
		if err != nil {
			return apierr.Internal(err)
		}
		if found == nil {
			return apierr.NotFound("lineage edge %s not found", lineageID)
		}
		found.Severed = true
		if err := c.lineage.Save(dbc, found); err != nil {
			return apierr.Internal(err)
		}
		edge = found
		emit(realtime.ServerMessage{Type: realtime.EventLineageSevered, Payload: map[string]interface{}{"lineage": edge}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// LineageGraph is the transitive closure around one variant, walked
// breadth-first over unsevered edges in both directions.
type LineageGraph struct {
	VariantIDs []uuid.UUID      `json:"variant_ids"`
	Edges      []*types.Lineage `json:"edges"`
}

func (c *Coordinator) DirectLineage(ctx context.Context, actor Actor, variantID uuid.UUID) ([]*types.Lineage, error) {
	if err := requireRole(actor, types.RoleViewer); err != nil {
		return nil, err
	}
	dbc := c.read(ctx)
	v, err := c.variants.GetByID(dbc, variantID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if v == nil {
		return nil, apierr.NotFound("variant %s not found", variantID)
	}
	edges, err := c.lineage.GetByVariantID(dbc, variantID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return edges, nil
}

func (c *Coordinator) TransitiveLineage(ctx context.Context, actor Actor, variantID uuid.UUID) (*LineageGraph, error) {
	if err := requireRole(actor, types.RoleViewer); err != nil {
		return nil, err
	}
	dbc := c.read(ctx)
	v, err := c.variants.GetByID(dbc, variantID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if v == nil {
		return nil, apierr.NotFound("variant %s not found", variantID)
	}

	graph := &LineageGraph{}
	seenVariant := map[uuid.UUID]bool{variantID: true}
	seenEdge := map[uuid.UUID]bool{}
	queue := []uuid.UUID{variantID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		graph.VariantIDs = append(graph.VariantIDs, current)

		edges, err := c.lineage.GetByVariantID(dbc, current)
		if err != nil {
			return nil, apierr.Internal(err)
		}
		for _, edge := range edges {
			if edge.Severed || seenEdge[edge.ID] {
				continue
			}
			seenEdge[edge.ID] = true
			graph.Edges = append(graph.Edges, edge)
			for _, next := range []uuid.UUID{edge.ParentVariantID, edge.ChildVariantID} {
				if !seenVariant[next] {
					seenVariant[next] = true
					queue = append(queue, next)
				}
			}
		}
	}
	return graph, nil
}
