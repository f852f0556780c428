package space

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/yungbote/atelier-backend/internal/platform/apierr"
	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/types"
)

func command(t *testing.T, cmdType string, payload interface{}) realtime.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return realtime.Message{Type: cmdType, Payload: raw}
}

func takeErrors(t *testing.T, client *realtime.Client) []realtime.ErrorPayload {
	t.Helper()
	var out []realtime.ErrorPayload
	for _, msg := range drain(t, client) {
		if msg.Type != realtime.EventError {
			continue
		}
		raw, _ := json.Marshal(msg.Payload)
		var ep realtime.ErrorPayload
		if err := json.Unmarshal(raw, &ep); err != nil {
			t.Fatalf("decode error payload: %v", err)
		}
		out = append(out, ep)
	}
	return out
}

func TestCommandTableIsExhaustive(t *testing.T) {
	want := []string{
		CmdSyncRequest,
		CmdAssetCreate, CmdAssetUpdate, CmdAssetDelete, CmdAssetSetActive, CmdAssetSpawn,
		CmdVariantDelete, CmdVariantStar,
		CmdLineageSever,
		CmdPresenceUpdate,
		CmdChatSend,
		CmdTileSetRequest, CmdTileSetRetry, CmdTileSetCancel, CmdTileRefineEdges, CmdTileRefineSingle,
	}
	if len(commandTable) != len(want) {
		t.Fatalf("command table size: want=%d got=%d", len(want), len(commandTable))
	}
	for _, name := range want {
		if _, ok := commandTable[name]; !ok {
			t.Fatalf("command %q missing from table", name)
		}
	}
}

func TestUnknownCommandErrorsToSenderOnly(t *testing.T) {
	e := newTestEnv(t)
	sender := e.join(types.RoleEditor)
	other := e.join(types.RoleViewer)

	e.coord.HandleCommand(sender, realtime.Message{Type: "asset:explode"})

	errs := takeErrors(t, sender)
	if len(errs) != 1 || errs[0].Code != apierr.CodeValidation {
		t.Fatalf("sender errors: want one VALIDATION, got %+v", errs)
	}
	if msgs := drain(t, other); len(msgs) != 0 {
		t.Fatalf("other client must not see the error, got %v", eventTypes(msgs))
	}
}

func TestCommandCreatesAssetAndBroadcasts(t *testing.T) {
	e := newTestEnv(t)
	sender := e.join(types.RoleEditor)
	other := e.join(types.RoleViewer)

	e.coord.HandleCommand(sender, command(t, CmdAssetCreate, CreateAssetInput{
		Name: "hero", AssetType: "concept",
	}))

	for _, client := range []*realtime.Client{sender, other} {
		msgs := drain(t, client)
		if len(msgs) != 1 || msgs[0].Type != realtime.EventAssetCreated {
			t.Fatalf("want asset:created for both clients, got %v", eventTypes(msgs))
		}
	}
}

func TestCommandPermissionErrorToSenderOnly(t *testing.T) {
	e := newTestEnv(t)
	viewer := e.join(types.RoleViewer)
	other := e.join(types.RoleEditor)

	e.coord.HandleCommand(viewer, command(t, CmdAssetCreate, CreateAssetInput{
		Name: "hero", AssetType: "concept",
	}))

	errs := takeErrors(t, viewer)
	if len(errs) != 1 || errs[0].Code != apierr.CodePermissionDenied {
		t.Fatalf("want PERMISSION_DENIED, got %+v", errs)
	}
	if msgs := drain(t, other); len(msgs) != 0 {
		t.Fatalf("no broadcast expected, got %v", eventTypes(msgs))
	}
}

func TestSyncRequestGoesToSenderOnly(t *testing.T) {
	e := newTestEnv(t)
	editor := e.editor()
	mustCreateAsset(t, e, editor, "a", nil)
	mustCreateAsset(t, e, editor, "b", nil)

	sender := e.join(types.RoleViewer)
	other := e.join(types.RoleViewer)

	e.coord.HandleCommand(sender, realtime.Message{Type: CmdSyncRequest})

	msgs := drain(t, sender)
	if len(msgs) != 1 || msgs[0].Type != realtime.EventSyncState {
		t.Fatalf("want one sync:state, got %v", eventTypes(msgs))
	}
	raw, _ := json.Marshal(msgs[0].Payload)
	var snap StateSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Assets) != 2 {
		t.Fatalf("snapshot assets: want=2 got=%d", len(snap.Assets))
	}
	if msgs := drain(t, other); len(msgs) != 0 {
		t.Fatalf("snapshot must not broadcast, got %v", eventTypes(msgs))
	}
}

func TestMalformedPayloadRejected(t *testing.T) {
	e := newTestEnv(t)
	sender := e.join(types.RoleEditor)

	e.coord.HandleCommand(sender, realtime.Message{
		Type:    CmdAssetDelete,
		Payload: json.RawMessage(`{"asset_id": "not-a-uuid"}`),
	})

	errs := takeErrors(t, sender)
	if len(errs) != 1 || errs[0].Code != apierr.CodeValidation {
		t.Fatalf("want VALIDATION, got %+v", errs)
	}
}

func TestChatCommandBroadcastsInOrder(t *testing.T) {
	e := newTestEnv(t)
	sender := e.join(types.RoleEditor)

	for i := 0; i < 5; i++ {
		e.coord.HandleCommand(sender, command(t, CmdChatSend, map[string]string{
			"content": fmt.Sprintf("message %d", i),
		}))
	}

	msgs := drain(t, sender)
	if len(msgs) != 5 {
		t.Fatalf("frames: want=5 got=%d", len(msgs))
	}
	for i, msg := range msgs {
		if msg.Type != realtime.EventChatMessage {
			t.Fatalf("frame %d: want chat:message got %s", i, msg.Type)
		}
		var payload struct {
			Message types.ChatMessage `json:"message"`
		}
		raw, _ := json.Marshal(msg.Payload)
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if want := fmt.Sprintf("message %d", i); payload.Message.Content != want {
			t.Fatalf("frame %d: want=%q got=%q", i, want, payload.Message.Content)
		}
	}
}

func TestVariantStarCommand(t *testing.T) {
	e := newTestEnv(t)
	editor := e.editor()
	asset := mustCreateAsset(t, e, editor, "hero", nil)
	variant := mustApplyJob(t, e, "job-star", asset.ID, "blobs/star.png")

	sender := e.join(types.RoleEditor)
	e.coord.HandleCommand(sender, command(t, CmdVariantStar, map[string]interface{}{
		"variant_id": variant.ID,
		"starred":    true,
	}))

	msgs := drain(t, sender)
	if len(msgs) != 1 || msgs[0].Type != realtime.EventVariantUpdated {
		t.Fatalf("want variant:updated, got %v", eventTypes(msgs))
	}
	got, err := e.coord.variants.GetByID(e.coord.read(context.Background()), variant.ID)
	if err != nil || got == nil {
		t.Fatalf("variant lookup: %v", err)
	}
	if !got.Starred {
		t.Fatalf("variant should be starred")
	}
}
