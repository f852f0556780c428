package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerationRequest is the job handed to the external executor. JobID is
// minted by the coordinator; the executor reports the outcome back through
// the internal HTTP surface keyed by that id, possibly more than once.
type GenerationRequest struct {
	JobID       string     `json:"job_id"`
	SpaceID     uuid.UUID  `json:"space_id"`
	AssetID     uuid.UUID  `json:"asset_id"`
	VariantID   uuid.UUID  `json:"variant_id"`
	TileSetID   *uuid.UUID `json:"tile_set_id,omitempty"`
	GridX       *int       `json:"grid_x,omitempty"`
	GridY       *int       `json:"grid_y,omitempty"`
	Kind        string     `json:"kind"` // cell | grid | refine
	TileType    string     `json:"tile_type,omitempty"`
	Prompt      string     `json:"prompt,omitempty"`
	AspectRatio string     `json:"aspect_ratio,omitempty"`
	GridWidth   int        `json:"grid_width,omitempty"`
	GridHeight  int        `json:"grid_height,omitempty"`
	// NeighborImageKeys condition the generator on already-completed
	// axis-neighbor cells, collected fresh at dispatch time.
	NeighborImageKeys []string `json:"neighbor_image_keys,omitempty"`
	SeedImageKey      string   `json:"seed_image_key,omitempty"`
}

// GenerationDispatcher enqueues a request with the external job executor.
// Dispatch is fire-and-forget: completion arrives asynchronously as a
// callback.
type GenerationDispatcher interface {
	Dispatch(ctx context.Context, req GenerationRequest) error
}

type httpDispatcher struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDispatcher(baseURL string) (GenerationDispatcher, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing generator URL")
	}
	return &httpDispatcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (d *httpDispatcher) Dispatch(ctx context.Context, req GenerationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("dispatch generation job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("dispatch generation job: unexpected status %d", resp.StatusCode)
	}
	return nil
}
