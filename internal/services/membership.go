package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/types"
)

// MembershipResolver answers "what is this user's role in this space". The
// membership store is external; a user without a row has no access at all.
type MembershipResolver interface {
	ResolveRole(ctx context.Context, spaceID, userID uuid.UUID) (types.Role, bool, error)
}

type httpMembershipResolver struct {
	log     *logger.Logger
	baseURL string
	client  *http.Client
}

func NewHTTPMembershipResolver(log *logger.Logger, baseURL string) (MembershipResolver, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing membership store URL")
	}
	return &httpMembershipResolver{
		log:     log.With("service", "MembershipResolver"),
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (r *httpMembershipResolver) ResolveRole(ctx context.Context, spaceID, userID uuid.UUID) (types.Role, bool, error) {
	url := fmt.Sprintf("%s/spaces/%s/members/%s", r.baseURL, spaceID, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("membership lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("membership lookup: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Role types.Role `json:"role"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false, fmt.Errorf("membership lookup: decode: %w", err)
	}
	if !body.Role.Valid() {
		return "", false, fmt.Errorf("membership lookup: unknown role %q", body.Role)
	}
	return body.Role, true, nil
}
