package requestdata

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/types"
)

type requestDataKey struct{}

// RequestData is the resolved identity for one request or one live
// connection. For websocket sessions it is attached once at upgrade time
// and never re-derived per message.
type RequestData struct {
	UserID  uuid.UUID
	SpaceID uuid.UUID
	Role    types.Role
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}
