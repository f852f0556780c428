package space

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/atelier-backend/internal/platform/apierr"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/realtime"
	"github.com/yungbote/atelier-backend/internal/types"
)

// SendChat appends to the space's chat log. Bot messages arrive over the
// internal surface with senderType "bot"; everything else is a user message
// from the connection's identity.
func (c *Coordinator) SendChat(ctx context.Context, actor Actor, senderType, content string, metadata datatypes.JSON) (*types.ChatMessage, error) {
	if err := requireRole(actor, types.RoleEditor); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apierr.Validation("chat content is required")
	}
	if senderType != types.SenderTypeUser && senderType != types.SenderTypeBot {
		return nil, apierr.Validation("unknown sender type %q", senderType)
	}

	msg := &types.ChatMessage{
		ID:         uuid.New(),
		SenderType: senderType,
		SenderID:   actor.UserID,
		Content:    content,
		Metadata:   metadata,
		CreatedAt:  c.now().UTC(),
	}

	err := c.apply(ctx, func(dbc dbctx.Context, emit emitFunc) error {
		if _, err := c.chat.Create(dbc, []*types.ChatMessage{msg}); err != nil {
			return apierr.Internal(err)
		}
		emit(realtime.ServerMessage{Type: realtime.EventChatMessage, Payload: map[string]interface{}{"message": msg}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *Coordinator) ChatHistory(ctx context.Context, actor Actor, limit int, before *time.Time) ([]*types.ChatMessage, error) {
	if err := requireRole(actor, types.RoleViewer); err != nil {
		return nil, err
	}
	messages, err := c.chat.List(c.read(ctx), limit, before)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return messages, nil
}
