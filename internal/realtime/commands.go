package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"token-aggregator/internal/domain"
)

// Client command types.
const (
	CommandJoinToken            = "join-token"
	CommandLeaveToken           = "leave-token"
	CommandJoinFilterGroup      = "join-filter-group"
	CommandLeaveAllFilterGroups = "leave-all-filter-groups"
)

// Command is a message sent by a client.
type Command struct {
	Type    string                `json:"type"`
	ID      string                `json:"id,omitempty"`
	Address string                `json:"address,omitempty"`
	Filter  *domain.FilterRequest `json:"filter,omitempty"`
}

func (h *Hub) dispatch(ctx context.Context, id string, data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.reject(id, "", "malformed command")
		return
	}
	if h.handler == nil {
		h.reject(id, cmd.ID, "not ready")
		return
	}

	switch cmd.Type {
	case CommandJoinToken:
		h.handler.JoinToken(id, cmd.Address, cmd.ID)
	case CommandLeaveToken:
		h.handler.LeaveToken(id, cmd.Address, cmd.ID)
	case CommandJoinFilterGroup:
		var req domain.FilterRequest
		if cmd.Filter != nil {
			req = *cmd.Filter
		}
		h.handler.JoinFilterGroup(ctx, id, req, cmd.ID)
	case CommandLeaveAllFilterGroups:
		h.handler.LeaveAllFilterGroups(id, cmd.ID)
	default:
		h.reject(id, cmd.ID, fmt.Sprintf("unknown command %q", cmd.Type))
	}
}

func (h *Hub) reject(id, ackID, reason string) {
	_ = h.Send(id, domain.Event{Name: domain.EventError, Data: domain.Ack{ID: ackID, OK: false, Error: reason}})
}
