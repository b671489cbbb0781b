package handlers

import (
	"context"
	"fmt"

	"github.com/CrowderSoup/retro-board/database"
	"github.com/CrowderSoup/retro-board/services"
	"github.com/CrowderSoup/retro-board/store"
)

// ActionItemHooks persist through the API first, then mirror the result to the
// local store and the room.
type ActionItemHooks struct {
	retro *store.RetroStore
	api   *services.Client
	room  Room
}

func NewActionItemHooks(retro *store.RetroStore, api *services.Client, room Room) *ActionItemHooks {
	return &ActionItemHooks{retro: retro, api: api, room: room}
}

func (h *ActionItemHooks) Create(ctx context.Context, item database.ActionItem) (database.ActionItem, error) {
	item.RetroSessionID = h.room.SessionID()
	if item.RetroSessionID == "" {
		return item, ErrNoSession
	}
	created, err := h.api.CreateActionItem(ctx, item)
	if err != nil {
		return item, fmt.Errorf("create action item: %w", err)
	}
	h.retro.AddActionItem(created)
	return created, h.room.Emit(EventAddActionItem, created)
}

func (h *ActionItemHooks) Edit(ctx context.Context, item database.ActionItem) (database.ActionItem, error) {
	updated, err := h.api.UpdateActionItem(ctx, item)
	if err != nil {
		return item, fmt.Errorf("update action item %s: %w", item.ID, err)
	}
	if updated.ID == "" {
		updated = item
	}
	if !h.retro.EditActionItem(updated) {
		h.retro.AddActionItem(updated)
	}
	return updated, h.room.Emit(EventEditActionItem, updated)
}

func (h *ActionItemHooks) Delete(ctx context.Context, id string) error {
	if err := h.api.DeleteActionItem(ctx, id); err != nil {
		return fmt.Errorf("delete action item %s: %w", id, err)
	}
	h.retro.DeleteActionItem(id)
	return h.room.Emit(EventDeleteActionItem, Ref{ID: id})
}
