package handlers

import (
	"fmt"

	"github.com/CrowderSoup/retro-board/database"
	"github.com/CrowderSoup/retro-board/services"
)

// StepHooks move the whole room between retro steps. The local step changes
// only when set-step-success comes back, so every participant switches on the
// same event.
type StepHooks struct {
	room Room
}

func NewStepHooks(room Room) *StepHooks {
	return &StepHooks{room: room}
}

func (h *StepHooks) SetStep(step int) error {
	if step < database.MinStep || step > database.MaxStep {
		return fmt.Errorf("step %d out of range %d..%d", step, database.MinStep, database.MaxStep)
	}
	id := h.room.SessionID()
	if id == "" {
		return ErrNoSession
	}
	return h.room.Emit(services.EventSetStep, StepPayload{RetroSessionID: id, Step: step})
}

func (h *StepHooks) CreateKeyInsights(insights []string) error {
	id := h.room.SessionID()
	if id == "" {
		return ErrNoSession
	}
	return h.room.Emit(EventCreateKeyInsights, KeyInsightsPayload{RetroSessionID: id, Insights: insights})
}

func (h *StepHooks) CreateRadarCriteria(criteria []RadarCriterion) error {
	id := h.room.SessionID()
	if id == "" {
		return ErrNoSession
	}
	return h.room.Emit(EventCreateRadar, RadarCriteriaPayload{RetroSessionID: id, Criteria: criteria})
}
