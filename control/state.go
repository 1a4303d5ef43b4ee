package control

import (
	"errors"
	"fmt"

	"carelink/models"
)

var (
	// ErrInvalidTransition só aparece se alguém pedir uma ação fora de pause/resume.
	ErrInvalidTransition = errors.New("invalid control transition")
	ErrInvalidReason     = errors.New("invalid pause reason")
)

type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
)

// Next é a máquina de estados ACTIVE <-> PAUSED. Pause e resume valem em qualquer estado
// (repetir a ação é no-op), então só uma ação desconhecida falha.
func Next(state string, action Action) (string, error) {
	switch state {
	case models.CONTROL_STATE_ACTIVE, models.CONTROL_STATE_PAUSED:
	default:
		return "", fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, state)
	}

	switch action {
	case ActionPause:
		return models.CONTROL_STATE_PAUSED, nil
	case ActionResume:
		return models.CONTROL_STATE_ACTIVE, nil
	}
	return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, state)
}

// ShouldBotRespond: sem registro ou não pausado = bot responde.
func ShouldBotRespond(c *models.ConversationControl) bool {
	return c == nil || !c.BotPaused
}
