package equipment

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/plant-trainer/model"
)

var (
	// ErrInvalidTransition indicates the verb is not legal from the unit's current state.
	ErrInvalidTransition = fmt.Errorf("equipment: %w", model.ErrInvalidTransition)
	// ErrOutOfRange indicates a speed or setpoint outside the unit's configured bounds.
	ErrOutOfRange = fmt.Errorf("equipment: %w", model.ErrOutOfRange)
	// ErrUnknownEquipment indicates no unit matches the requested id or tag.
	ErrUnknownEquipment = fmt.Errorf("equipment: %w", model.ErrUnknownEntity)
	// ErrBackwashInProgress indicates a backwash was requested while one is running.
	ErrBackwashInProgress = fmt.Errorf("equipment: backwash already in progress: %w", model.ErrConflictingActivation)
	// ErrInvalidSpec indicates a plant definition failed validation.
	ErrInvalidSpec = errors.New("equipment: invalid spec")
)
