package game

import (
	"errors"
	"fmt"

	"github.com/annel0/lerocia/internal/persistence"
	"github.com/annel0/lerocia/internal/protocol"
	"github.com/annel0/lerocia/internal/session"
	"github.com/annel0/lerocia/internal/world"
)

// ValidationError отказ по игровым правилам. Сообщается только инициатору.
type ValidationError struct {
	Command protocol.Command
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Reason)
}

func reject(cmd protocol.Command, format string, args ...interface{}) error {
	return &ValidationError{Command: cmd, Reason: fmt.Sprintf(format, args...)}
}

// ErrorClass категория ошибки обработки команды
type ErrorClass string

const (
	ClassOK          ErrorClass = "ok"
	ClassProtocol    ErrorClass = "protocol"
	ClassIntegrity   ErrorClass = "integrity"
	ClassValidation  ErrorClass = "validation"
	ClassPersistence ErrorClass = "persistence"
	ClassInternal    ErrorClass = "internal"
)

// Classify относит ошибку к одной из категорий
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassOK
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return ClassValidation
	}
	var perr *protocol.ParseError
	if errors.As(err, &perr) ||
		errors.Is(err, protocol.ErrUnknownCommand) ||
		errors.Is(err, protocol.ErrArgCount) ||
		errors.Is(err, protocol.ErrEmptyMessage) {
		return ClassProtocol
	}
	if errors.Is(err, world.ErrNotFound) ||
		errors.Is(err, world.ErrDuplicateID) ||
		errors.Is(err, world.ErrNotHeld) ||
		errors.Is(err, world.ErrUnknownItem) ||
		errors.Is(err, session.ErrUnknownConn) {
		return ClassIntegrity
	}
	var rerr *persistence.RemoteError
	if errors.As(err, &rerr) ||
		errors.Is(err, persistence.ErrTimeout) ||
		errors.Is(err, persistence.ErrNotFound) ||
		errors.Is(err, persistence.ErrClosed) {
		return ClassPersistence
	}
	return ClassInternal
}
