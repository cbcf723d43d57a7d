package shell

import (
	"context"
	"errors"

	"github.com/emsana/authbridge/internal/client"
	"github.com/emsana/authbridge/internal/poller"
	"github.com/emsana/authbridge/internal/session"
)

const (
	MsgWrongPIN        = "Неверный ПИН-код!"
	MsgNamesRequired   = "Пожалуйста, введите имена!"
	MsgPINFormat       = "ПИН-код должен состоять из 4 цифр!"
	MsgConnection      = "Ошибка соединения с сервером"
	MsgSignInTimedOut  = "Время ожидания входа истекло. Попробуйте ещё раз"
	MsgSessionExpired  = "Сессия истекла. Войдите снова"
	MsgSignInCancelled = "Вход отменён"
	MsgSignInRunning   = "Вход уже выполняется"
)

// Message turns any shell error into text for the user.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var apiErr client.APIError
	var transient client.ErrTransient
	var timedOut poller.ErrTimedOut
	var invalid session.ValidationError

	switch {
	case errors.As(err, &apiErr):
		return apiErr.Detail
	case errors.Is(err, ErrSessionInvalid):
		return MsgSessionExpired
	case errors.As(err, &transient):
		return MsgConnection
	case errors.As(err, &timedOut):
		return MsgSignInTimedOut
	case errors.Is(err, context.Canceled):
		return MsgSignInCancelled
	case errors.Is(err, poller.ErrAlreadyRunning):
		return MsgSignInRunning
	case errors.Is(err, ErrWrongPIN):
		return MsgWrongPIN
	case errors.As(err, &invalid):
		if invalid.Field == "parent_pin" {
			return MsgPINFormat
		}
		return MsgNamesRequired
	default:
		return err.Error()
	}
}
