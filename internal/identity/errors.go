package identity

import (
	"errors"
	"fmt"
)

// Structured provider error codes understood by the gateway.
const (
	CodeUserAlreadyExists  = "user_already_exists"
	CodeWeakPassword       = "weak_password"
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailNotConfirmed  = "email_not_confirmed"
	CodeRateLimited        = "over_request_rate_limit"
	CodeUnsupported        = "unsupported"
	CodeUnavailable        = "provider_unavailable"
)

// InvalidCredentialsMessage is returned for every failed password login so the
// response never reveals whether the email exists.
const InvalidCredentialsMessage = "Неверный Email или пароль!"

// ErrUnsupported is returned by adapters for operations their provider cannot perform.
var ErrUnsupported = errors.New("operation not supported by identity provider")

// ProviderError is a failed provider call. Code is the structured code when the
// provider sent one; Message is the provider's raw text.
type ProviderError struct {
	Code    string
	Message string
	Status  int
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity provider error %s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("identity provider error (status %d): %s", e.Status, e.Message)
}

// codeMessages translates structured codes into user-facing text.
var codeMessages = map[string]string{
	CodeUserAlreadyExists:  "Аккаунт уже есть. Нажмите 'Войти'",
	CodeWeakPassword:       "Пароль слишком короткий",
	CodeInvalidCredentials: InvalidCredentialsMessage,
	CodeEmailNotConfirmed:  "Подтвердите email по ссылке из письма",
	CodeRateLimited:        "Слишком много попыток, попробуйте позже",
	CodeUnsupported:        "Этот способ входа недоступен",
	CodeUnavailable:        "Сервис авторизации недоступен",
}

// legacyMessages covers providers that only send free-form text.
var legacyMessages = map[string]string{
	"User already registered":                    "Аккаунт уже есть. Нажмите 'Войти'",
	"Invalid login credentials":                  InvalidCredentialsMessage,
	"Password should be at least 6 characters.": "Пароль слишком короткий",
}

// UserMessage returns the user-facing reason for err. Structured codes win,
// then the legacy message table; anything else passes the raw provider text
// through unchanged.
func UserMessage(err error) string {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		if errors.Is(err, ErrUnsupported) {
			return codeMessages[CodeUnsupported]
		}
		return err.Error()
	}
	if msg, ok := codeMessages[pe.Code]; ok {
		return msg
	}
	if msg, ok := legacyMessages[pe.Message]; ok {
		return msg
	}
	return pe.Message
}

// Translate maps a raw detail string (as received over the wire) through the
// legacy table, returning it unchanged when unknown.
func Translate(detail string) string {
	if msg, ok := legacyMessages[detail]; ok {
		return msg
	}
	return detail
}
