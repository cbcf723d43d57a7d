package session

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "com.emsana.client"
	keyringAccount = "access_token"
)

// storeToken stores the access token in the OS keychain.
// Callers fall back to the session file when this fails.
func storeToken(token string) error {
	if err := keyring.Set(keyringService, keyringAccount, token); err != nil {
		log.Debug().Err(err).Msg("keyring not available, token will be kept in the session file")
		return err
	}
	log.Debug().Msg("access token stored in keyring")
	return nil
}

// loadToken returns "" without error when nothing is stored.
func loadToken() (string, error) {
	token, err := keyring.Get(keyringService, keyringAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		log.Debug().Err(err).Msg("failed to get access token from keyring")
		return "", err
	}
	return token, nil
}

func deleteToken() error {
	if err := keyring.Delete(keyringService, keyringAccount); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		log.Debug().Err(err).Msg("failed to delete access token from keyring")
		return err
	}
	return nil
}
