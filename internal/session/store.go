// Package session persists the device-local session record.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Record is everything the client remembers between runs.
type Record struct {
	AccessToken string `toml:"access_token,omitempty"`
	ParentPIN   string `toml:"parent_pin,omitempty"`
	ParentName  string `toml:"parent_name,omitempty"`
	ChildName   string `toml:"child_name,omitempty"`
}

func (r Record) HasToken() bool { return r.AccessToken != "" }

// Onboarded reports whether the parent profile has been set up.
func (r Record) Onboarded() bool { return r.ParentPIN != "" }

type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var pinPattern = regexp.MustCompile(`^\d{4}$`)

// Store keeps the record in a 0600 TOML file. With the keyring enabled the
// access token lives in the OS keychain instead, falling back to the file when
// the keychain is unavailable.
type Store struct {
	path       string
	useKeyring bool
	mu         sync.Mutex
}

func NewStore(path string, useKeyring bool) *Store {
	return &Store{path: path, useKeyring: useKeyring}
}

func (s *Store) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (Record, error) {
	var rec Record
	if _, err := toml.DecodeFile(s.path, &rec); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Record{}, fmt.Errorf("read session: %w", err)
	}
	if s.useKeyring && rec.AccessToken == "" {
		tok, err := loadToken()
		if err != nil {
			return rec, nil
		}
		rec.AccessToken = tok
	}
	return rec, nil
}

func (s *Store) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(rec)
}

func (s *Store) saveLocked(rec Record) error {
	onDisk := rec
	if s.useKeyring {
		if rec.AccessToken == "" {
			if err := deleteToken(); err != nil {
				return fmt.Errorf("clear keyring token: %w", err)
			}
		} else if err := storeToken(rec.AccessToken); err == nil {
			onDisk.AccessToken = ""
		}
	}
	return writeFile(s.path, onDisk)
}

// SetToken records a fresh access token, keeping the onboarding fields.
func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadLocked()
	if err != nil {
		return err
	}
	rec.AccessToken = token
	return s.saveLocked(rec)
}

// SaveOnboarding validates and stores the parent profile. Nothing is written
// when validation fails.
func (s *Store) SaveOnboarding(parentName, childName, pin string) error {
	parentName = strings.TrimSpace(parentName)
	childName = strings.TrimSpace(childName)

	switch {
	case parentName == "":
		return ValidationError{Field: "parent_name", Reason: "must not be empty"}
	case childName == "":
		return ValidationError{Field: "child_name", Reason: "must not be empty"}
	case !pinPattern.MatchString(pin):
		return ValidationError{Field: "parent_pin", Reason: "must be exactly 4 digits"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadLocked()
	if err != nil {
		return err
	}
	rec.ParentName = parentName
	rec.ChildName = childName
	rec.ParentPIN = pin
	return s.saveLocked(rec)
}

// CheckPIN compares pin with the stored parent PIN. No stored PIN never matches.
func (s *Store) CheckPIN(pin string) (bool, error) {
	rec, err := s.Load()
	if err != nil {
		return false, err
	}
	return rec.ParentPIN != "" && rec.ParentPIN == pin, nil
}

// Clear wipes every stored key.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove session file: %w", err))
	}
	if s.useKeyring {
		if err := deleteToken(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeFile(path string, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening session file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(rec); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}
