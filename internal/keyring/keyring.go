// Package keyring keeps fieldcall secrets (the postgres connection string and
// the survey endpoint token) in the OS keyring.
package keyring

import (
	"errors"
	"fmt"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/julianstephens/fieldcall/internal/constants"
)

var (
	ErrNotFound           = errors.New("secret not found in keyring")
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Secret names one keyring entry under the fieldcall service.
type Secret string

const (
	DatabaseURL Secret = constants.DefaultKeyringUser
	SurveyToken Secret = "survey-token"
)

func Get(s Secret) (string, error) {
	v, err := gokeyring.Get(constants.AppName, string(s))
	if errors.Is(err, gokeyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return v, nil
}

func Set(s Secret, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", s)
	}
	if err := gokeyring.Set(constants.AppName, string(s), value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", s, err)
	}
	return nil
}

func Delete(s Secret) error {
	err := gokeyring.Delete(constants.AppName, string(s))
	if errors.Is(err, gokeyring.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s from keyring: %w", s, err)
	}
	return nil
}

// Lookup returns the secret, or "" when it is not stored. Keyring failures
// are still reported.
func Lookup(s Secret) (string, error) {
	v, err := Get(s)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// IsAvailable is a best-effort probe of the OS keyring.
func IsAvailable() bool {
	_, err := gokeyring.Get(constants.AppName, "availability-probe")
	return err == nil || errors.Is(err, gokeyring.ErrNotFound)
}
