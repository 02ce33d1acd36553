package system

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/julianstephens/fieldcall/internal/cli"
	"github.com/julianstephens/fieldcall/internal/keyring"
	"github.com/julianstephens/fieldcall/internal/storage/postgres"
)

// secretName maps the CLI spelling to a keyring entry.
type secretName string

func (s secretName) secret() (keyring.Secret, error) {
	switch s {
	case "database-url":
		return keyring.DatabaseURL, nil
	case "survey-token":
		return keyring.SurveyToken, nil
	}
	return "", fmt.Errorf("unknown secret %q (expected database-url or survey-token)", string(s))
}

type KeyringSetCmd struct {
	Name  secretName `arg:"" enum:"database-url,survey-token" help:"Secret to store (database-url, survey-token)."`
	Value string     `arg:"" help:"Secret value."`
}

func (cmd *KeyringSetCmd) Run(ctx *cli.Context) error {
	secret, err := cmd.Name.secret()
	if err != nil {
		return err
	}
	if secret == keyring.DatabaseURL {
		if err := postgres.ValidateConnString(cmd.Value); err != nil {
			if !errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return fmt.Errorf("invalid connection string: %w", err)
			}
			ctx.Println("Warning: connection string contains embedded credentials; it is stored as-is in the OS keyring.")
		}
	}
	if err := keyring.Set(secret, cmd.Value); err != nil {
		return err
	}
	ctx.Printf("✓ %s stored in OS keyring\n", cmd.Name)
	return nil
}

type KeyringGetCmd struct {
	Name secretName `arg:"" enum:"database-url,survey-token" help:"Secret to show (database-url, survey-token)."`
}

func (cmd *KeyringGetCmd) Run(ctx *cli.Context) error {
	secret, err := cmd.Name.secret()
	if err != nil {
		return err
	}
	v, err := keyring.Get(secret)
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("no %s found in keyring, use 'fieldcall keyring set %s'", cmd.Name, cmd.Name)
	}
	if err != nil {
		return err
	}
	if secret == keyring.SurveyToken {
		ctx.Println("survey-token is set")
		return nil
	}
	ctx.Println(maskPassword(v))
	return nil
}

type KeyringDeleteCmd struct {
	Name secretName `arg:"" enum:"database-url,survey-token" help:"Secret to delete (database-url, survey-token)."`
}

func (cmd *KeyringDeleteCmd) Run(ctx *cli.Context) error {
	secret, err := cmd.Name.secret()
	if err != nil {
		return err
	}
	if err := keyring.Delete(secret); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("no %s found in keyring", cmd.Name)
		}
		return err
	}
	ctx.Printf("✓ %s removed from OS keyring\n", cmd.Name)
	return nil
}

type KeyringCmd struct {
	Set    KeyringSetCmd    `cmd:"" help:"Store a secret in the OS keyring."`
	Get    KeyringGetCmd    `cmd:"" help:"Show a stored secret (passwords masked)."`
	Delete KeyringDeleteCmd `cmd:"" help:"Remove a secret from the OS keyring."`
}

func maskPassword(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); !ok {
		return connStr
	}
	u.User = url.UserPassword(u.User.Username(), "****")
	return u.String()
}
