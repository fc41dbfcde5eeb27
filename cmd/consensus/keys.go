package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/term"

	"consensus/pkg/config"
	"consensus/pkg/credentials"
	"consensus/pkg/logx"
)

// PasswordEnv supplies the keys file password without a prompt.
const PasswordEnv = "CONSENSUS_KEYS_PASSWORD"

// readPassword is replaced in tests.
//
//nolint:gochecknoglobals // test seam
var readPassword = promptPassword

func promptPassword(prompt string, stderr io.Writer) (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd()) //nolint:gosec // fd fits in int
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal for password prompt; set %s", PasswordEnv)
	}
	fmt.Fprint(stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(pw)), nil
}

func encryptKeys(src, dst string, stderr io.Writer) error {
	pw, err := readPassword("Password for "+dst+": ", stderr)
	if err != nil {
		return err
	}
	if pw == "" {
		return config.Errorf("credentials", "empty password")
	}
	return credentials.EncryptFile(src, dst, pw) //nolint:wrapcheck // already descriptive
}

// loadPool loads the keys file and returns this user's share of it. Ollama
// runs without a keys file get anonymous slots.
func loadPool(cfg *config.Config, stderr io.Writer) (*credentials.Pool, error) {
	need := cfg.Agents * cfg.Instances
	path := cfg.Credentials.KeysFile

	var (
		pool *credentials.Pool
		err  error
	)
	if cfg.Credentials.Encrypted {
		pw, perr := readPassword("Password for "+path+": ", stderr)
		if perr != nil {
			return nil, perr
		}
		pool, err = credentials.LoadEncrypted(path, pw)
	} else {
		pool, err = credentials.Load(path)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !config.RequiresAPIKey(cfg.LLM.Provider) {
			logx.Infof("no keys file at %s, using %d anonymous slots", path, need)
			return credentials.Anonymous(need), nil
		}
		return nil, err //nolint:wrapcheck // already descriptive
	}

	share, err := pool.Slice(cfg.Credentials.UserID, cfg.Credentials.UserCount)
	if err != nil {
		return nil, err //nolint:wrapcheck // ConfigurationError
	}
	logx.Infof("user %d/%d: %d of %d api keys", cfg.Credentials.UserID, cfg.Credentials.UserCount, share.Len(), pool.Len())
	if err := share.Require(cfg.Agents, cfg.Instances); err != nil {
		return nil, err //nolint:wrapcheck // ConfigurationError
	}
	return share, nil
}
