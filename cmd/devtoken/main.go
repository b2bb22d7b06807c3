// devtoken prints a fresh secret key, or a bearer token signed with a given key.
// Tokens are normally issued by the auth service; this is for local runs and manual testing.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/creditledger/internal/service/auth/tokenmanager"
)

const SecretKeyBytesLen = 32

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer, args []string) error {
	var (
		secretKey string
		userID    string
		role      string
		ttl       time.Duration
	)

	fs := pflag.NewFlagSet("devtoken", pflag.ContinueOnError)
	fs.StringVarP(&secretKey, "secret-key", "s", "", "Secret key; a new one is generated and printed when empty")
	fs.StringVarP(&userID, "user", "u", "", "User id to issue token for; random when empty")
	fs.StringVar(&role, "role", tokenmanager.RoleUser, "Token role (user, admin)")
	fs.DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if secretKey == "" {
		b := make([]byte, SecretKeyBytesLen)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("error while generating secret key: %w", err)
		}
		_, err := fmt.Fprintln(out, hex.EncodeToString(b))
		return err
	}

	if role != tokenmanager.RoleUser && role != tokenmanager.RoleAdmin {
		return fmt.Errorf("unknown role %q", role)
	}

	uid := uuid.New()
	if userID != "" {
		parsed, err := uuid.Parse(userID)
		if err != nil {
			return errors.New("user must be a uuid")
		}
		uid = parsed
	}

	tm, err := tokenmanager.New(tokenmanager.Config{SecretKey: secretKey, AccessTTL: ttl})
	if err != nil {
		return err
	}

	token, err := tm.Issue(uid, role)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "user:    %s\nexpires: %s\ntoken:   %s\n", uid, token.ExpiresAt.Format(time.RFC3339), token.Value)
	return err
}
