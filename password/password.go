// Package password hashes and checks passwords.  Hashes are bcrypt, stored
// base64 encoded.
package password

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ts4z/rungs/model"
)

var ErrInvalidPassword = errors.New("invalid password")

type Clock interface {
	Now() time.Time
}

func Hash(pw string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("can't hash password: %w", err)
	}
	return base64.RawStdEncoding.EncodeToString(bytes), nil
}

type Checker struct {
	hashes   [][]byte
	identity *model.UserIdentity
}

// NewChecker collects the user's passwords that haven't expired.  A user can
// have more than one during a password change.
func NewChecker(clock Clock, userRow *model.UserRow) (*Checker, error) {
	now := clock.Now()
	ch := &Checker{identity: userRow.UserIdentity.Clone()}
	for i, p := range userRow.Passwords {
		if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
			continue
		}
		bytes, err := base64.RawStdEncoding.DecodeString(p.Hash)
		if err != nil {
			log.Printf("user %d: skipping undecodable password %d: %v", userRow.ID, i, err)
			continue
		}
		ch.hashes = append(ch.hashes, bytes)
	}
	if len(ch.hashes) == 0 {
		return nil, fmt.Errorf("user %d has no usable password", userRow.ID)
	}
	return ch, nil
}

func (ch *Checker) Validate(pw string) (*model.UserIdentity, error) {
	for _, h := range ch.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(pw)) == nil {
			return ch.identity, nil
		}
	}
	return nil, ErrInvalidPassword
}
