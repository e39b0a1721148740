// Package token generates heartbeat tokens. A token is the only
// credential for the public ping URL, so it must be unguessable and
// carry no relation to the check's sequential ID.
package token

import "github.com/google/uuid"

// New returns a fresh heartbeat token backed by crypto/rand.
func New() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Valid reports whether s has the shape of a heartbeat token. It is a
// cheap syntactic gate in front of the registry lookup, not auth.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
