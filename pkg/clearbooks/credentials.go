package clearbooks

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables read by CredentialsFromEnv.
const (
	EnvUser     = "CB_USER"
	EnvPassword = "CB_PASSWORD"
)

// Credentials identify a ClearBooks account. Username is normally an email address.
type Credentials struct {
	Username string
	Password string
}

// CredentialsFromEnv reads CB_USER and CB_PASSWORD. Call it once at program start and pass the
// result to New.
func CredentialsFromEnv() (Credentials, error) {
	return credentialsFromLookup(os.LookupEnv)
}

func credentialsFromLookup(lookup func(string) (string, bool)) (Credentials, error) {
	var missing []string
	user, ok := lookup(EnvUser)
	if !ok || strings.TrimSpace(user) == "" {
		missing = append(missing, EnvUser)
	}
	password, ok := lookup(EnvPassword)
	if !ok || password == "" {
		missing = append(missing, EnvPassword)
	}
	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf("%w: cannot log in, set the %s environment variable(s)", ErrInvalidQuery, strings.Join(missing, ", "))
	}
	return Credentials{Username: strings.TrimSpace(user), Password: password}, nil
}

// Validate reports whether both fields are present.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidQuery)
	}
	if c.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidQuery)
	}
	return nil
}

// String never prints the password.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %q, Password: ***}", c.Username)
}
