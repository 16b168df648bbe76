package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Placeholder is the token value shipped in the sample watchlist file.
// It is treated the same as an unset credential.
const Placeholder = "YOUR_BOT_TOKEN_HERE"

// Lookup resolves a credential. KEY_FILE (Docker/K8s secret mount) takes
// priority over KEY. The bool reports whether a usable value was found.
func Lookup(key string) (string, bool, error) {
	if path := os.Getenv(key + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", false, fmt.Errorf("read secret file for %s: %w", key, err)
		}
		v := strings.TrimSpace(string(data))
		return v, Usable(v), nil
	}

	v := strings.TrimSpace(os.Getenv(key))
	return v, Usable(v), nil
}

// Get returns the credential for key, falling back to fallback when
// neither KEY_FILE nor KEY yields a usable value.
func Get(key, fallback string) (string, error) {
	v, ok, err := Lookup(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return fallback, nil
	}
	return v, nil
}

// Usable reports whether v is a real credential.
func Usable(v string) bool {
	return v != "" && v != Placeholder
}
