package github

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/cli/go-gh/pkg/auth"
)

// Authentication constants.
const (
	maxTokenLength     = 255 // Fine-grained tokens are longer than classic ones
	minTokenLength     = 40  // Minimum expected length for GitHub tokens
	classicTokenLength = 40  // Length of classic GitHub tokens
	defaultHost        = "github.com"
)

// ErrNoToken is returned when no token is configured or discoverable.
var ErrNoToken = errors.New("no GitHub token found: set githubAuthToken, GH_TOKEN, or run 'gh auth login'")

// tokenForHost is swapped in tests.
var tokenForHost = auth.TokenForHost

// ResolveToken returns configured if set, else the token the gh CLI would use
// (GH_TOKEN, GITHUB_TOKEN, or the gh config file). The token format is checked.
func ResolveToken(configured string) (string, error) {
	token := strings.TrimSpace(configured)
	source := "config"
	if token == "" {
		token, source = tokenForHost(defaultHost)
		token = strings.TrimSpace(token)
	}
	if token == "" {
		return "", ErrNoToken
	}
	if err := validateToken(token); err != nil {
		return "", err
	}
	slog.Debug("Using GitHub token", "component", "auth", "source", source)
	return token, nil
}

// validateToken validates a GitHub personal access token.
func validateToken(token string) error {
	if token == "" {
		return ErrNoToken
	}
	if len(token) > maxTokenLength || len(token) < minTokenLength {
		return errors.New("invalid token length")
	}

	// Validate token format - GitHub tokens have specific prefixes
	validPrefixes := []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_"}
	for _, prefix := range validPrefixes {
		if strings.HasPrefix(token, prefix) {
			return nil
		}
	}

	// Could be a classic token (40 hex chars)
	if len(token) != classicTokenLength {
		return errors.New("invalid token format")
	}
	for _, r := range token {
		if (r < 'a' || r > 'f') && (r < '0' || r > '9') {
			return errors.New("invalid classic token format")
		}
	}

	return nil
}
