package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
)

// AppAuth issues GitHub App installation tokens used as git credentials
// for the config repository remote
type AppAuth struct {
	transport *ghinstallation.Transport
}

// NewAppAuth creates a new GitHub App authenticator
func NewAppAuth(appID, installationID int64, privateKey []byte) (*AppAuth, error) {
	if appID <= 0 || installationID <= 0 {
		return nil, errors.New("app ID and installation ID are required")
	}
	if len(privateKey) == 0 {
		return nil, errors.New("private key is required")
	}

	transport, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App transport: %w", err)
	}

	return &AppAuth{transport: transport}, nil
}

// Token returns a valid installation access token.
// ghinstallation refreshes it shortly before expiry.
func (a *AppAuth) Token(ctx context.Context) (string, error) {
	token, err := a.transport.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get installation token: %w", err)
	}
	return token, nil
}
