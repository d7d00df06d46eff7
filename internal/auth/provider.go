// Package auth handles sign-in against Firebase Authentication, the
// process-wide session, and the per-user role and settings documents.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

// ErrWeakPassword is returned when the provider rejects a new password.
var ErrWeakPassword = errors.New("password is too weak")

// Provider authenticates email and password identities.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*model.Credential, error)
	SignUp(ctx context.Context, email, password string) (*model.Credential, error)
}

// IdentityToolkitProvider is a Provider backed by the Identity Toolkit REST API
// that fronts Firebase email/password authentication.
type IdentityToolkitProvider struct {
	svc *identitytoolkit.Service
	now func() time.Time
}

var _ Provider = (*IdentityToolkitProvider)(nil)

// NewIdentityToolkitProvider creates a provider for the project owning apiKey.
func NewIdentityToolkitProvider(ctx context.Context, apiKey string, opts ...option.ClientOption) (*IdentityToolkitProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: firebase.api_key", common.ErrMissingConfig)
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := identitytoolkit.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity toolkit service: %w", err)
	}

	return &IdentityToolkitProvider{svc: svc, now: time.Now}, nil
}

// SignIn verifies an email and password.
func (p *IdentityToolkitProvider) SignIn(ctx context.Context, email, password string) (*model.Credential, error) {
	resp, err := p.svc.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classifyAuthError(err)
	}

	return p.credential(resp.LocalId, resp.Email, resp.IdToken, resp.RefreshToken, resp.ExpiresIn), nil
}

// SignUp creates an account and signs it in.
func (p *IdentityToolkitProvider) SignUp(ctx context.Context, email, password string) (*model.Credential, error) {
	resp, err := p.svc.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classifyAuthError(err)
	}

	if resp.IdToken == "" {
		return p.SignIn(ctx, email, password)
	}
	return p.credential(resp.LocalId, resp.Email, resp.IdToken, resp.RefreshToken, resp.ExpiresIn), nil
}

func (p *IdentityToolkitProvider) credential(uid, email, idToken, refreshToken string, expiresIn int64) *model.Credential {
	cred := &model.Credential{
		UID:          uid,
		Email:        email,
		IDToken:      idToken,
		RefreshToken: refreshToken,
	}
	if expiresIn > 0 {
		cred.ExpiresAt = p.now().Add(time.Duration(expiresIn) * time.Second)
	}
	return cred
}

// classifyAuthError maps provider error codes onto application errors.
func classifyAuthError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", common.ErrRemoteUnavailable, err)
	}

	code := apiErr.Message
	for _, item := range apiErr.Errors {
		if item.Message != "" {
			code = item.Message
			break
		}
	}

	switch {
	case strings.HasPrefix(code, "EMAIL_NOT_FOUND"),
		strings.HasPrefix(code, "INVALID_PASSWORD"),
		strings.HasPrefix(code, "INVALID_LOGIN_CREDENTIALS"),
		strings.HasPrefix(code, "INVALID_EMAIL"),
		strings.HasPrefix(code, "USER_DISABLED"):
		return fmt.Errorf("%w: %s", common.ErrInvalidCredentials, code)
	case strings.HasPrefix(code, "EMAIL_EXISTS"):
		return fmt.Errorf("%w: %s", common.ErrAccountExists, code)
	case strings.HasPrefix(code, "WEAK_PASSWORD"):
		return fmt.Errorf("%w: %s", ErrWeakPassword, code)
	case strings.HasPrefix(code, "TOO_MANY_ATTEMPTS_TRY_LATER"):
		return fmt.Errorf("%w: %s", common.ErrRateLimit, code)
	case apiErr.Code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", common.ErrRemoteUnavailable, err)
	default:
		return fmt.Errorf("authentication failed: %w", err)
	}
}
