package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/chatvault/internal/domain"
	"github.com/Rrens/chatvault/internal/notify"
	"github.com/Rrens/chatvault/internal/security"
	"github.com/rs/zerolog/log"
)

// AuthService handles sign-in and sign-out
type AuthService struct {
	verifier   security.IdentityVerifier
	jwtManager *security.JWTManager
	sessions   *SessionManager
	bus        notify.Bus
	instanceID string
}

// NewAuthService creates a new auth service
func NewAuthService(
	verifier security.IdentityVerifier,
	jwtManager *security.JWTManager,
	sessions *SessionManager,
	bus notify.Bus,
	instanceID string,
) *AuthService {
	return &AuthService{
		verifier:   verifier,
		jwtManager: jwtManager,
		sessions:   sessions,
		bus:        bus,
		instanceID: instanceID,
	}
}

// SignIn verifies the identity token, opens the profile's session and
// issues a session token. A supplied access token restores the backup.
func (s *AuthService) SignIn(ctx context.Context, req domain.SignInRequest) (*domain.SignInResult, error) {
	profile, err := s.verifier.Verify(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Open(ctx, *profile)
	if err != nil {
		return nil, err
	}

	if req.AccessToken != "" {
		change, err := sess.SetBearerToken(ctx, req.AccessToken)
		if err != nil {
			return nil, err
		}
		// a sign-in always restores, even when the token was already known
		if !change.Acquired() {
			if err := sess.Sync.Pull(ctx); err != nil {
				log.Warn().Err(err).
					Str("kind", domain.ErrorKind(err)).
					Str("subject", profile.Subject).
					Msg("Restore on sign-in failed")
			}
		}
	}

	token, expiresIn, err := s.jwtManager.GenerateSessionToken(*profile)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	s.publish(ctx, notify.EventSignedIn, profile.Subject)
	log.Info().Str("subject", profile.Subject).Msg("User signed in")

	return &domain.SignInResult{
		Token:     token,
		ExpiresIn: expiresIn,
		Profile:   *profile,
	}, nil
}

// UpdateAccessToken replaces the bearer token of a live session
func (s *AuthService) UpdateAccessToken(ctx context.Context, subject, accessToken string) error {
	sess, err := s.sessions.Get(ctx, subject)
	if err != nil {
		return err
	}
	_, err = sess.SetBearerToken(ctx, accessToken)
	return err
}

// SignOut waits for pending backups, clears the profile's local data and
// tells other instances
func (s *AuthService) SignOut(ctx context.Context, subject string) error {
	if err := s.sessions.SignOut(ctx, subject); err != nil && !errors.Is(err, domain.ErrNoSession) {
		return err
	}
	s.publish(ctx, notify.EventSignedOut, subject)
	log.Info().Str("subject", subject).Msg("User signed out")
	return nil
}

// Listen subscribes to session events from other instances
func (s *AuthService) Listen() (unsubscribe func()) {
	if s.bus == nil {
		return func() {}
	}
	return s.bus.Subscribe(s.HandleEvent)
}

// HandleEvent tears down sessions signed out elsewhere
func (s *AuthService) HandleEvent(e notify.Event) {
	if e.Origin == s.instanceID || e.Type != notify.EventSignedOut {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.sessions.Teardown(ctx, e.Subject); err != nil {
		log.Error().Err(err).Str("subject", e.Subject).Msg("Failed to tear down signed out session")
		return
	}
	log.Info().Str("subject", e.Subject).Str("origin", e.Origin).Msg("Session signed out by another instance")
}

func (s *AuthService) publish(ctx context.Context, t notify.EventType, subject string) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(ctx, notify.Event{
		Type:    t,
		Subject: subject,
		Origin:  s.instanceID,
		At:      time.Now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Str("event", string(t)).Msg("Failed to publish session event")
	}
}
