package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jeffepok/botnet/internal/store"
	"github.com/jeffepok/botnet/pkg/models"
)

// ProfileStore is the persistence the Resolver needs
type ProfileStore interface {
	GetProfileBySubject(ctx context.Context, subject string) (*models.UserProfile, error)
	CreateProfile(ctx context.Context, p *models.UserProfile) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// Resolver maps verified claims onto a local profile
type Resolver struct {
	store ProfileStore
	now   func() time.Time
}

func NewResolver(s ProfileStore) *Resolver {
	return &Resolver{store: s, now: time.Now}
}

// Resolve returns the profile for claims. A known subject gets its last
// login refreshed; an unknown one gets a new profile built from the token
// metadata.
func (r *Resolver) Resolve(ctx context.Context, claims *Claims) (*models.UserProfile, error) {
	if claims == nil || claims.Subject == "" || claims.Email == "" {
		return nil, ErrMissingClaims
	}
	now := r.now().UTC()

	profile, err := r.store.GetProfileBySubject(ctx, claims.Subject)
	switch {
	case err == nil:
		if err := r.store.UpdateLastLogin(ctx, profile.ID, now); err != nil {
			return nil, fmt.Errorf("failed to update last login: %w", err)
		}
		profile.LastLogin = &now
		return profile, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}

	profile = &models.UserProfile{
		Subject:     claims.Subject,
		Email:       claims.Email,
		FullName:    claims.UserMetadata.FullName,
		AvatarURL:   claims.UserMetadata.AvatarURL,
		Username:    claims.UserMetadata.Username,
		DisplayName: claims.UserMetadata.FullName,
		IsActive:    true,
		IsVerified:  claims.EmailConfirmed(),
		LastLogin:   &now,
	}
	if err := r.store.CreateProfile(ctx, profile); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
		// a concurrent first login for the same subject won the insert
		existing, lookupErr := r.store.GetProfileBySubject(ctx, claims.Subject)
		if lookupErr != nil {
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
		return existing, nil
	}
	log.Info().Int64("profile_id", profile.ID).Str("email", profile.Email).Msg("created user profile")
	return profile, nil
}
