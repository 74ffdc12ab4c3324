package gatehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skelhorn/gatehouse/jwt"
)

// IssueTokens signs a fresh access/refresh pair for the identity and
// appends the refresh token to its stored list. With rememberMe the access
// token gets the long TTL. When the list would exceed the configured cap
// the oldest records are evicted — stolen-credential sprees cannot grow an
// unbounded set of live refresh tokens.
func (e *Engine) IssueTokens(ctx context.Context, identity IdentityRecord, rememberMe bool) (TokenPair, error) {
	accessTTL := e.config.JWT.AccessTTL
	if rememberMe {
		accessTTL = e.config.JWT.RememberMeTTL
	}

	access, err := e.tokens.CreateAccess(identity.ID, identity.Email, identity.Role, identity.Permissions, accessTTL)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := e.tokens.CreateRefresh(identity.ID, e.config.JWT.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	now := time.Now()
	records := pruneExpired(identity.RefreshTokens, now)
	records = append(records, RefreshTokenRecord{
		Token:     refresh,
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.JWT.RefreshTTL),
	})
	records = capRecords(records, e.config.JWT.MaxLiveRefreshTokens)

	if err := e.identities.UpdateRefreshTokens(ctx, identity.ID, records); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricTokenIssued)
	e.emitAudit(ctx, AuditEvent{
		EventType: EventTokenIssued,
		Subject:   identity.ID,
		Success:   true,
	})

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess checks signature and expiry, then consults the revocation
// list. In best-effort mode an unreachable blacklist reads as not-revoked;
// strict mode surfaces [ErrStoreUnavailable] instead.
func (e *Engine) VerifyAccess(ctx context.Context, token string) (*Principal, error) {
	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		e.metrics.Inc(MetricTokenVerifyFailure)
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	revoked, err := e.blacklist.IsRevoked(ctx, token)
	if err != nil {
		if e.config.JWT.RevocationCheck == RevocationStrict {
			e.metrics.Inc(MetricTokenVerifyFailure)
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.logger.Warn("revocation list unreachable, proceeding best-effort", "error", err)
	} else if revoked {
		e.metrics.Inc(MetricTokenVerifyFailure)
		return nil, ErrTokenRevoked
	}

	return &Principal{
		SubjectID:   claims.Subject,
		Email:       claims.Email,
		Role:        claims.Role,
		Permissions: claims.Permissions,
	}, nil
}

// RefreshTokens rotates a refresh token: the presented token is consumed
// and a fresh pair is issued in one record write. A token that parses but
// is not on the identity's live list is treated as a replay and rejected.
func (e *Engine) RefreshTokens(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshReplay)
		if errors.Is(err, jwt.ErrExpired) {
			return TokenPair{}, ErrTokenExpired
		}
		return TokenPair{}, ErrTokenInvalid
	}

	identity, err := e.identities.GetIdentityByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return TokenPair{}, ErrTokenInvalid
		}
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := time.Now()
	matched := false
	kept := make([]RefreshTokenRecord, 0, len(identity.RefreshTokens))
	for _, record := range identity.RefreshTokens {
		if record.Token == refreshToken {
			if now.Before(record.ExpiresAt) {
				matched = true
			}
			continue // consumed (or expired) either way
		}
		if now.Before(record.ExpiresAt) {
			kept = append(kept, record)
		}
	}

	if !matched {
		e.metrics.Inc(MetricRefreshReplay)
		e.emitAudit(ctx, AuditEvent{
			EventType: EventRefreshReplay,
			Subject:   claims.Subject,
		})
		return TokenPair{}, ErrTokenInvalid
	}

	access, err := e.tokens.CreateAccess(identity.ID, identity.Email, identity.Role, identity.Permissions, e.config.JWT.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := e.tokens.CreateRefresh(identity.ID, e.config.JWT.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	kept = append(kept, RefreshTokenRecord{
		Token:     refresh,
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.JWT.RefreshTTL),
	})
	kept = capRecords(kept, e.config.JWT.MaxLiveRefreshTokens)

	// Consume and append land in one write so a crash between them cannot
	// leave both the old and new token live.
	if err := e.identities.UpdateRefreshTokens(ctx, identity.ID, kept); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricRefreshRotated)
	e.metrics.Inc(MetricTokenIssued)

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Revoke invalidates a session: the access token goes on the revocation
// list for its remaining lifetime and the refresh token leaves the
// identity's record. Revocation never fails visibly — partial failures are
// logged and the rest proceeds, because a logout that errors out helps no
// one.
func (e *Engine) Revoke(ctx context.Context, accessToken, refreshToken, identityID string) {
	if accessToken != "" {
		if claims, err := e.tokens.ParseAccess(accessToken); err == nil && claims.ExpiresAt != nil {
			remaining := time.Until(claims.ExpiresAt.Time)
			if err := e.blacklist.Revoke(ctx, accessToken, remaining); err != nil {
				e.logger.Warn("access token blacklisting failed", "error", err)
			}
		}
	}

	if refreshToken != "" && identityID != "" {
		identity, err := e.identities.GetIdentityByID(ctx, identityID)
		if err != nil {
			e.logger.Warn("identity lookup failed during revoke", "error", err)
		} else {
			now := time.Now()
			kept := make([]RefreshTokenRecord, 0, len(identity.RefreshTokens))
			for _, record := range identity.RefreshTokens {
				if record.Token == refreshToken || !now.Before(record.ExpiresAt) {
					continue
				}
				kept = append(kept, record)
			}
			if err := e.identities.UpdateRefreshTokens(ctx, identityID, kept); err != nil {
				e.logger.Warn("refresh token removal failed during revoke", "error", err)
			}
		}
	}

	e.metrics.Inc(MetricTokenRevoked)
	e.emitAudit(ctx, AuditEvent{
		EventType: EventTokenRevoked,
		Subject:   identityID,
		Success:   true,
	})
}

func pruneExpired(records []RefreshTokenRecord, now time.Time) []RefreshTokenRecord {
	kept := make([]RefreshTokenRecord, 0, len(records))
	for _, record := range records {
		if now.Before(record.ExpiresAt) {
			kept = append(kept, record)
		}
	}
	return kept
}

// capRecords keeps the newest max records. The list is append-ordered, so
// the slice tail is the newest.
func capRecords(records []RefreshTokenRecord, max int) []RefreshTokenRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	return records[len(records)-max:]
}
