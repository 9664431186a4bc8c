package otpgate

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const credentialKeyPrefix = "otpc:"

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// RedisCredentialStore is a [CredentialProvider] backed by Redis hashes,
// one hash per (realm, identity). It is a convenience implementation for
// deployments without an existing credential database; callers with
// their own storage implement [CredentialProvider] directly.
type RedisCredentialStore struct {
	redis redis.UniversalClient
}

// NewRedisCredentialStore creates a credential store on the given
// client.
func NewRedisCredentialStore(client redis.UniversalClient) *RedisCredentialStore {
	return &RedisCredentialStore{redis: client}
}

func credentialKey(realm, identityID string) string {
	if realm == "" {
		realm = "0"
	}
	return credentialKeyPrefix + realm + ":" + identityID
}

// Enroll stores cred for the identity, replacing any previous
// enrollment.
func (s *RedisCredentialStore) Enroll(ctx context.Context, realm, identityID string, cred OTPCredential) error {
	if s == nil || s.redis == nil {
		return ErrGateNotReady
	}
	if identityID == "" {
		return errors.New("identity id required")
	}
	if len(cred.Secret) == 0 {
		return errors.New("credential secret required")
	}

	createdAt := cred.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	fields := map[string]interface{}{
		"secret":       b32.EncodeToString(cred.Secret),
		"algorithm":    cred.Algorithm,
		"digits":       cred.Digits,
		"period":       cred.Period,
		"enabled":      strconv.FormatBool(cred.Enabled),
		"last_counter": cred.LastUsedCounter,
		"created_at":   createdAt.Unix(),
	}
	if err := s.redis.HSet(ctx, credentialKey(realm, identityID), fields).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}
	return nil
}

// GetOTPCredential returns the stored credential, or (nil, nil) when the
// identity is not enrolled.
func (s *RedisCredentialStore) GetOTPCredential(ctx context.Context, realm, identityID string) (*OTPCredential, error) {
	if s == nil || s.redis == nil {
		return nil, ErrGateNotReady
	}

	fields, err := s.redis.HGetAll(ctx, credentialKey(realm, identityID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	secret, err := b32.DecodeString(fields["secret"])
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt secret encoding", ErrCredentialUnavailable)
	}

	cred := &OTPCredential{
		Secret:    secret,
		Algorithm: fields["algorithm"],
	}
	cred.Digits, _ = strconv.Atoi(fields["digits"])
	cred.Period, _ = strconv.Atoi(fields["period"])
	cred.Enabled, _ = strconv.ParseBool(fields["enabled"])
	cred.LastUsedCounter, _ = strconv.ParseInt(fields["last_counter"], 10, 64)
	if unix, perr := strconv.ParseInt(fields["created_at"], 10, 64); perr == nil {
		cred.CreatedAt = time.Unix(unix, 0)
	}
	return cred, nil
}

// UpdateLastUsedCounter persists the replay-protection counter. HSet on
// one field keeps concurrent verifications from clobbering the rest of
// the credential.
func (s *RedisCredentialStore) UpdateLastUsedCounter(ctx context.Context, realm, identityID string, counter int64) error {
	if s == nil || s.redis == nil {
		return ErrGateNotReady
	}
	if err := s.redis.HSet(ctx, credentialKey(realm, identityID), "last_counter", counter).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}
	return nil
}

// Revoke removes the enrollment. Revoking an absent identity is a no-op.
func (s *RedisCredentialStore) Revoke(ctx context.Context, realm, identityID string) error {
	if s == nil || s.redis == nil {
		return ErrGateNotReady
	}
	if err := s.redis.Del(ctx, credentialKey(realm, identityID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}
	return nil
}

// MemoryCredentialStore is an in-process [CredentialProvider] for tests
// and demos.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]OTPCredential
}

// NewMemoryCredentialStore describes the newmemorycredentialstore operation and its observable behavior.
//
// NewMemoryCredentialStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: make(map[string]OTPCredential)}
}

// Enroll stores cred for the identity.
func (s *MemoryCredentialStore) Enroll(_ context.Context, realm, identityID string, cred OTPCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[credentialKey(realm, identityID)] = cred
	return nil
}

// GetOTPCredential returns the stored credential, or (nil, nil) when the
// identity is not enrolled.
func (s *MemoryCredentialStore) GetOTPCredential(_ context.Context, realm, identityID string) (*OTPCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[credentialKey(realm, identityID)]
	if !ok {
		return nil, nil
	}
	out := cred
	return &out, nil
}

// UpdateLastUsedCounter persists the replay-protection counter.
func (s *MemoryCredentialStore) UpdateLastUsedCounter(_ context.Context, realm, identityID string, counter int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[credentialKey(realm, identityID)]
	if !ok {
		return errors.New("identity not enrolled")
	}
	cred.LastUsedCounter = counter
	s.creds[credentialKey(realm, identityID)] = cred
	return nil
}

// Revoke removes the enrollment.
func (s *MemoryCredentialStore) Revoke(_ context.Context, realm, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, credentialKey(realm, identityID))
	return nil
}
