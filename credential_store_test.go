package otpgate

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) *RedisCredentialStore {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCredentialStore(client)
}

func TestRedisCredentialRoundTrip(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	err := store.Enroll(ctx, "main", "alice", OTPCredential{
		Secret:          []byte("12345678901234567890"),
		Algorithm:       "SHA256",
		Digits:          8,
		Period:          60,
		Enabled:         true,
		LastUsedCounter: 41,
		CreatedAt:       created,
	})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}

	cred, err := store.GetOTPCredential(ctx, "main", "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cred == nil {
		t.Fatal("expected credential")
	}
	if !bytes.Equal(cred.Secret, []byte("12345678901234567890")) {
		t.Fatalf("secret mismatch: %q", cred.Secret)
	}
	if cred.Algorithm != "SHA256" || cred.Digits != 8 || cred.Period != 60 {
		t.Fatalf("parameters mismatch: %+v", cred)
	}
	if !cred.Enabled {
		t.Fatal("expected enabled")
	}
	if cred.LastUsedCounter != 41 {
		t.Fatalf("expected counter 41, got %d", cred.LastUsedCounter)
	}
	if !cred.CreatedAt.Equal(created) {
		t.Fatalf("expected created %v, got %v", created, cred.CreatedAt)
	}
}

func TestRedisCredentialNotEnrolled(t *testing.T) {
	store := newRedisStore(t)

	cred, err := store.GetOTPCredential(context.Background(), "main", "nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cred != nil {
		t.Fatalf("expected (nil, nil) for unenrolled identity, got %+v", cred)
	}
}

func TestRedisCredentialCounterUpdate(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	err := store.Enroll(ctx, "main", "alice", OTPCredential{
		Secret:  []byte("s3cret"),
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}

	if err := store.UpdateLastUsedCounter(ctx, "main", "alice", 99); err != nil {
		t.Fatalf("update: %v", err)
	}

	cred, err := store.GetOTPCredential(ctx, "main", "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cred.LastUsedCounter != 99 {
		t.Fatalf("expected counter 99, got %d", cred.LastUsedCounter)
	}
	// The rest of the credential is untouched.
	if !bytes.Equal(cred.Secret, []byte("s3cret")) || !cred.Enabled {
		t.Fatalf("credential clobbered by counter update: %+v", cred)
	}
}

func TestRedisCredentialRevoke(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	if err := store.Enroll(ctx, "main", "alice", OTPCredential{Secret: []byte("s"), Enabled: true}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if err := store.Revoke(ctx, "main", "alice"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if cred, err := store.GetOTPCredential(ctx, "main", "alice"); err != nil || cred != nil {
		t.Fatalf("expected revoked, got cred=%+v err=%v", cred, err)
	}

	// Revoking again is a no-op.
	if err := store.Revoke(ctx, "main", "alice"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
}

func TestRedisCredentialRealmsIsolated(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	if err := store.Enroll(ctx, "realm-a", "alice", OTPCredential{Secret: []byte("a"), Enabled: true}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if cred, err := store.GetOTPCredential(ctx, "realm-b", "alice"); err != nil || cred != nil {
		t.Fatalf("expected realm isolation, got cred=%+v err=%v", cred, err)
	}
}

func TestRedisCredentialEnrollValidation(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	if err := store.Enroll(ctx, "main", "", OTPCredential{Secret: []byte("s")}); err == nil {
		t.Fatal("expected error for empty identity")
	}
	if err := store.Enroll(ctx, "main", "alice", OTPCredential{}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestRedisCredentialBackendDownWrapsError(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisCredentialStore(client)
	srv.Close()

	_, err := store.GetOTPCredential(context.Background(), "main", "alice")
	if !errors.Is(err, ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable, got %v", err)
	}
}

func TestMemoryCredentialStoreBehavesLikeRedis(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	if cred, err := store.GetOTPCredential(ctx, "main", "alice"); err != nil || cred != nil {
		t.Fatalf("expected (nil, nil), got %+v err=%v", cred, err)
	}

	if err := store.Enroll(ctx, "main", "alice", OTPCredential{Secret: []byte("s"), Enabled: true, LastUsedCounter: 3}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	cred, err := store.GetOTPCredential(ctx, "main", "alice")
	if err != nil || cred == nil || cred.LastUsedCounter != 3 {
		t.Fatalf("get: cred=%+v err=%v", cred, err)
	}

	// Returned credential is a copy; mutating it must not leak back.
	cred.LastUsedCounter = 999
	again, _ := store.GetOTPCredential(ctx, "main", "alice")
	if again.LastUsedCounter != 3 {
		t.Fatalf("stored credential mutated through returned copy: %d", again.LastUsedCounter)
	}

	if err := store.UpdateLastUsedCounter(ctx, "main", "alice", 7); err != nil {
		t.Fatalf("update: %v", err)
	}
	if cred, _ := store.GetOTPCredential(ctx, "main", "alice"); cred.LastUsedCounter != 7 {
		t.Fatalf("expected 7, got %d", cred.LastUsedCounter)
	}

	if err := store.UpdateLastUsedCounter(ctx, "main", "nobody", 1); err == nil {
		t.Fatal("expected error updating unenrolled identity")
	}

	if err := store.Revoke(ctx, "main", "alice"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if cred, _ := store.GetOTPCredential(ctx, "main", "alice"); cred != nil {
		t.Fatalf("expected revoked, got %+v", cred)
	}
}
