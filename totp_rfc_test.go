package otpgate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// RFC 6238 appendix B reference vectors. The shared secret is the ASCII
// seed repeated to the hash's block-appropriate length.
var rfc6238Seed = []byte("12345678901234567890")

func rfcSecret(algorithm string) []byte {
	switch algorithm {
	case "SHA256":
		return []byte("12345678901234567890123456789012")
	case "SHA512":
		return []byte("1234567890123456789012345678901234567890123456789012345678901234")
	default:
		return rfc6238Seed
	}
}

func rfcVerifier(t *testing.T, at int64) *TOTPVerifier {
	t.Helper()
	v := NewTOTPVerifier(TOTPConfig{
		Digits: 8,
		Period: 30,
		Skew:   0,
	}, nil)
	v.now = func() time.Time { return time.Unix(at, 0).UTC() }
	return v
}

func TestTOTPReferenceVectors(t *testing.T) {
	vectors := []struct {
		at        int64
		algorithm string
		want      string
	}{
		{59, "SHA1", "94287082"},
		{59, "SHA256", "46119246"},
		{59, "SHA512", "90693936"},
		{1111111109, "SHA1", "07081804"},
		{1111111111, "SHA1", "14050471"},
		{1234567890, "SHA1", "89005924"},
		{2000000000, "SHA1", "69279037"},
		{20000000000, "SHA1", "65353130"},
		{20000000000, "SHA256", "77737706"},
		{20000000000, "SHA512", "47863826"},
	}

	for _, vec := range vectors {
		v := rfcVerifier(t, vec.at)
		cred := &OTPCredential{
			Secret:    rfcSecret(vec.algorithm),
			Algorithm: vec.algorithm,
			Digits:    8,
			Period:    30,
			Enabled:   true,
		}

		ok, err := v.Verify(context.Background(), Identity{ID: "u"}, cred, vec.want)
		if err != nil {
			t.Fatalf("t=%d %s: %v", vec.at, vec.algorithm, err)
		}
		if !ok {
			t.Fatalf("t=%d %s: expected %s to verify", vec.at, vec.algorithm, vec.want)
		}

		ok, err = v.Verify(context.Background(), Identity{ID: "u"}, cred, "00000000")
		if err != nil || ok {
			t.Fatalf("t=%d %s: expected 00000000 to fail, got ok=%v err=%v", vec.at, vec.algorithm, ok, err)
		}
	}
}

func TestTOTPSkewWindow(t *testing.T) {
	// "94287082" belongs to the step covering t=59. One step later it is
	// only valid with skew >= 1.
	cred := &OTPCredential{Secret: rfc6238Seed, Digits: 8, Period: 30, Enabled: true}

	strict := rfcVerifier(t, 89)
	if ok, _ := strict.Verify(context.Background(), Identity{ID: "u"}, cred, "94287082"); ok {
		t.Fatal("expected previous step rejected with zero skew")
	}

	lenient := rfcVerifier(t, 89)
	lenient.config.Skew = 1
	if ok, err := lenient.Verify(context.Background(), Identity{ID: "u"}, cred, "94287082"); err != nil || !ok {
		t.Fatalf("expected previous step accepted with skew 1, got ok=%v err=%v", ok, err)
	}
}

func TestTOTPCredentialFieldsOverrideConfig(t *testing.T) {
	// Verifier configured for 6 digits; the credential demands 8 and its
	// own period. The credential wins.
	v := NewTOTPVerifier(TOTPConfig{Digits: 6, Period: 60}, nil)
	v.now = func() time.Time { return time.Unix(59, 0).UTC() }

	cred := &OTPCredential{Secret: rfc6238Seed, Digits: 8, Period: 30, Enabled: true}
	if ok, err := v.Verify(context.Background(), Identity{ID: "u"}, cred, "94287082"); err != nil || !ok {
		t.Fatalf("expected credential digits/period to apply, got ok=%v err=%v", ok, err)
	}
}

func TestTOTPInputRejection(t *testing.T) {
	v := rfcVerifier(t, 59)
	cred := &OTPCredential{Secret: rfc6238Seed, Digits: 8, Period: 30, Enabled: true}

	for _, code := range []string{"", "9428708", "942870822", "9428708a", "94 87082"} {
		ok, err := v.Verify(context.Background(), Identity{ID: "u"}, cred, code)
		if err != nil || ok {
			t.Fatalf("code %q: expected silent rejection, got ok=%v err=%v", code, ok, err)
		}
	}

	// Surrounding whitespace is tolerated.
	if ok, err := v.Verify(context.Background(), Identity{ID: "u"}, cred, "  94287082  "); err != nil || !ok {
		t.Fatalf("expected trimmed code accepted, got ok=%v err=%v", ok, err)
	}
}

func TestTOTPUnsupportedAlgorithm(t *testing.T) {
	v := rfcVerifier(t, 59)
	cred := &OTPCredential{Secret: rfc6238Seed, Algorithm: "MD5", Digits: 8, Period: 30, Enabled: true}

	if _, err := v.Verify(context.Background(), Identity{ID: "u"}, cred, "94287082"); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}

func TestTOTPEmptySecretIsError(t *testing.T) {
	v := rfcVerifier(t, 59)
	if _, err := v.Verify(context.Background(), Identity{ID: "u"}, &OTPCredential{}, "94287082"); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := v.Verify(context.Background(), Identity{ID: "u"}, nil, "94287082"); err == nil {
		t.Fatal("expected error for nil credential")
	}
}

func TestTOTPReplayProtection(t *testing.T) {
	ctx := context.Background()
	creds := NewMemoryCredentialStore()
	err := creds.Enroll(ctx, "main", "alice", OTPCredential{
		Secret:  rfc6238Seed,
		Digits:  8,
		Period:  30,
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}

	v := NewTOTPVerifier(TOTPConfig{Digits: 8, Period: 30, EnforceReplayProtection: true}, creds)
	v.now = func() time.Time { return time.Unix(59, 0).UTC() }
	identity := Identity{ID: "alice", Realm: "main"}

	cred, _ := creds.GetOTPCredential(ctx, "main", "alice")
	if ok, err := v.Verify(ctx, identity, cred, "94287082"); err != nil || !ok {
		t.Fatalf("first use: expected success, got ok=%v err=%v", ok, err)
	}

	// Same code against the refreshed credential is a replay.
	cred, _ = creds.GetOTPCredential(ctx, "main", "alice")
	if cred.LastUsedCounter != 1 {
		t.Fatalf("expected persisted counter 1, got %d", cred.LastUsedCounter)
	}
	if ok, err := v.Verify(ctx, identity, cred, "94287082"); err != nil || ok {
		t.Fatalf("replay: expected plain rejection, got ok=%v err=%v", ok, err)
	}
}

func TestTOTPReplayCounterPersistFailureFailsClosed(t *testing.T) {
	v := NewTOTPVerifier(TOTPConfig{Digits: 8, Period: 30, EnforceReplayProtection: true},
		failingProvider{err: errors.New("store down")})
	v.now = func() time.Time { return time.Unix(59, 0).UTC() }

	cred := &OTPCredential{Secret: rfc6238Seed, Digits: 8, Period: 30, Enabled: true}
	ok, err := v.Verify(context.Background(), Identity{ID: "alice"}, cred, "94287082")
	if ok {
		t.Fatal("expected verification withheld when the counter cannot be persisted")
	}
	if !errors.Is(err, ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "store down") {
		t.Fatalf("expected cause preserved, got %v", err)
	}
}
