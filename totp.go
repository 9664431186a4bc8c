package otpgate

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"strings"
	"time"
)

// TOTPVerifier is the built-in [Verifier]: RFC 6238 time-based one-time
// codes over the credential's HMAC secret, with a configurable skew
// window and optional replay protection through the credential
// provider's last-used counter.
type TOTPVerifier struct {
	config   TOTPConfig
	provider CredentialProvider
	now      func() time.Time
}

// NewTOTPVerifier creates the built-in TOTP verifier. provider is only
// consulted for replay-counter updates and may be nil when
// EnforceReplayProtection is false.
func NewTOTPVerifier(cfg TOTPConfig, provider CredentialProvider) *TOTPVerifier {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if cfg.Digits <= 0 {
		cfg.Digits = 6
	}
	if cfg.Period <= 0 {
		cfg.Period = 30
	}
	return &TOTPVerifier{
		config:   cfg,
		provider: provider,
		now:      time.Now,
	}
}

// Verify checks code against the credential's secret. A replayed counter
// is reported as a plain mismatch; backend failures while persisting the
// replay counter are returned as errors so the gate fails closed.
func (v *TOTPVerifier) Verify(ctx context.Context, identity Identity, cred *OTPCredential, code string) (bool, error) {
	if v == nil {
		return false, ErrGateNotReady
	}
	if cred == nil || len(cred.Secret) == 0 {
		return false, errors.New("empty totp secret")
	}

	digits := cred.Digits
	if digits <= 0 {
		digits = v.config.Digits
	}
	period := cred.Period
	if period <= 0 {
		period = v.config.Period
	}
	algorithm := cred.Algorithm
	if algorithm == "" {
		algorithm = v.config.Algorithm
	}

	trimmed := strings.TrimSpace(code)
	if len(trimmed) != digits || !isNumericString(trimmed) {
		return false, nil
	}

	baseCounter := v.now().Unix() / int64(period)
	for step := -v.config.Skew; step <= v.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(cred.Secret, counter, digits, algorithm)
		if err != nil {
			return false, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) != 1 {
			continue
		}

		if v.config.EnforceReplayProtection {
			if counter <= cred.LastUsedCounter {
				return false, nil
			}
			if v.provider != nil {
				if err := v.provider.UpdateLastUsedCounter(ctx, identity.Realm, identity.ID, counter); err != nil {
					return false, fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
				}
			}
		}
		return true, nil
	}

	return false, nil
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	code := bin % mod
	return fmt.Sprintf("%0*d", digits, code), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func isNumericString(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
