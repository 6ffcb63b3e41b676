package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformed is returned for tokens that are not two non-empty
	// base64url segments carrying a JSON payload.
	ErrMalformed = errors.New("malformed token")
	// ErrSignature is returned when the HMAC does not match.
	ErrSignature = errors.New("invalid token signature")
	// ErrExpired is returned when the payload is older than the max age or past its exp.
	ErrExpired = errors.New("token expired")
)

var b64 = base64.RawURLEncoding

// Timestamped payloads are subject to the envelope's max age.
type Timestamped interface {
	IssuedAtMillis() int64
}

// Expiring payloads are rejected once their expiry has passed.
// A zero expiry means the payload carries none.
type Expiring interface {
	ExpiresAtMillis() int64
}

type envelopeOptions struct {
	maxAge time.Duration
	now    func() time.Time
}

// EnvelopeOption configures an Envelope.
type EnvelopeOption func(*envelopeOptions)

// WithMaxAge rejects Timestamped payloads older than d.
func WithMaxAge(d time.Duration) EnvelopeOption {
	return func(o *envelopeOptions) { o.maxAge = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EnvelopeOption {
	return func(o *envelopeOptions) { o.now = now }
}

// Envelope signs and verifies JSON payloads of type T as
// base64url(json) "." base64url(hmac-sha256(key, first segment)).
type Envelope[T any] struct {
	key  []byte
	opts envelopeOptions
}

// NewEnvelope creates an envelope keyed with secret.
func NewEnvelope[T any](secret []byte, opts ...EnvelopeOption) *Envelope[T] {
	o := envelopeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Envelope[T]{key: secret, opts: o}
}

// Sign encodes payload and appends its signature.
func (e *Envelope[T]) Sign(payload T) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	encoded := b64.EncodeToString(data)
	return encoded + "." + e.signature(encoded), nil
}

// Verify checks the signature and freshness of token and returns its payload.
func (e *Envelope[T]) Verify(token string) (T, error) {
	var payload T

	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return payload, ErrMalformed
	}

	expected := e.signature(parts[0])
	if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(expected)) != 1 {
		return payload, ErrSignature
	}

	data, err := b64.DecodeString(parts[0])
	if err != nil {
		return payload, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	now := e.opts.now().UnixMilli()
	if ts, ok := any(payload).(Timestamped); ok && e.opts.maxAge > 0 {
		if now-ts.IssuedAtMillis() > e.opts.maxAge.Milliseconds() {
			return payload, ErrExpired
		}
	}
	if exp, ok := any(payload).(Expiring); ok {
		if at := exp.ExpiresAtMillis(); at != 0 && now > at {
			return payload, ErrExpired
		}
	}

	return payload, nil
}

func (e *Envelope[T]) signature(encodedPayload string) string {
	mac := hmac.New(sha256.New, e.key)
	mac.Write([]byte(encodedPayload))
	return b64.EncodeToString(mac.Sum(nil))
}
