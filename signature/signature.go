// Package signature authenticates the gateway hop with Standard Webhooks
// HMAC-SHA256 headers: the sending node signs each attempt and the receiving
// node verifies before the message enters the pipeline.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// SecretPrefix is the prefix for Standard Webhooks symmetric secrets
	SecretPrefix = "whsec_"

	// Version is the only scheme produced and accepted
	Version = "v1"

	// MinSecretBytes is the minimum secret size (192 bits)
	MinSecretBytes = 24

	// MaxSecretBytes is the maximum secret size (512 bits)
	MaxSecretBytes = 64

	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"

	// DefaultTolerance bounds the clock skew accepted by Verify
	DefaultTolerance = 5 * time.Minute
)

var (
	ErrMissingHeaders = errors.New("missing signature headers")
	ErrStale          = errors.New("signature timestamp outside tolerance")
	ErrMismatch       = errors.New("no matching signature")
)

// Secret is a decoded signing secret
type Secret struct {
	raw []byte
}

// ParseSecret decodes a whsec_-prefixed base64 secret
func ParseSecret(encoded string) (Secret, error) {
	if !strings.HasPrefix(encoded, SecretPrefix) {
		return Secret{}, fmt.Errorf("secret must start with %s prefix", SecretPrefix)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encoded, SecretPrefix))
	if err != nil {
		return Secret{}, fmt.Errorf("decoding base64 secret: %w", err)
	}
	if len(raw) < MinSecretBytes || len(raw) > MaxSecretBytes {
		return Secret{}, fmt.Errorf("secret size must be between %d and %d bytes", MinSecretBytes, MaxSecretBytes)
	}

	return Secret{raw: raw}, nil
}

// Sign returns "v1,<base64 hmac>" over {id}.{unix timestamp}.{payload}
func (s Secret) Sign(id string, ts time.Time, payload []byte) (string, error) {
	if strings.Contains(id, ".") {
		return "", fmt.Errorf("signing payload: id must not contain '.'")
	}
	return Version + "," + base64.StdEncoding.EncodeToString(s.mac(id, ts.Unix(), payload)), nil
}

func (s Secret) mac(id string, unix int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, s.raw)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(strconv.FormatInt(unix, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// Apply sets the three signature headers on h
func (s Secret) Apply(h http.Header, id string, ts time.Time, payload []byte) error {
	sig, err := s.Sign(id, ts, payload)
	if err != nil {
		return err
	}
	h.Set(HeaderID, id)
	h.Set(HeaderTimestamp, strconv.FormatInt(ts.Unix(), 10))
	h.Set(HeaderSignature, sig)
	return nil
}

// Verify checks the signature headers in h against payload.
// The signature header may carry several space-delimited values; any v1 match is accepted.
func (s Secret) Verify(h http.Header, payload []byte, now time.Time, tolerance time.Duration) error {
	id := h.Get(HeaderID)
	tsRaw := h.Get(HeaderTimestamp)
	sigs := h.Get(HeaderSignature)
	if id == "" || tsRaw == "" || sigs == "" {
		return ErrMissingHeaders
	}

	unix, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing signature timestamp: %w", err)
	}
	skew := now.Sub(time.Unix(unix, 0))
	if skew > tolerance || skew < -tolerance {
		return ErrStale
	}

	expected := s.mac(id, unix, payload)
	for _, part := range strings.Fields(sigs) {
		version, encoded, ok := strings.Cut(part, ",")
		if !ok || version != Version {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrMismatch
}
