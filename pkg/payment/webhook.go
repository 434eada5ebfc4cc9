package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const SignatureHeader = "Payment-Signature"

var (
	ErrMissingSignature = errors.New("webhook: missing signature header")
	ErrInvalidHeader    = errors.New("webhook: malformed signature header")
	ErrNoValidSignature = errors.New("webhook: no signature matches the payload")
	ErrTimestampExpired = errors.New("webhook: timestamp outside tolerance")
)

// ComputeSignature returns the hex HMAC-SHA256 of "<timestamp>.<payload>".
func ComputeSignature(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignHeader builds a header value the way the provider does.
func SignHeader(secret string, timestamp int64, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, ComputeSignature(secret, timestamp, payload))
}

// VerifySignature checks a "t=<unix>,v1=<hex>[,v1=<hex>...]" header against
// payload. A zero tolerance disables the timestamp check.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}

	var (
		timestamp  int64
		haveTime   bool
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrInvalidHeader
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrInvalidHeader
			}
			timestamp, haveTime = ts, true
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}
	if !haveTime || len(signatures) == 0 {
		return ErrInvalidHeader
	}

	expected, _ := hex.DecodeString(ComputeSignature(secret, timestamp, payload))
	matched := false
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			matched = true
			break
		}
	}
	if !matched {
		return ErrNoValidSignature
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return ErrTimestampExpired
		}
	}
	return nil
}

// ConstructEvent verifies the signature and decodes the envelope.
func ConstructEvent(payload []byte, header, secret string, tolerance time.Duration, now time.Time) (*Event, error) {
	if err := VerifySignature(payload, header, secret, tolerance, now); err != nil {
		return nil, err
	}
	event, err := ParseEvent(payload)
	if err != nil {
		return nil, fmt.Errorf("webhook: decode event: %w", err)
	}
	return event, nil
}
