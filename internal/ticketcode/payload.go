package ticketcode

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
)

const (
	payloadVersion = "TKT1"
	tagSize        = 16
	keyInfo        = "ticket-qr-v1"
)

var (
	ErrMalformedPayload = errors.New("malformed ticket payload")
	ErrBadTag           = errors.New("ticket payload tag mismatch")
)

// Claims is what a scanned ticket code asserts.
type Claims struct {
	TicketNumber string
	EventID      uuid.UUID
	IssuedAt     time.Time
}

type wireClaims struct {
	Number   string `cbor:"1,keyasint"`
	EventID  []byte `cbor:"2,keyasint"`
	IssuedAt int64  `cbor:"3,keyasint"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("ticketcode: CBOR encoder initialization failed: " + err.Error())
	}
}

// Codec encodes and verifies ticket payloads. A payload is
//
//	TKT1.<base64url(cbor claims)>.<base64url(keyed blake3 tag)>
//
// where the tag key is derived from the signing secret with HKDF-SHA256.
type Codec struct {
	key [32]byte
}

func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("ticketcode: empty signing secret")
	}
	c := &Codec{}
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(reader, c.key[:]); err != nil {
		return nil, fmt.Errorf("ticketcode: derive key: %w", err)
	}
	return c, nil
}

func (c *Codec) Encode(claims Claims) (string, error) {
	body, err := encMode.Marshal(wireClaims{
		Number:   claims.TicketNumber,
		EventID:  claims.EventID[:],
		IssuedAt: claims.IssuedAt.Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("encode ticket claims: %w", err)
	}
	tag, err := c.tag(body)
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return payloadVersion + "." + enc.EncodeToString(body) + "." + enc.EncodeToString(tag), nil
}

// Decode verifies the tag and returns the claims.
func (c *Codec) Decode(payload string) (Claims, error) {
	parts := strings.Split(payload, ".")
	if len(parts) != 3 || parts[0] != payloadVersion {
		return Claims{}, ErrMalformedPayload
	}
	enc := base64.RawURLEncoding
	body, err := enc.DecodeString(parts[1])
	if err != nil {
		return Claims{}, ErrMalformedPayload
	}
	got, err := enc.DecodeString(parts[2])
	if err != nil {
		return Claims{}, ErrMalformedPayload
	}
	want, err := c.tag(body)
	if err != nil {
		return Claims{}, err
	}
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return Claims{}, ErrBadTag
	}

	var wc wireClaims
	if err := cbor.Unmarshal(body, &wc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	eventID, err := uuid.FromBytes(wc.EventID)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return Claims{
		TicketNumber: wc.Number,
		EventID:      eventID,
		IssuedAt:     time.Unix(wc.IssuedAt, 0).UTC(),
	}, nil
}

func (c *Codec) tag(body []byte) ([]byte, error) {
	hasher, err := blake3.NewKeyed(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("ticketcode: keyed hasher: %w", err)
	}
	hasher.Write(body)
	return hasher.Sum(nil)[:tagSize], nil
}
