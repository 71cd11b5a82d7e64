package session

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

const sessionFormatVersionV1 = 1

const macSize = sha256.Size

// ErrTokenInvalid reports a session token that failed decoding or
// signature verification. The stored session is treated as absent.
var ErrTokenInvalid = errors.New("invalid session token")

// Encode serializes a session into its versioned binary form.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionV1)

	if len(s.AccountIDs) > 255 {
		return nil, errors.New("too many session accounts")
	}
	buf.WriteByte(byte(len(s.AccountIDs)))
	for _, id := range s.AccountIDs {
		if len(id) > 255 {
			return nil, errors.New("account id too long")
		}
		buf.WriteByte(byte(len(id)))
		buf.WriteString(id)
	}

	if len(s.CurrentAccountID) > 255 {
		return nil, errors.New("current account id too long")
	}
	buf.WriteByte(byte(len(s.CurrentAccountID)))
	buf.WriteString(s.CurrentAccountID)

	return buf.Bytes(), nil
}

// Decode parses the versioned binary form and re-checks the membership
// invariant.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionV1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	count, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(count); i++ {
		idLen, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		id := make([]byte, idLen)
		if _, err := io.ReadFull(reader, id); err != nil {
			return nil, err
		}
		s.AccountIDs = append(s.AccountIDs, string(id))
	}

	currentLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	current := make([]byte, currentLen)
	if _, err := io.ReadFull(reader, current); err != nil {
		return nil, err
	}
	s.CurrentAccountID = string(current)

	if reader.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}
	if s.CurrentAccountID != "" && !s.Contains(s.CurrentAccountID) {
		return nil, errors.New("session current id not a member")
	}

	return s, nil
}

// Encoder signs session blobs into the opaque cookie value. The token
// carries no expiry of its own; staleness is handled by the bearer
// tokens.
type Encoder struct {
	secret []byte
}

// NewEncoder validates the signing secret.
func NewEncoder(secret []byte) (*Encoder, error) {
	if len(secret) < 16 {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	return &Encoder{secret: secret}, nil
}

// EncodeSigned serializes and signs a session into a cookie-safe token.
func (e *Encoder) EncodeSigned(s *Session) (string, error) {
	blob, err := Encode(s)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, e.secret)
	_, _ = mac.Write(blob)
	signed := append(blob, mac.Sum(nil)...)

	return base64.RawURLEncoding.EncodeToString(signed), nil
}

// DecodeSigned verifies the signature and parses the session. Every
// failure mode returns ErrTokenInvalid.
func (e *Encoder) DecodeSigned(token string) (*Session, error) {
	signed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if len(signed) <= macSize {
		return nil, ErrTokenInvalid
	}

	blob := signed[:len(signed)-macSize]
	mac := hmac.New(sha256.New, e.secret)
	_, _ = mac.Write(blob)
	if !hmac.Equal(mac.Sum(nil), signed[len(signed)-macSize:]) {
		return nil, ErrTokenInvalid
	}

	s, err := Decode(blob)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return s, nil
}
