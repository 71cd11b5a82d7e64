package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const flowSecretBytes = 32

// NewFlowSecret returns a 32-byte random secret, hex encoded. Flow
// secrets key the ephemeral token stores and are handed to users inside
// verification and reset links.
func NewFlowSecret() (string, error) {
	raw := make([]byte, flowSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// HashBackupCode derives the stored form of a backup code. Plaintext
// codes are never persisted.
func HashBackupCode(code string) [32]byte {
	return sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(code))))
}

// MatchBackupCode compares a candidate code against a stored hash in
// constant time.
func MatchBackupCode(code string, hash [32]byte) bool {
	computed := HashBackupCode(code)
	return subtle.ConstantTimeCompare(computed[:], hash[:]) == 1
}

const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewBackupCode generates a single-use backup code of the given length
// from an unambiguous alphabet.
func NewBackupCode(length int) (string, error) {
	if length < 8 || length > 32 {
		return "", errors.New("invalid backup code length")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
