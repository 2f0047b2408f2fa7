package wallet

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	sealPrefix  = "renmo-sealed-v1:"
	saltSize    = 16
	nonceSize   = 24
	scryptN     = 1 << 15
	scryptR     = 8
	scryptP     = 1
	sealKeySize = 32
)

var (
	errNotSealed = errors.New("payload is not sealed")

	// ErrWrongPassphrase means a sealed payload is intact but does not open
	// under the configured passphrase.
	ErrWrongPassphrase = errors.New("wallet payload does not open with this passphrase")
	// ErrPassphraseRequired means the slot holds a sealed payload but no
	// passphrase is configured.
	ErrPassphraseRequired = errors.New("wallet payload is sealed and no passphrase is configured")
)

func isSealed(payload []byte) bool {
	return bytes.HasPrefix(payload, []byte(sealPrefix))
}

// Sealer encrypts the serialized wallet collection at rest.
type Sealer interface {
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// PassphraseSealer seals payloads with NaCl secretbox under a key derived
// from a passphrase with scrypt. Every Seal call uses a fresh salt and nonce.
type PassphraseSealer struct {
	passphrase []byte
}

// NewPassphraseSealer returns nil when passphrase is empty so callers can
// pass the result straight to NewStore.
func NewPassphraseSealer(passphrase string) Sealer {
	if passphrase == "" {
		return nil
	}
	return &PassphraseSealer{passphrase: []byte(passphrase)}
}

func (s *PassphraseSealer) Seal(plain []byte) ([]byte, error) {
	var salt [saltSize]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	key, err := s.key(salt[:])
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 0, saltSize+nonceSize+len(plain)+secretbox.Overhead)
	raw = append(raw, salt[:]...)
	raw = append(raw, nonce[:]...)
	raw = secretbox.Seal(raw, plain, &nonce, key)

	out := make([]byte, len(sealPrefix)+base64.StdEncoding.EncodedLen(len(raw)))
	copy(out, sealPrefix)
	base64.StdEncoding.Encode(out[len(sealPrefix):], raw)
	return out, nil
}

func (s *PassphraseSealer) Open(sealed []byte) ([]byte, error) {
	if !isSealed(sealed) {
		return nil, errNotSealed
	}
	raw, err := base64.StdEncoding.DecodeString(string(sealed[len(sealPrefix):]))
	if err != nil {
		return nil, fmt.Errorf("decode sealed payload: %w", err)
	}
	if len(raw) < saltSize+nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("sealed payload too short")
	}
	key, err := s.key(raw[:saltSize])
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[saltSize:saltSize+nonceSize])
	plain, ok := secretbox.Open(nil, raw[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}

func (s *PassphraseSealer) key(salt []byte) (*[sealKeySize]byte, error) {
	derived, err := scrypt.Key(s.passphrase, salt, scryptN, scryptR, scryptP, sealKeySize)
	if err != nil {
		return nil, fmt.Errorf("derive seal key: %w", err)
	}
	var key [sealKeySize]byte
	copy(key[:], derived)
	return &key, nil
}
