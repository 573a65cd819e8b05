// Package decision models the attestation an off-chain evaluator produces
// when it judges a bounty attempt: the exchanged content, the outcome flag,
// a content digest and the evaluator's signature. The chain verifies the
// attestation; producing it is entirely external.
package decision

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
)

const (
	// MaxContentLen caps the message and response fields.
	MaxContentLen = 5000
	// MaxSessionIDLen caps the session identifier.
	MaxSessionIDLen = 100
	// TimestampTolerance bounds how far (seconds, either direction) an
	// attestation timestamp may sit from the verifying clock.
	TimestampTolerance = 3600
	// SignatureSize is the fixed ed25519 signature length.
	SignatureSize = ed25519.SignatureSize
	// DigestSize is the fixed digest length.
	DigestSize = 32
)

var (
	ErrInputTooLong        = errors.New("input exceeds maximum length")
	ErrInvalidSessionID    = errors.New("invalid session id format")
	ErrInvalidInput        = errors.New("invalid attestation field")
	ErrInvalidTimestamp    = errors.New("invalid timestamp")
	ErrTimestampOutOfRange = errors.New("timestamp outside acceptable range")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrDigestMismatch      = errors.New("decision digest mismatch")
)

// Attestation is the full decision tuple as submitted to the chain.
type Attestation struct {
	Message    string
	Response   string
	Successful bool
	UserID     uint64
	SessionID  string
	Timestamp  int64

	Digest    []byte
	Signature []byte
	// Authority is the account id of the claimed decision signer.
	Authority string
}

// ValidateShape checks every field bound that does not require chain state:
// content ceilings, session id charset, timestamp window against nowUnix,
// and the fixed digest/signature sizes.
func (a *Attestation) ValidateShape(nowUnix int64) error {
	if len(a.Message) > MaxContentLen {
		return fmt.Errorf("%w: message is %d bytes, max %d", ErrInputTooLong, len(a.Message), MaxContentLen)
	}
	if len(a.Response) > MaxContentLen {
		return fmt.Errorf("%w: response is %d bytes, max %d", ErrInputTooLong, len(a.Response), MaxContentLen)
	}
	if len(a.SessionID) > MaxSessionIDLen {
		return fmt.Errorf("%w: session id is %d bytes, max %d", ErrInputTooLong, len(a.SessionID), MaxSessionIDLen)
	}
	if a.SessionID == "" || !validSessionID(a.SessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, a.SessionID)
	}
	if a.UserID == 0 {
		return fmt.Errorf("%w: user id must be > 0", ErrInvalidInput)
	}
	if a.Timestamp <= 0 {
		return ErrInvalidTimestamp
	}
	delta := nowUnix - a.Timestamp
	if delta < -TimestampTolerance || delta > TimestampTolerance {
		return fmt.Errorf("%w: attestation at %d, clock at %d", ErrTimestampOutOfRange, a.Timestamp, nowUnix)
	}
	if len(a.Digest) != DigestSize {
		return fmt.Errorf("%w: digest must be %d bytes", ErrInvalidInput, DigestSize)
	}
	if len(a.Signature) != SignatureSize {
		return fmt.Errorf("%w: signature must be %d bytes", ErrInvalidSignature, SignatureSize)
	}
	if a.Authority == "" {
		return fmt.Errorf("%w: missing signing authority", ErrInvalidInput)
	}
	return nil
}

// CheckDigest recomputes the content digest and compares it against the
// submitted one. This is the primary integrity check on an attestation.
func (a *Attestation) CheckDigest() error {
	want := Digest(a.Message, a.Response, a.Successful, a.UserID, a.SessionID, a.Timestamp)
	if !bytes.Equal(a.Digest, want[:]) {
		return ErrDigestMismatch
	}
	return nil
}

// SignBytes returns the signature preimage for this attestation.
func (a *Attestation) SignBytes() []byte {
	return SignBytes(a.Message, a.Response, a.Successful, a.UserID, a.SessionID, a.Timestamp)
}

func validSessionID(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

// Verifier checks an attestation signature against the configured decision
// authority key. The interface keeps signature cryptography external to the
// settlement state machine; the production implementation is ed25519.
type Verifier interface {
	Verify(pub []byte, msg []byte, sig []byte) bool
}

// Ed25519Verifier verifies attestation signatures with crypto/ed25519.
type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(pub, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}
