package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/mwzzzh/devicegen/internal/core/ports"
)

// HeaderSigner implements ports.SignatureSigner. The real make_headers
// primitive is an opaque third-party collaborator (spec.md Out-of-scope);
// this adapter is the stand-in that lets the rest of the handshake be
// built and tested against a concrete, deterministic implementation.
// Swapping in the real primitive means implementing ports.SignatureSigner
// in one file -- nothing else in the registration package changes.
//
// Sign is a pure function: for the same five inputs it always returns
// the same five outputs, and it performs no I/O and caches nothing.
type HeaderSigner struct {
	key []byte // derived once, reused across calls
}

// NewHeaderSigner derives a fixed-size key from secret via HKDF-SHA256
// and returns a ready-to-use signer. secret is process-wide
// configuration, not per-request state.
func NewHeaderSigner(secret string) (*HeaderSigner, error) {
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("devicegen-header-signer"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive signer key: %w", err)
	}
	return &HeaderSigner{key: key}, nil
}

var _ ports.SignatureSigner = (*HeaderSigner)(nil)

// Sign computes the five request-integrity header values over
// (deviceID, ts, signCount, queryString, bodyHex). queryString and
// bodyHex must be byte-for-byte identical to what is transmitted on the
// wire; see the package doc comment.
func (s *HeaderSigner) Sign(deviceID string, ts, signCount int64, queryString, bodyHex string) (stub, khronos, argus, ladon, gorgon string) {
	stub = s.mac("stub", deviceID, ts, signCount, queryString, bodyHex)[:16]
	khronos = fmt.Sprintf("%d", ts)
	argus = s.mac("argus", deviceID, ts, signCount, queryString, bodyHex)
	ladon = s.mac("ladon", deviceID, ts, signCount, queryString, bodyHex)[:32]
	gorgon = s.mac("gorgon", deviceID, ts, signCount, queryString, bodyHex)[:40]
	return
}

func (s *HeaderSigner) mac(label, deviceID string, ts, signCount int64, queryString, bodyHex string) string {
	h := hmac.New(sha256.New, s.key)
	fmt.Fprintf(h, "%s|%s|%d|%d|%s|%s", label, deviceID, ts, signCount, queryString, bodyHex)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}

// PublicKeyBase64 canonically base64-encodes raw key material for
// transmission in the tt-ticket-guard-public-key header.
func PublicKeyBase64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
