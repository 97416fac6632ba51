// Package wallet validates Stellar account identifiers ("G..." strkeys).
//
// Only the encoding is checked: version byte, length and CRC16 checksum.
// Possession of the key is never proven.
package wallet

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"strings"
)

// ErrInvalidPublicKey is returned for anything that is not an account strkey.
var ErrInvalidPublicKey = errors.New("wallet: invalid stellar public key")

const (
	versionAccountID byte = 6 << 3 // 'G'
	rawKeyLen             = 32
	encodedLen            = 56
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ValidatePublicKey returns the trimmed key when it is a well-formed account
// strkey, or ErrInvalidPublicKey.
func ValidatePublicKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if len(key) != encodedLen || key[0] != 'G' {
		return "", ErrInvalidPublicKey
	}
	raw, err := encoding.DecodeString(key)
	if err != nil || len(raw) != 1+rawKeyLen+2 {
		return "", ErrInvalidPublicKey
	}
	if raw[0] != versionAccountID {
		return "", ErrInvalidPublicKey
	}
	payload, sum := raw[:1+rawKeyLen], raw[1+rawKeyLen:]
	if binary.LittleEndian.Uint16(sum) != crc16XModem(payload) {
		return "", ErrInvalidPublicKey
	}
	return key, nil
}

// EncodePublicKey renders a raw ed25519 public key as an account strkey.
func EncodePublicKey(raw [rawKeyLen]byte) string {
	buf := make([]byte, 0, 1+rawKeyLen+2)
	buf = append(buf, versionAccountID)
	buf = append(buf, raw[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, crc16XModem(buf))
	return encoding.EncodeToString(buf)
}

// Mask shortens a key or secret for display: first 4 and last 4 characters.
func Mask(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func crc16XModem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
