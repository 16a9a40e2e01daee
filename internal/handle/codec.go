// Package handle decodes the (type, version) metadata carried in bytes 30
// and 31 of a 32-byte ciphertext handle. It is a total function over any
// input shape: malformed input yields ErrInvalidFormat rather than a panic,
// per the spec's "no allocation beyond the two integers" / "fails with
// InvalidFormat" requirement.
package handle

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ciphergraph/fhevm-dfg/pkg/models"
)

// ErrInvalidFormat is returned when the input is not a 32-byte,
// well-formed-hex value.
var ErrInvalidFormat = errors.New("handle: invalid format")

const handleLen = 32

// Decode extracts HandleMeta from a handle given either as a []byte or as
// a hex string (with or without a leading "0x"). Any other shape, or a
// byte slice/hex string not exactly 32 bytes long, returns ErrInvalidFormat.
func Decode(v any) (models.HandleMeta, error) {
	raw, err := toBytes(v)
	if err != nil {
		return models.HandleMeta{}, err
	}
	if len(raw) != handleLen {
		return models.HandleMeta{}, ErrInvalidFormat
	}
	return models.HandleMeta{
		Type:    int(raw[30]),
		Version: int(raw[31]),
	}, nil
}

// DecodeHex is a convenience wrapper for the common case of a hex string.
func DecodeHex(s string) (models.HandleMeta, error) {
	return Decode(s)
}

// IsHandle reports whether v decodes to a well-formed 32-byte handle.
func IsHandle(v any) bool {
	_, err := Decode(v)
	return err == nil
}

// Normalize returns the canonical lowercase "0x"-prefixed hex form of a
// 32-byte handle, for use as a map/identity key. ok is false when v is not
// a well-formed handle.
func Normalize(v any) (string, bool) {
	raw, err := toBytes(v)
	if err != nil || len(raw) != handleLen {
		return "", false
	}
	return "0x" + hex.EncodeToString(raw), true
}

func toBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case [32]byte:
		return x[:], nil
	case string:
		s := strings.TrimPrefix(x, "0x")
		s = strings.TrimPrefix(s, "0X")
		if len(s) != handleLen*2 {
			return nil, ErrInvalidFormat
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, ErrInvalidFormat
		}
		return b, nil
	default:
		return nil, ErrInvalidFormat
	}
}
