package security

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// maxKeyFileSize bounds what LoadKey will read.
const maxKeyFileSize = 1024

// LoadKey reads a hex-encoded master key.
func LoadKey(path string) ([]byte, error) {
	data, err := ReadSecretFile(path, maxKeyFileSize)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode key file %s: %w", path, err)
	}
	if err := ValidateKeyStrength(key); err != nil {
		return nil, err
	}
	return key, nil
}

// LoadOrCreateKey reads the master key at path, generating and saving a
// new one on first use. created reports whether a key was generated.
func LoadOrCreateKey(path string) (key []byte, created bool, err error) {
	key, err = LoadKey(path)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	key, err = GenerateKey(RecommendedKeySize)
	if err != nil {
		return nil, false, err
	}
	if err := WriteSecretFile(path, []byte(hex.EncodeToString(key)+"\n")); err != nil {
		return nil, false, fmt.Errorf("write key file: %w", err)
	}
	return key, true, nil
}
