// Package secrets seals .env values with age so task configuration can
// reference credentials without storing them in clear text.
package secrets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/dohr-michael/taskd/internal/config"
)

const (
	sealedPrefix = "ENC[age:"
	sealedSuffix = "]"
)

// ErrNoKey is returned when sealed values exist but no key file does.
var ErrNoKey = errors.New("age key not found")

// KeyPath returns the default key file: $TASKD_PATH/.age-key.
func KeyPath() string {
	return filepath.Join(config.TaskdPath(), ".age-key")
}

// Keyring seals and unseals values with a single X25519 identity.
type Keyring struct {
	identity *age.X25519Identity
}

// InitKeyring opens the key at path, generating it first when missing. The
// boolean reports whether a new key was written.
func InitKeyring(path string) (*Keyring, bool, error) {
	if _, err := os.Stat(path); err == nil {
		k, err := OpenKeyring(path)
		return k, false, err
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, false, fmt.Errorf("generate age identity: %w", err)
	}
	content := fmt.Sprintf("# taskd secrets key\n# public key: %s\n%s\n",
		identity.Recipient().String(), identity.String())

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, false, fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return nil, false, fmt.Errorf("write age key: %w", err)
	}
	return &Keyring{identity: identity}, true, nil
}

// OpenKeyring loads an existing key file.
func OpenKeyring(path string) (*Keyring, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoKey, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open age key: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse age key %s: %w", path, err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return &Keyring{identity: x}, nil
		}
	}
	return nil, fmt.Errorf("no X25519 identity in %s", path)
}

// Recipient returns the public key values are sealed to.
func (k *Keyring) Recipient() string {
	return k.identity.Recipient().String()
}

// Seal encrypts plaintext into an ENC[age:...] value.
func (k *Keyring) Seal(plaintext string) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, k.identity.Recipient())
	if err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()) + sealedSuffix, nil
}

// Unseal decrypts an ENC[age:...] value.
func (k *Keyring) Unseal(value string) (string, error) {
	if !IsSealed(value) {
		return "", errors.New("value is not sealed")
	}
	raw, err := base64.StdEncoding.DecodeString(value[len(sealedPrefix) : len(value)-len(sealedSuffix)])
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), k.identity)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	return string(plain), nil
}

// IsSealed reports whether s is an ENC[age:...] value.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, sealedPrefix) && strings.HasSuffix(s, sealedSuffix)
}

// UnsealEnv replaces every sealed environment variable with its plaintext
// and returns how many were replaced. The key is only loaded when at least
// one sealed value is present.
func UnsealEnv(keyPath string) (int, error) {
	var sealed []string
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		if IsSealed(v) {
			sealed = append(sealed, k)
		}
	}
	if len(sealed) == 0 {
		return 0, nil
	}

	k, err := OpenKeyring(keyPath)
	if err != nil {
		return 0, err
	}
	for i, name := range sealed {
		plain, err := k.Unseal(os.Getenv(name))
		if err != nil {
			return i, fmt.Errorf("unseal %s: %w", name, err)
		}
		if err := os.Setenv(name, plain); err != nil {
			return i, err
		}
	}
	return len(sealed), nil
}
