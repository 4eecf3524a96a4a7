package integrity

import (
	"encoding/hex"
	"errors"
	"os"

	"golang.org/x/crypto/scrypt"
)

// Параметры scrypt для растяжки парольной фразы в ключ подписи.
// Соль фиксированная: два процесса с одной фразой обязаны получить один ключ.
const (
	scryptN   = 32768
	scryptR   = 8
	scryptP   = 1
	keyLen    = 32
	keyEnvVar = "INTEGRITY_KEY_DATA"
	keySalt   = "uav-memtrust.integrity.v1"
)

var ErrNoKeyMaterial = errors.New("no signing key material configured")

// LoadKey разрешает ключ подписи в порядке приоритета:
// hex-ключ из ENV > файл с hex-ключом > scrypt(passphrase).
// Ключ — общесистемная конфигурация, поэтому источники те же, что у
// остальных секретов стенда (ENV для контейнеров, файл для локальных прогонов).
func LoadKey(keyPath, passphrase string) ([]byte, error) {
	if data := os.Getenv(keyEnvVar); data != "" {
		return decodeHexKey(data)
	}
	if keyPath != "" {
		raw, err := os.ReadFile(keyPath)
		if err == nil {
			return decodeHexKey(string(raw))
		}
	}
	if passphrase != "" {
		return DeriveKey(passphrase)
	}
	return nil, ErrNoKeyMaterial
}

// DeriveKey растягивает парольную фразу в 32-байтовый ключ HMAC.
func DeriveKey(passphrase string) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), []byte(keySalt), scryptN, scryptR, scryptP, keyLen)
}

func decodeHexKey(s string) ([]byte, error) {
	trimmed := []byte(nil)
	for _, c := range []byte(s) {
		if c == '\n' || c == '\r' || c == ' ' || c == '\t' {
			continue
		}
		trimmed = append(trimmed, c)
	}
	key, err := hex.DecodeString(string(trimmed))
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, ErrNoKeyMaterial
	}
	return key, nil
}
