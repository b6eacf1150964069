// Package session persists the client's identity and preferences under a
// named profile. The identity cookie is the credential the server hashes into
// a persona, so it is stored AES-GCM encrypted with a machine-derived key;
// preferences are plain JSON beside it.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Identity ties a profile to one server, room and cookie. The same cookie
// always yields the same persona on a given server.
type Identity struct {
	ServerURL string `json:"server_url"`
	Room      string `json:"room"`
	Cookie    string `json:"cookie"`
}

// Prefs are the user's local preferences. MutedUsers holds per-connection
// userids; since a returning user gets a fresh id, persisted mutes only help
// within a session that reconnects quickly. Accepted limitation.
type Prefs struct {
	Lang       string   `json:"lang"`
	Volume     int      `json:"volume"`
	Automute   bool     `json:"automute"`
	MutedUsers []string `json:"muted_users"`
	Theme      string   `json:"theme"`
}

// DefaultPrefs derives the initial language from the LANG environment the
// way the web client derives it from the browser locale.
func DefaultPrefs() Prefs {
	lang := "en"
	if env := os.Getenv("LANG"); len(env) >= 2 {
		switch env[:2] {
		case "fr", "es", "de":
			lang = env[:2]
		}
	}
	return Prefs{Lang: lang, Volume: 50, Theme: "cozy"}
}

// NewCookie generates a fresh random identity cookie.
func NewCookie() (string, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func GetConfigDir(profileName string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "loultcli", profileName)
}

func getEncryptionKey() []byte {
	paths := []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}
	var id string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err == nil {
			id = strings.TrimSpace(string(data))
			break
		}
	}

	if id == "" {
		hostname, _ := os.Hostname()
		id = hostname
	}

	hash := sha256.Sum256([]byte(id))
	return hash[:]
}

func encrypt(data []byte) (string, error) {
	key := getEncryptionKey()
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func decrypt(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	key := getEncryptionKey()
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// LoadIdentity reads the profile's identity, or nil when none is stored or
// it cannot be decrypted on this machine.
func LoadIdentity(profileName string) *Identity {
	configDir := GetConfigDir(profileName)
	if configDir == "" {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(configDir, "identity.json"))
	if err != nil {
		return nil
	}

	decrypted, err := decrypt(string(data))
	if err != nil {
		return nil
	}

	var id Identity
	if err := json.Unmarshal(decrypted, &id); err != nil {
		return nil
	}
	return &id
}

func SaveIdentity(profileName string, id Identity) error {
	configDir := GetConfigDir(profileName)
	if configDir == "" {
		return fmt.Errorf("could not get config directory")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return err
	}

	data, err := json.Marshal(id)
	if err != nil {
		return err
	}

	encrypted, err := encrypt(data)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "identity.json"), []byte(encrypted), 0600)
}

// ClearIdentity drops the stored cookie; the next connection gets a fresh
// persona.
func ClearIdentity(profileName string) {
	configDir := GetConfigDir(profileName)
	if configDir != "" {
		os.Remove(filepath.Join(configDir, "identity.json"))
	}
}

// LoadPrefs reads the profile's preferences, falling back to defaults.
func LoadPrefs(profileName string) Prefs {
	prefs := DefaultPrefs()
	configDir := GetConfigDir(profileName)
	if configDir == "" {
		return prefs
	}

	data, err := os.ReadFile(filepath.Join(configDir, "prefs.json"))
	if err != nil {
		return prefs
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return DefaultPrefs()
	}
	return prefs
}

func SavePrefs(profileName string, prefs Prefs) error {
	configDir := GetConfigDir(profileName)
	if configDir == "" {
		return fmt.Errorf("could not get config directory")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "prefs.json"), data, 0600)
}
