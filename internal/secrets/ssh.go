package secrets

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/vsayer/materialize/pkg/catalog"
	"golang.org/x/crypto/ssh"
)

// KeyPair is one SSH key in authorized_keys and OpenSSH PEM form.
type KeyPair struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// KeySet is what an SSH connection stores as its secret. Two pairs allow
// rotating keys without downtime.
type KeySet struct {
	Primary   KeyPair `json:"primary"`
	Secondary KeyPair `json:"secondary"`
}

// GenerateKeySet creates a key set of two fresh ed25519 pairs.
func GenerateKeySet() (KeySet, error) {
	primary, err := generateKeyPair()
	if err != nil {
		return KeySet{}, err
	}
	secondary, err := generateKeyPair()
	if err != nil {
		return KeySet{}, err
	}
	return KeySet{Primary: primary, Secondary: secondary}, nil
}

func generateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate ssh key: %w", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to encode ssh public key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to encode ssh private key: %w", err)
	}
	return KeyPair{
		PublicKey:  strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))),
		PrivateKey: string(pem.EncodeToMemory(block)),
	}, nil
}

// Marshal encodes the key set for storage.
func (k KeySet) Marshal() ([]byte, error) {
	return json.Marshal(k)
}

// PublicKeys returns the public halves.
func (k KeySet) PublicKeys() catalog.SSHPublicKeys {
	return catalog.SSHPublicKeys{Primary: k.Primary.PublicKey, Secondary: k.Secondary.PublicKey}
}

// ParseKeySet decodes a stored key set and checks that both public keys are
// well-formed.
func ParseKeySet(raw []byte) (KeySet, error) {
	var k KeySet
	if err := json.Unmarshal(raw, &k); err != nil {
		return KeySet{}, fmt.Errorf("malformed ssh key set: %w", err)
	}
	for _, pair := range []struct {
		name string
		key  string
	}{{"primary", k.Primary.PublicKey}, {"secondary", k.Secondary.PublicKey}} {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pair.key)); err != nil {
			return KeySet{}, fmt.Errorf("malformed %s ssh public key: %w", pair.name, err)
		}
	}
	return k, nil
}
