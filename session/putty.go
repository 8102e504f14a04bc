package session

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/ssh"
)

// PuTTY stores keys in its own .ppk container rather than the PEM/OpenSSH
// formats x/crypto understands. Rather than telling the user to run
// puttygen, the key is converted in memory: the container is parsed,
// decrypted with PuTTY's KDF (SHA-1 based for v2, Argon2 for v3), MAC
// checked, and the inner SSH wire blobs turned into a native signer.

const ppkMagic = "PuTTY-User-Key-File-"

// isPuTTYKey reports whether data looks like a .ppk container.
func isPuTTYKey(data []byte) bool {
	return bytes.HasPrefix(data, []byte(ppkMagic))
}

type puttyKey struct {
	version    int
	alg        string
	encryption string
	comment    string
	public     []byte
	private    []byte // decrypted
	mac        []byte

	kdf           string
	argonMemory   uint32
	argonPasses   uint32
	argonParallel uint8
	argonSalt     []byte
}

// parsePuTTYKey converts a .ppk file to a signer without touching disk.
func parsePuTTYKey(data []byte, passphrase string) (ssh.Signer, error) {
	k, err := readPPK(data)
	if err != nil {
		return nil, err
	}

	macKey, err := k.decrypt(passphrase)
	if err != nil {
		return nil, err
	}

	if err := k.checkMAC(macKey); err != nil {
		return nil, err
	}

	key, err := k.privateKey()
	if err != nil {
		return nil, err
	}

	return ssh.NewSignerFromKey(key)
}

func readPPK(data []byte) (*puttyKey, error) {
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], ppkMagic) {
		return nil, errors.New("not a PuTTY key file")
	}

	k := &puttyKey{}

	readBlob := func(start, count int) ([]byte, error) {
		if start+count > len(lines) {
			return nil, errors.New("truncated PuTTY key file")
		}

		return base64.StdEncoding.DecodeString(strings.Join(lines[start:start+count], ""))
	}

	for i := 0; i < len(lines); i++ {
		name, value, found := strings.Cut(lines[i], ": ")
		if !found {
			continue
		}

		switch name {
		case ppkMagic + "2":
			k.version, k.alg = 2, value
		case ppkMagic + "3":
			k.version, k.alg = 3, value
		case "Encryption":
			k.encryption = value
		case "Comment":
			k.comment = value
		case "Key-Derivation":
			k.kdf = value
		case "Argon2-Memory":
			n, _ := strconv.ParseUint(value, 10, 32)
			k.argonMemory = uint32(n)
		case "Argon2-Passes":
			n, _ := strconv.ParseUint(value, 10, 32)
			k.argonPasses = uint32(n)
		case "Argon2-Parallelism":
			n, _ := strconv.ParseUint(value, 10, 8)
			k.argonParallel = uint8(n)
		case "Argon2-Salt":
			salt, err := hex.DecodeString(value)
			if err != nil {
				return nil, fmt.Errorf("bad Argon2-Salt: %w", err)
			}

			k.argonSalt = salt
		case "Public-Lines", "Private-Lines":
			count, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("bad %s count: %w", name, err)
			}

			blob, err := readBlob(i+1, count)
			if err != nil {
				return nil, err
			}

			if name == "Public-Lines" {
				k.public = blob
			} else {
				k.private = blob
			}

			i += count
		case "Private-MAC":
			mac, err := hex.DecodeString(value)
			if err != nil {
				return nil, fmt.Errorf("bad Private-MAC: %w", err)
			}

			k.mac = mac
		}
	}

	if k.version == 0 {
		return nil, fmt.Errorf("unsupported PuTTY key file version in %q", lines[0])
	}

	if len(k.public) == 0 || len(k.private) == 0 {
		return nil, errors.New("PuTTY key file is missing key material")
	}

	return k, nil
}

// decrypt replaces the private blob with its plaintext and returns the MAC
// key derived alongside the cipher key.
func (k *puttyKey) decrypt(passphrase string) ([]byte, error) {
	switch k.encryption {
	case "none":
		if k.version == 2 {
			return v2MACKey(passphrase), nil
		}

		return nil, nil // v3 unencrypted uses a zero-length MAC key

	case "aes256-cbc":
		if passphrase == "" {
			return nil, errors.New("PuTTY key is encrypted and no passphrase was supplied")
		}

		var cipherKey, iv, macKey []byte

		if k.version == 2 {
			cipherKey = v2CipherKey(passphrase)
			iv = make([]byte, aes.BlockSize)
			macKey = v2MACKey(passphrase)
		} else {
			out, err := k.argon2Key(passphrase)
			if err != nil {
				return nil, err
			}

			cipherKey, iv, macKey = out[:32], out[32:48], out[48:80]
		}

		if len(k.private)%aes.BlockSize != 0 {
			return nil, errors.New("PuTTY private blob is not block aligned")
		}

		block, err := aes.NewCipher(cipherKey)
		if err != nil {
			return nil, err
		}

		plain := make([]byte, len(k.private))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, k.private)
		k.private = plain

		return macKey, nil

	default:
		return nil, fmt.Errorf("unsupported PuTTY key encryption %q", k.encryption)
	}
}

func (k *puttyKey) argon2Key(passphrase string) ([]byte, error) {
	const keyLen = 80

	switch k.kdf {
	case "Argon2id":
		return argon2.IDKey([]byte(passphrase), k.argonSalt, k.argonPasses, k.argonMemory, k.argonParallel, keyLen), nil
	case "Argon2i":
		return argon2.Key([]byte(passphrase), k.argonSalt, k.argonPasses, k.argonMemory, k.argonParallel, keyLen), nil
	default:
		return nil, fmt.Errorf("unsupported PuTTY key derivation %q", k.kdf)
	}
}

// checkMAC verifies the Private-MAC trailer over the canonical five-field
// encoding. A mismatch on an encrypted key almost always means a wrong
// passphrase.
func (k *puttyKey) checkMAC(macKey []byte) error {
	var data bytes.Buffer
	for _, field := range [][]byte{[]byte(k.alg), []byte(k.encryption), []byte(k.comment), k.public, k.private} {
		var length [4]byte

		binary.BigEndian.PutUint32(length[:], uint32(len(field)))
		data.Write(length[:])
		data.Write(field)
	}

	var sum []byte
	if k.version == 2 {
		m := hmac.New(sha1.New, macKey)
		m.Write(data.Bytes())
		sum = m.Sum(nil)
	} else {
		m := hmac.New(sha256.New, macKey)
		m.Write(data.Bytes())
		sum = m.Sum(nil)
	}

	if !hmac.Equal(sum, k.mac) {
		if k.encryption != "none" {
			return errors.New("PuTTY key MAC check failed (wrong passphrase?)")
		}

		return errors.New("PuTTY key MAC check failed")
	}

	return nil
}

func v2CipherKey(passphrase string) []byte {
	h1 := sha1.Sum(append([]byte{0, 0, 0, 0}, passphrase...))
	h2 := sha1.Sum(append([]byte{0, 0, 0, 1}, passphrase...))

	return append(h1[:], h2[:]...)[:32]
}

func v2MACKey(passphrase string) []byte {
	sum := sha1.Sum([]byte("putty-private-key-file-mac-key" + passphrase))

	return sum[:]
}

// privateKey reassembles a crypto key from the public and decrypted private
// SSH wire blobs.
func (k *puttyKey) privateKey() (any, error) {
	switch k.alg {
	case "ssh-rsa":
		var pub struct {
			Type string
			E, N *big.Int
		}

		if err := ssh.Unmarshal(k.public, &pub); err != nil {
			return nil, fmt.Errorf("bad RSA public blob: %w", err)
		}

		var priv struct {
			D, P, Q, Iqmp *big.Int
			Rest          []byte `ssh:"rest"` // cipher padding
		}

		if err := ssh.Unmarshal(k.private, &priv); err != nil {
			return nil, fmt.Errorf("bad RSA private blob: %w", err)
		}

		key := &rsa.PrivateKey{
			PublicKey: rsa.PublicKey{N: pub.N, E: int(pub.E.Int64())},
			D:         priv.D,
			Primes:    []*big.Int{priv.P, priv.Q},
		}
		if err := key.Validate(); err != nil {
			return nil, fmt.Errorf("invalid RSA key: %w", err)
		}

		key.Precompute()

		return key, nil

	case "ssh-ed25519":
		var priv struct {
			Seed []byte
			Rest []byte `ssh:"rest"`
		}

		if err := ssh.Unmarshal(k.private, &priv); err != nil {
			return nil, fmt.Errorf("bad Ed25519 private blob: %w", err)
		}

		if len(priv.Seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("bad Ed25519 seed length %d", len(priv.Seed))
		}

		return ed25519.NewKeyFromSeed(priv.Seed), nil

	default:
		return nil, fmt.Errorf("unsupported PuTTY key algorithm %q", k.alg)
	}
}
