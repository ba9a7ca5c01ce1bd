package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

// MinPasswordLength is enforced on registration.
const MinPasswordLength = 8

const hashPrefix = "$argon2id$"

var (
	ErrInvalidHash  = errors.New("invalid argon2id hash")
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

var b64 = base64.RawStdEncoding

type cost struct {
	memory  uint32
	passes  uint32
	lanes   uint8
	saltLen int
	keyLen  uint32
}

// weaker reports whether c falls short of target on any axis that matters
// for brute-force resistance.
func (c cost) weaker(target cost) bool {
	return c.memory < target.memory || c.passes < target.passes || c.keyLen < target.keyLen
}

// Hasher produces and checks argon2id hashes in the PHC string form
// $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>.
type Hasher struct {
	target cost

	decoyOnce sync.Once
	decoy     string
}

// NewHasher pins the cost used for new hashes. Out-of-range config values
// are clamped rather than rejected.
func NewHasher(cfg config.PasswordConfig) *Hasher {
	return &Hasher{target: cost{
		memory:  uint32(bound(cfg.ArgonMemoryKB, 8, 512*1024)),
		passes:  uint32(bound(cfg.ArgonTime, 1, 10)),
		lanes:   uint8(bound(cfg.ArgonParallelism, 1, 255)),
		saltLen: bound(cfg.ArgonSaltLen, 8, 64),
		keyLen:  uint32(bound(cfg.ArgonKeyLen, 16, 64)),
	}}
}

func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	salt := make([]byte, h.target.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	c := h.target
	key := argon2.IDKey([]byte(password), salt, c.passes, c.memory, c.lanes, c.keyLen)
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		hashPrefix, argon2.Version, c.memory, c.passes, c.lanes,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify checks password against encoded. stale is true when the password
// matched but encoded was produced with a lower cost than the hasher's, so
// the caller should store a fresh Hash.
func (h *Hasher) Verify(password, encoded string) (ok, stale bool, err error) {
	c, salt, key, err := parse(encoded)
	if err != nil {
		return false, false, err
	}
	got := argon2.IDKey([]byte(password), salt, c.passes, c.memory, c.lanes, c.keyLen)
	if subtle.ConstantTimeCompare(key, got) != 1 {
		return false, false, nil
	}
	return true, c.weaker(h.target), nil
}

// Stale reports whether encoded should be replaced. Unparseable hashes are
// always stale.
func (h *Hasher) Stale(encoded string) bool {
	c, _, _, err := parse(encoded)
	return err != nil || c.weaker(h.target)
}

// Decoy spends the same work as a real Verify so a login for an unknown
// account takes as long as one with a wrong password.
func (h *Hasher) Decoy(password string) {
	h.decoyOnce.Do(func() {
		h.decoy, _ = h.Hash("decoy-password")
	})
	_, _, _ = h.Verify(password, h.decoy)
}

func parse(encoded string) (cost, []byte, []byte, error) {
	rest, found := strings.CutPrefix(encoded, hashPrefix)
	if !found {
		return cost{}, nil, nil, ErrInvalidHash
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return cost{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || version != argon2.Version {
		return cost{}, nil, nil, ErrInvalidHash
	}
	var c cost
	if _, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &c.memory, &c.passes, &c.lanes); err != nil {
		return cost{}, nil, nil, ErrInvalidHash
	}
	if c.memory == 0 || c.passes == 0 || c.lanes == 0 {
		return cost{}, nil, nil, ErrInvalidHash
	}

	salt, err := b64.DecodeString(fields[2])
	if err != nil || len(salt) == 0 {
		return cost{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(fields[3])
	if err != nil || len(key) == 0 {
		return cost{}, nil, nil, ErrInvalidHash
	}
	c.saltLen = len(salt)
	c.keyLen = uint32(len(key))
	return c, salt, key, nil
}

// CheckStrength rejects passwords that are too short to hash.
func CheckStrength(password string) error {
	if utf8.RuneCountInString(strings.TrimSpace(password)) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

func bound(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
