package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

var (
	// ErrHashMalformed marks stored hashes that do not parse as PHC argon2id.
	ErrHashMalformed = errors.New("password hash malformed")
	// ErrIncompatibleVersion marks hashes from an unsupported argon2 version.
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// Params are the argon2id cost parameters used for new hashes.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher derives and verifies argon2id hashes. Safe for concurrent use.
type Hasher struct {
	params Params
}

type parsedHash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func NewHasher(params Params) (*Hasher, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	return &Hasher{params: params}, nil
}

// Hash derives a hash of password with a fresh random salt and returns it
// PHC-encoded. Password bytes are used exactly as provided, without Unicode
// normalization.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Time,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encodedHash. The hash is recomputed
// with the parameters stored in the encoding and compared in constant time.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.key)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.key) == 1, nil
}

// NeedsRehash reports whether encodedHash was produced with weaker cost
// parameters than the hasher is configured with.
func (h *Hasher) NeedsRehash(encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	if h.params.Memory > parsed.memory {
		return true, nil
	}
	if h.params.Time > parsed.time {
		return true, nil
	}
	if h.params.Parallelism > parsed.parallelism {
		return true, nil
	}
	if h.params.KeyLength != uint32(len(parsed.key)) {
		return true, nil
	}

	return false, nil
}

func parsePHC(encodedHash string) (*parsedHash, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrHashMalformed
	}
	if parts[1] != algorithmID {
		return nil, ErrHashMalformed
	}

	if !strings.HasPrefix(parts[2], "v=") {
		return nil, ErrHashMalformed
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil {
		return nil, ErrHashMalformed
	}
	if version != argon2.Version {
		return nil, ErrIncompatibleVersion
	}

	memory, time, parallelism, err := parseCostParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, ErrHashMalformed
	}

	key, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, ErrHashMalformed
	}

	return &parsedHash{
		memory:      memory,
		time:        time,
		parallelism: parallelism,
		salt:        salt,
		key:         key,
	}, nil
}

func parseCostParams(part string) (memory, time uint32, parallelism uint8, err error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return 0, 0, 0, ErrHashMalformed
	}

	var memorySet, timeSet, parallelismSet bool
	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return 0, 0, 0, ErrHashMalformed
		}

		switch kv[0] {
		case "m":
			v, perr := strconv.ParseUint(kv[1], 10, 32)
			if perr != nil || v < uint64(minMemoryKB) {
				return 0, 0, 0, ErrHashMalformed
			}
			memory = uint32(v)
			memorySet = true
		case "t":
			v, perr := strconv.ParseUint(kv[1], 10, 32)
			if perr != nil || v < uint64(minTimeCost) {
				return 0, 0, 0, ErrHashMalformed
			}
			time = uint32(v)
			timeSet = true
		case "p":
			v, perr := strconv.ParseUint(kv[1], 10, 8)
			if perr != nil || v < uint64(minParallelism) {
				return 0, 0, 0, ErrHashMalformed
			}
			parallelism = uint8(v)
			parallelismSet = true
		default:
			return 0, 0, 0, ErrHashMalformed
		}
	}

	if !memorySet || !timeSet || !parallelismSet {
		return 0, 0, 0, ErrHashMalformed
	}

	return memory, time, parallelism, nil
}

func validateParams(params Params) error {
	if params.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if params.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if params.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if params.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if params.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	return nil
}
