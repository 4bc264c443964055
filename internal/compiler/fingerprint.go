package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/AdguardTeam/HostlistCompiler/internal/version"
	"github.com/AdguardTeam/golibs/errors"
)

// Fingerprint returns the stable identity of a compilation: the SHA-256 hex
// of the canonical JSON of conf and prefetched content, salted with the
// compiler version so that results never survive an upgrade.
func Fingerprint(conf *Configuration, prefetched map[string]string) (fp string) {
	h := sha256.New()

	// Struct field order is fixed, and map keys are sorted by the encoder,
	// so the encoding is canonical.
	enc := json.NewEncoder(h)
	errors.Check(enc.Encode(conf))
	errors.Check(enc.Encode(prefetched))

	_, err := h.Write([]byte(version.Version()))
	errors.Check(err)

	return hex.EncodeToString(h.Sum(nil))
}
