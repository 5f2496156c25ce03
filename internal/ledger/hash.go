package ledger

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashPayload computes the deterministic 64-hex-character digest spec §3/§4.4
// define for an environment version: a digest of the sorted tool versions,
// ordered PATH additions, ordered env-var ops, config modtimes, and config
// hash, each already serialized to JSON (or, for configHash, the caller's
// own content hash) by the caller. Exposed (rather than buried inside
// AssignEnvironment) so internal/environment can precompute an id for
// idempotency checks (spec P5) without a database round trip.
func HashPayload(versionsJSON, pathsJSON, envVarsJSON, configModtimesJSON, configHash string) string {
	h := sha256.New()
	for _, part := range []string{versionsJSON, pathsJSON, envVarsJSON, configModtimesJSON, configHash} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0}) // separator: prevents "ab"+"c" colliding with "a"+"bc"
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EnvVersionID builds the content-addressed id spec §3 defines:
// "<wd_trust_id>%<hex64(hash)>".
func EnvVersionID(wdTrustID, hash string) string {
	return wdTrustID + "%" + hash
}
