package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainRecord prefixes every record digest. Bump the version when the
// digest input changes shape.
const DomainRecord = "patron/record/v1"

// RecordDigest returns the hex sha256 of a record's normalized fields.
// encoding/json sorts map keys, so two maps with equal content always
// produce the same digest regardless of insertion order.
func RecordDigest(fields map[string]string) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record fields: %w", err)
	}

	digest := sha256.New()
	digest.Write([]byte(DomainRecord))
	digest.Write([]byte{0x00})
	digest.Write(data)

	return hex.EncodeToString(digest.Sum(nil)), nil
}
