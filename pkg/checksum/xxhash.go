package checksum

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

const fileReadBuffer = 64 << 10

// GetFileChecksum identifies an uploaded data file in the run history. It is
// not the per-record digest.
func GetFileChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open data file %s: %w", filePath, err)
	}
	defer file.Close()

	sum, err := StreamChecksum(file)
	if err != nil {
		return "", fmt.Errorf("failed to hash data file %s: %w", filePath, err)
	}
	return sum, nil
}

// StreamChecksum returns the xxhash64 of everything read from r as 16
// lowercase hex digits.
func StreamChecksum(r io.Reader) (string, error) {
	digest := xxhash.New()
	buf := make([]byte, fileReadBuffer)
	for {
		n, err := r.Read(buf)
		digest.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%016x", digest.Sum64()), nil
}
