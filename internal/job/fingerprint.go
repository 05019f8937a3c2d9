package job

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint hashes the inputs that determine a task's effect on an image.
// Maps are serialized with sorted keys, so the result does not depend on
// iteration or document order.
func Fingerprint(srcImage, taskName string, keyParams map[string]any, jobKey any) (string, error) {
	data, err := json.Marshal([]any{srcImage, taskName, keyParams, jobKey})
	if err != nil {
		return "", fmt.Errorf("failed to serialize fingerprint input: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
