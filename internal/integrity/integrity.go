// Package integrity computes content hashes for stored prompt versions. Two
// versions with the same template, model and tools hash equal regardless of
// their ids, descriptions or creation times. All functions are pure.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/ashita-ai/kaiwa/internal/model"
)

// hashPrefix versions the encoding so it can change without invalidating
// stored hashes.
const hashPrefix = "v1:"

// ComputeContentHash returns the versioned SHA-256 hex digest of the content
// of pv.
func ComputeContentHash(pv model.PromptVersion) string {
	return hashPrefix + computeV1(pv)
}

// VerifyContentHash reports whether stored matches the content of pv. Hashes
// with an unknown version prefix never match.
func VerifyContentHash(stored string, pv model.PromptVersion) bool {
	if !strings.HasPrefix(stored, hashPrefix) {
		return false
	}
	return stored == ComputeContentHash(pv)
}

// computeV1 writes each field as a 4-byte big-endian length followed by its
// bytes, so free-form message text cannot collide with field boundaries.
// Structured fields are encoded as JSON; map keys marshal in sorted order.
func computeV1(pv model.PromptVersion) string {
	h := sha256.New()
	writeField := func(b []byte) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b))) //nolint:gosec // bounded by the request body limit
		h.Write(lenBuf[:])
		h.Write(b)
	}
	writeJSON := func(v any) {
		b, err := json.Marshal(v)
		if err != nil {
			// Values decoded from JSON always re-encode; anything else hashes
			// as absent.
			b = nil
		}
		writeField(b)
	}

	writeField([]byte(pv.TemplateFormat))
	writeField([]byte(pv.ModelProvider))
	writeField([]byte(pv.ModelName))
	writeField(binary.BigEndian.AppendUint32(nil, uint32(len(pv.Messages)))) //nolint:gosec // bounded as above
	for _, m := range pv.Messages {
		writeField([]byte(m.Role))
		if m.Content != nil {
			writeField([]byte{1})
			writeField([]byte(*m.Content))
		} else {
			writeField([]byte{0})
		}
		if len(m.ToolCalls) > 0 {
			writeJSON(m.ToolCalls)
		} else {
			writeField(nil)
		}
		if m.ToolCallID != nil {
			writeField([]byte(*m.ToolCallID))
		} else {
			writeField(nil)
		}
	}
	if len(pv.InvocationParameters) > 0 {
		writeJSON(pv.InvocationParameters)
	} else {
		writeField(nil)
	}
	if len(pv.Tools) > 0 {
		writeJSON(pv.Tools)
	} else {
		writeField(nil)
	}
	if pv.ToolChoice != nil {
		writeJSON(pv.ToolChoice)
	} else {
		writeField(nil)
	}
	return hex.EncodeToString(h.Sum(nil))
}
