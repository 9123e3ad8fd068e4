package imagegen

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// MaxOpenAIPromptLength is the images API limit for dall-e-2 prompts.
// Diffusion backends truncate long prompts themselves and have no limit here.
const MaxOpenAIPromptLength = 1000

// ErrInvalidPrompt is returned by Render before any backend call.
var ErrInvalidPrompt = errors.New("imagegen: invalid prompt")

// ValidatePrompt rejects blank prompts and NUL bytes.
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w: prompt cannot be empty", ErrInvalidPrompt)
	}
	if strings.ContainsRune(prompt, '\x00') {
		return fmt.Errorf("%w: prompt contains null bytes", ErrInvalidPrompt)
	}
	return nil
}

// RandomSeed returns a non-negative seed from crypto/rand, or 42 in the
// unlikely case the system source fails.
func RandomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 42
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
}
