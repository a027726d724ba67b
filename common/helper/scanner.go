package helper

import (
	"bufio"
	"io"
)

const (
	sseScannerInitialSize = 64 * 1024

	// SSEScannerMaxLineSize bounds a single SSE line. Vision responses carry
	// inline base64 frames, so the cap is generous.
	SSEScannerMaxLineSize = 32 * 1024 * 1024
)

// NewSSEScanner returns a line scanner sized for upstream event streams,
// where a single data: line can hold a whole base64 image.
func NewSSEScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, sseScannerInitialSize), SSEScannerMaxLineSize)
	return scanner
}
