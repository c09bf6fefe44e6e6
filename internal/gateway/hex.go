package gateway

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// TextToHex transcodes UTF-8 text to hex. The chain transaction payload
// format expects byte data of even length, so odd-length hex is zero-padded
// on the left.
func TextToHex(text string) string {
	return padHex(hex.EncodeToString([]byte(text)))
}

// HexToText reverses TextToHex, tolerating a 0x prefix and odd length.
func HexToText(h string) (string, error) {
	h = padHex(strings.TrimPrefix(h, "0x"))
	b, err := hex.DecodeString(h)
	if err != nil {
		return "", fmt.Errorf("invalid hex payload: %w", err)
	}
	return string(b), nil
}

func padHex(h string) string {
	if len(h)%2 != 0 {
		return "0" + h
	}
	return h
}
