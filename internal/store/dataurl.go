package store

import (
	"encoding/base64"
	"strings"
)

// DecodeDataURL dekodiert ein "data:image/...;base64,"-Bild oder reines Base64
func DecodeDataURL(s string) ([]byte, error) {
	payload := strings.TrimSpace(s)

	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, &ValidationError{Field: "image", Reason: "malformed data URL"}
		}
		header := payload[len("data:"):comma]
		if !strings.HasPrefix(header, "image/") {
			return nil, &ValidationError{Field: "image", Reason: "data URL is not an image"}
		}
		if !strings.HasSuffix(header, ";base64") {
			return nil, &ValidationError{Field: "image", Reason: "data URL is not base64 encoded"}
		}
		payload = payload[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Manche Clients lassen das Padding weg
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, &ValidationError{Field: "image", Reason: "invalid base64 payload"}
		}
	}
	if len(data) == 0 {
		return nil, &ValidationError{Field: "image", Reason: "empty payload"}
	}
	return data, nil
}
