package imageprocessing

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrNotDataURI = errors.New("not a data URI")

// DataURI is a decoded RFC 2397 data URI.
type DataURI struct {
	MediaType string
	Data      []byte
}

// ParseDataURI decodes "data:[<mediatype>][;base64],<data>".
func ParseDataURI(s string) (*DataURI, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, ErrNotDataURI
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing ','", ErrNotDataURI)
	}

	params := strings.Split(header, ";")
	mediaType := params[0]
	if mediaType == "" {
		mediaType = "text/plain"
	}
	isBase64 := params[len(params)-1] == "base64"

	var data []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some encoders drop the padding.
			decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return nil, fmt.Errorf("invalid base64 payload: %w", err)
			}
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid percent-encoded payload: %w", err)
		}
		data = []byte(unescaped)
	}

	return &DataURI{MediaType: strings.ToLower(mediaType), Data: data}, nil
}
