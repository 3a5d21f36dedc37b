package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MIMEType is the content type of every artifact produced by synthesis.
const MIMEType = "audio/mpeg"

const dataURLPrefix = "data:" + MIMEType + ";base64,"

// ErrDecode signals a malformed durable encoding.
var ErrDecode = errors.New("malformed audio encoding")

var durable = base64.StdEncoding.Strict()

// EncodeDurable converts raw audio into the text form stored with activity entries.
func EncodeDurable(data []byte) string {
	return durable.EncodeToString(data)
}

// DecodeDurable reverses EncodeDurable. Input that is not canonical padded
// base64 is rejected rather than partially decoded.
func DecodeDurable(encoded string) ([]byte, error) {
	// The decoder skips line breaks even in strict mode.
	if strings.ContainsAny(encoded, "\r\n") {
		return nil, fmt.Errorf("%w: line break in encoding", ErrDecode)
	}
	data, err := durable.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// DataURL wraps a durable encoding so a browser can play it inline.
func DataURL(encoded string) string {
	return dataURLPrefix + encoded
}
