package model

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidDataURI is returned when a payload is not a well-formed data URI.
var ErrInvalidDataURI = errors.New("invalid data uri")

// PDFMediaType is the content type of every stored document.
const PDFMediaType = "application/pdf"

// DecodeDataURI parses data:[<mediatype>][;base64],<data> and returns the
// media type and decoded bytes. The media type defaults to text/plain.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}
	header, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}

	isBase64 := false
	params := strings.Split(header, ";")
	mediaType := strings.TrimSpace(params[0])
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}

	if isBase64 {
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
		if err != nil {
			return "", nil, errors.Join(ErrInvalidDataURI, err)
		}
		return mediaType, b, nil
	}
	s, err := url.PathUnescape(data)
	if err != nil {
		return "", nil, errors.Join(ErrInvalidDataURI, err)
	}
	return mediaType, []byte(s), nil
}

// EncodeDataURI renders payload as a base64 data URI.
func EncodeDataURI(mediaType string, payload []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(payload)
}
