package editor

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	"sketch-repair/internal/logger"
)

// Encoding names reported by DetectEncoding
const (
	EncodingUTF8    = "UTF-8"
	EncodingUTF8BOM = "UTF-8-BOM"
	EncodingUTF16LE = "UTF-16LE"
	EncodingUTF16BE = "UTF-16BE"
	EncodingGBK     = "GBK"
	EncodingUnknown = "UNKNOWN"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// EncodingHandler detects document encodings and normalises them to UTF-8
type EncodingHandler struct {
	log logger.Logger
}

// NewEncodingHandler creates a new EncodingHandler
func NewEncodingHandler(log logger.Logger) *EncodingHandler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &EncodingHandler{log: log}
}

// DetectEncoding detects the encoding of raw document bytes.
// BOMs win; valid UTF-8 is next; then the HTML charset sniffer (meta tags);
// GBK is the last resort before UNKNOWN.
func (h *EncodingHandler) DetectEncoding(data []byte) string {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		return EncodingUTF8BOM
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return EncodingUTF16LE
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return EncodingUTF16BE
	}

	if utf8.Valid(data) {
		return EncodingUTF8
	}

	// Without a meta declaration the sniffer falls back to windows-1252.
	if _, name, _ := charset.DetermineEncoding(data, "text/html"); name != "utf-8" && name != "windows-1252" {
		h.log.Debug("charset sniffed from markup", logger.String("charset", name))
		return name
	}

	if isValidGBK(data) {
		return EncodingGBK
	}

	h.log.Warn("unknown encoding detected")
	return EncodingUnknown
}

// isValidGBK checks if data is valid GBK encoding
func isValidGBK(data []byte) bool {
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(data)
	if err != nil {
		return false
	}
	return utf8.Valid(decoded)
}

// Normalize converts raw document bytes to UTF-8 text. changed reports whether
// the returned text differs from the input bytes.
func (h *EncodingHandler) Normalize(data []byte) (text string, encoding string, changed bool, err error) {
	encoding = h.DetectEncoding(data)

	var decoded []byte
	switch encoding {
	case EncodingUTF8:
		return string(data), encoding, false, nil
	case EncodingUTF8BOM:
		decoded = data[len(utf8BOM):]
	case EncodingUTF16LE:
		decoded, err = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	case EncodingUTF16BE:
		decoded, err = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	case EncodingGBK:
		decoded, err = simplifiedchinese.GBK.NewDecoder().Bytes(data)
	case EncodingUnknown:
		// Keep the bytes; later passes operate on whatever decodes.
		return string(data), encoding, false, nil
	default:
		enc, _ := charset.Lookup(encoding)
		if enc == nil {
			return string(data), encoding, false, nil
		}
		decoded, err = enc.NewDecoder().Bytes(data)
	}
	if err != nil {
		h.log.Error("failed to decode document", err, logger.String("encoding", encoding))
		return string(data), encoding, false, fmt.Errorf("failed to decode from %s: %w", encoding, err)
	}

	h.log.Info("document converted to UTF-8", logger.String("from", encoding))
	return string(decoded), encoding, true, nil
}
