package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketch-repair/internal/logger"
)

func TestNormalize(t *testing.T) {
	h := NewEncodingHandler(logger.Nop())

	tests := []struct {
		name    string
		data    []byte
		want    string
		enc     string
		changed bool
	}{
		{"plain utf-8", []byte("<p>héllo</p>"), "<p>héllo</p>", EncodingUTF8, false},
		{"utf-8 bom", []byte("\xEF\xBB\xBF<p>x</p>"), "<p>x</p>", EncodingUTF8BOM, true},
		{"utf-16le", []byte("\xFF\xFE<\x00p\x00>\x00"), "<p>", EncodingUTF16LE, true},
		{"utf-16be", []byte("\xFE\xFF\x00<\x00p\x00>"), "<p>", EncodingUTF16BE, true},
		{"gbk", []byte("<p>\xd6\xd0\xce\xc4</p>"), "<p>中文</p>", EncodingGBK, true},
		{"meta charset", []byte(`<meta charset="shift_jis"><p>` + "\x82\xa0" + `</p>`), `<meta charset="shift_jis"><p>あ</p>`, "shift_jis", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, enc, changed, err := h.Normalize(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
			assert.Equal(t, tt.enc, enc)
			assert.Equal(t, tt.changed, changed)
		})
	}
}
