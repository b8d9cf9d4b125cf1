package cb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/cellbroadcast/cell"
)

func TestParseDataCodingScheme(t *testing.T) {
	tt := []struct {
		dcs      byte
		expected CodingScheme
	}{
		{0x00, CodingScheme{Alphabet: GSM7Bit, Language: "de"}},
		{0x01, CodingScheme{Alphabet: GSM7Bit, Language: "en"}},
		{0x0F, CodingScheme{Alphabet: GSM7Bit}},
		{0x10, CodingScheme{Alphabet: GSM7Bit, LanguageInBody: true}},
		{0x11, CodingScheme{Alphabet: UCS2, LanguageInBody: true}},
		{0x21, CodingScheme{Alphabet: GSM7Bit, Language: "he"}},
		{0x30, CodingScheme{Alphabet: GSM7Bit}},
		{0x44, CodingScheme{Alphabet: EightBit}},
		{0x48, CodingScheme{Alphabet: UCS2}},
		{0x60, CodingScheme{Alphabet: GSM7Bit, Compressed: true}},
		{0x94, CodingScheme{Alphabet: EightBit, HasUserDataHeader: true}},
		{0xF0, CodingScheme{Alphabet: GSM7Bit}},
		{0xF4, CodingScheme{Alphabet: EightBit}},
		{0xA0, CodingScheme{Alphabet: GSM7Bit}},
	}
	for _, tc := range tt {
		t.Run(cell.BinaryToHex([]byte{tc.dcs}), func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseDataCodingScheme(tc.dcs))
		})
	}
}

func TestPackSeptets(t *testing.T) {
	packed := PackSeptets(EncodeSeptets("hello"))
	assert.Equal(t, "E8329BFD06", cell.BinaryToHex(packed))
	assert.Equal(t, "hello", DecodeSeptets(UnpackSeptets(packed)[:5]))
}

func TestPackSeptets_SevenSpareBits(t *testing.T) {
	packed := PackSeptets(EncodeSeptets("1234567"))

	assert.Len(t, packed, 7)
	assert.Equal(t, "1234567\r", DecodeSeptets(UnpackSeptets(packed)))
}

func TestEncodeSeptets(t *testing.T) {
	tt := []struct {
		text     string
		expected []byte
	}{
		{"@", []byte{0x00}},
		{"A€", []byte{0x41, 0x1B, 0x65}},
		{"[]", []byte{0x1B, 0x3C, 0x1B, 0x3E}},
		{"ü", []byte{0x7E}},
		{"ж", []byte{'?'}},
	}
	for _, tc := range tt {
		t.Run(tc.text, func(t *testing.T) {
			actual := EncodeSeptets(tc.text)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestDecodeSeptets(t *testing.T) {
	assert.Equal(t, "Ärger {über} 5€", DecodeSeptets(EncodeSeptets("Ärger {über} 5€")))
	assert.Equal(t, "", DecodeSeptets(nil))
}

func TestDecodePage(t *testing.T) {
	tt := []struct {
		desc             string
		dcs              byte
		content          []byte
		expectedText     string
		expectedLanguage string
		invalid          bool
	}{
		{
			desc:         "gsm 7-bit padded page",
			dcs:          0x01,
			content:      PackPage("Hello World"),
			expectedText: "Hello World",
		},
		{
			desc:             "gsm 7-bit with language in body",
			dcs:              0x10,
			content:          PackPage("fr\rBonjour"),
			expectedText:     "Bonjour",
			expectedLanguage: "fr",
		},
		{
			desc:         "8-bit data",
			dcs:          0x44,
			content:      []byte{'G', 'r', 0xFC, 0xDF, 'e', '\r', '\r'},
			expectedText: "Grüße",
		},
		{
			desc:         "ucs2",
			dcs:          0x48,
			content:      []byte{0x04, 0x1F, 0x04, 0x40, 0x04, 0x38, 0x00, 0x0D},
			expectedText: "При",
		},
		{
			desc:             "ucs2 with language in body",
			dcs:              0x11,
			content:          append(PackSeptets([]byte("en")), 0x00, 0x48, 0x00, 0x69, 0x00),
			expectedText:     "Hi",
			expectedLanguage: "en",
		},
		{
			desc:         "8-bit with user data header",
			dcs:          0x94,
			content:      []byte{0x02, 0x70, 0x00, 'o', 'k'},
			expectedText: "ok",
		},
		{
			desc:    "user data header exceeds content",
			dcs:     0x94,
			content: []byte{0x05, 0x70},
			invalid: true,
		},
		{
			desc:    "compressed",
			dcs:     0x60,
			content: []byte{0x01},
			invalid: true,
		},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			text, language, err := DecodePage(ParseDataCodingScheme(tc.dcs), tc.content)
			if tc.invalid {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedText, text)
			assert.Equal(t, tc.expectedLanguage, language)
		})
	}
}

func TestPackPage(t *testing.T) {
	page := PackPage("some text that is definitely longer than ninety-three characters, so it does not fit on one page at all")

	assert.Len(t, page, PageBodyLength)
	assert.Len(t, UnpackSeptets(page), pageSeptets)
}
