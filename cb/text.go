package cb

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

/* Text related types and functions */

// Alphabet of a message body according to [DCS] 5
type Alphabet byte

// All supported alphabets
const (
	GSM7Bit Alphabet = iota
	EightBit
	UCS2
)

func (a Alphabet) String() string {
	switch a {
	case GSM7Bit:
		return "GSM7"
	case EightBit:
		return "8bit"
	case UCS2:
		return "UCS2"
	default:
		return "unknown"
	}
}

// TextCodecs contains encoding.Encoding instances for the alphabets that x/text covers.
// GSM 7-bit is decoded by this package.
var TextCodecs = map[Alphabet]encoding.Encoding{
	EightBit: charmap.ISO8859_1,
	UCS2:     unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
}

// Language codes implied by the coding group, see [DCS] 5 coding groups 0000 and 0010
var (
	languagesGroup0 = []string{"de", "en", "it", "fr", "es", "nl", "sv", "da", "pt", "fi", "no", "el", "tr", "hu", "pl", ""}
	languagesGroup2 = []string{"cs", "he", "ar", "ru", "is", "", "", "", "", "", "", "", "", "", "", ""}
)

// CodingScheme is the decoded data coding scheme of a cell broadcast message.
type CodingScheme struct {
	Alphabet Alphabet
	// Language is the language implied by the DCS, empty if unspecified or carried in the body.
	Language string
	// LanguageInBody is set if the first characters of the body carry the language.
	LanguageInBody bool
	// HasUserDataHeader is set if the body starts with a user data header.
	HasUserDataHeader bool
	Compressed        bool
}

// ParseDataCodingScheme decodes the DCS byte according to [DCS] 5
func ParseDataCodingScheme(dcs byte) CodingScheme {
	var result CodingScheme

	switch (dcs & 0xF0) >> 4 {
	case 0x00:
		result.Alphabet = GSM7Bit
		result.Language = languagesGroup0[dcs&0x0F]
	case 0x01:
		switch dcs & 0x0F {
		case 0x01:
			result.Alphabet = UCS2
		default:
			result.Alphabet = GSM7Bit
		}
		result.LanguageInBody = true
	case 0x02:
		result.Alphabet = GSM7Bit
		result.Language = languagesGroup2[dcs&0x0F]
	case 0x03:
		result.Alphabet = GSM7Bit
	case 0x04, 0x05, 0x06, 0x07:
		result.Compressed = (dcs & 0x20) != 0
		result.Alphabet = generalAlphabet(dcs)
	case 0x09:
		result.HasUserDataHeader = true
		result.Alphabet = generalAlphabet(dcs)
	case 0x0F:
		if (dcs & 0x04) != 0 {
			result.Alphabet = EightBit
		} else {
			result.Alphabet = GSM7Bit
		}
	default:
		// reserved coding groups are treated as GSM 7-bit, see [DCS] 5
		result.Alphabet = GSM7Bit
	}

	return result
}

func generalAlphabet(dcs byte) Alphabet {
	switch (dcs & 0x0C) >> 2 {
	case 0x01:
		return EightBit
	case 0x02:
		return UCS2
	default:
		return GSM7Bit
	}
}

// DecodePage decodes the content of one page using the given coding scheme. It returns the text and,
// if the coding scheme carries the language in the body, the language code.
func DecodePage(scheme CodingScheme, content []byte) (string, string, error) {
	if scheme.Compressed {
		return "", "", fmt.Errorf("compressed message bodies are not supported")
	}

	septetOffset := 0
	if scheme.HasUserDataHeader {
		if len(content) < 1 || int(content[0])+1 > len(content) {
			return "", "", fmt.Errorf("user data header exceeds page content")
		}
		headerBytes := int(content[0]) + 1
		if scheme.Alphabet == GSM7Bit {
			septetOffset = (headerBytes*8 + 6) / 7
		} else {
			content = content[headerBytes:]
		}
	}

	var language string
	var text string
	var err error
	switch scheme.Alphabet {
	case GSM7Bit:
		septets := UnpackSeptets(content)
		if septetOffset > len(septets) {
			septetOffset = len(septets)
		}
		text = DecodeSeptets(septets[septetOffset:])
		if scheme.LanguageInBody {
			language, text = splitLanguage(text, 3)
		}
	case UCS2:
		if scheme.LanguageInBody {
			if len(content) < 2 {
				return "", "", fmt.Errorf("page too short for language indication")
			}
			language = DecodeSeptets(UnpackSeptets(content[0:2])[0:2])
			content = content[2:]
		}
		if len(content)%2 != 0 {
			content = content[:len(content)-1]
		}
		text, err = decodeWithCodec(scheme.Alphabet, content)
	default:
		text, err = decodeWithCodec(scheme.Alphabet, content)
	}
	if err != nil {
		return "", "", err
	}

	return trimPadding(text), language, nil
}

func decodeWithCodec(alphabet Alphabet, content []byte) (string, error) {
	codec, ok := TextCodecs[alphabet]
	if !ok {
		return "", fmt.Errorf("no codec for alphabet %s", alphabet)
	}
	utf8, err := codec.NewDecoder().Bytes(content)
	if err != nil {
		return "", fmt.Errorf("cannot decode %s text: %w", alphabet, err)
	}
	return string(utf8), nil
}

// splitLanguage splits the leading language indication of n characters (two letters and a separator) from the text.
func splitLanguage(text string, n int) (string, string) {
	runes := []rune(text)
	if len(runes) < n {
		return "", text
	}
	return strings.TrimSpace(string(runes[0:2])), string(runes[n:])
}

// trimPadding removes the trailing carriage returns and NUL characters used to fill up a page.
func trimPadding(text string) string {
	return strings.TrimRight(text, "\r\x00")
}

/* GSM 7-bit default alphabet */

const escapeSeptet = 0x1B

// gsmDefaultAlphabet according to [DCS] 6.2.1
var gsmDefaultAlphabet = []rune("@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞ\x1bÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
	"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà")

// gsmExtensionTable according to [DCS] 6.2.1.1
var gsmExtensionTable = map[byte]rune{
	0x0A: '\f',
	0x14: '^',
	0x28: '{',
	0x29: '}',
	0x2F: '\\',
	0x3C: '[',
	0x3D: '~',
	0x3E: ']',
	0x40: '|',
	0x65: '€',
}

// UnpackSeptets unpacks the 7-bit characters packed into the given bytes according to [DCS] 6.1.2.1.1
func UnpackSeptets(packed []byte) []byte {
	count := len(packed) * 8 / 7
	result := make([]byte, count)
	for i := 0; i < count; i++ {
		bit := i * 7
		index := bit / 8
		shift := uint(bit % 8)
		value := packed[index] >> shift
		if shift > 1 && index+1 < len(packed) {
			value |= packed[index+1] << (8 - shift)
		}
		result[i] = value & 0x7F
	}
	return result
}

// PackSeptets packs the given 7-bit characters according to [DCS] 6.1.2.1.1. If seven spare bits
// remain in the last byte, they are filled with a carriage return, see [DCS] 6.1.2.3.1
func PackSeptets(septets []byte) []byte {
	if len(septets)%8 == 7 {
		septets = append(septets[:len(septets):len(septets)], '\r')
	}
	result := make([]byte, (len(septets)*7+7)/8)
	for i, septet := range septets {
		bit := i * 7
		index := bit / 8
		shift := uint(bit % 8)
		result[index] |= (septet & 0x7F) << shift
		if shift > 1 {
			result[index+1] |= (septet & 0x7F) >> (8 - shift)
		}
	}
	return result
}

// DecodeSeptets maps the given septets to text using the GSM 7-bit default alphabet and its extension table.
func DecodeSeptets(septets []byte) string {
	var result strings.Builder
	result.Grow(len(septets))
	for i := 0; i < len(septets); i++ {
		septet := septets[i] & 0x7F
		if septet == escapeSeptet && i+1 < len(septets) {
			i++
			if r, ok := gsmExtensionTable[septets[i]&0x7F]; ok {
				result.WriteRune(r)
			} else {
				result.WriteRune(gsmDefaultAlphabet[septets[i]&0x7F])
			}
			continue
		}
		result.WriteRune(gsmDefaultAlphabet[septet])
	}
	return result.String()
}

// EncodeSeptets maps the given text to septets of the GSM 7-bit default alphabet. Characters that
// cannot be represented are replaced by a question mark.
func EncodeSeptets(text string) []byte {
	result := make([]byte, 0, len(text))
	for _, r := range text {
		if septet, ok := defaultSeptets[r]; ok {
			result = append(result, septet)
			continue
		}
		if septet, ok := extensionSeptets[r]; ok {
			result = append(result, escapeSeptet, septet)
			continue
		}
		result = append(result, '?')
	}
	return result
}

var defaultSeptets, extensionSeptets = func() (map[rune]byte, map[rune]byte) {
	defaults := make(map[rune]byte, len(gsmDefaultAlphabet))
	for i, r := range gsmDefaultAlphabet {
		if i == escapeSeptet {
			continue
		}
		defaults[r] = byte(i)
	}
	extensions := make(map[rune]byte, len(gsmExtensionTable))
	for septet, r := range gsmExtensionTable {
		extensions[r] = septet
	}
	return defaults, extensions
}()
