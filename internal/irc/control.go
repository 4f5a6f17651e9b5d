package irc

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	ctrlBold          = '\x02'
	ctrlColor         = '\x03'
	ctrlHexColor      = '\x04'
	ctrlReset         = '\x0f'
	ctrlMonospace     = '\x11'
	ctrlReverse       = '\x16'
	ctrlItalic        = '\x1d'
	ctrlStrikethrough = '\x1e'
	ctrlUnderline     = '\x1f'
)

// StripControl removes mIRC formatting codes, including color arguments.
func StripControl(s string) string {
	if strings.IndexFunc(s, isFormatting) < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		switch s[i] {
		case ctrlColor:
			i = skipColor(s, i+1, 2, isDigit)
		case ctrlHexColor:
			i = skipColor(s, i+1, 6, isHex)
		case ctrlBold, ctrlReset, ctrlMonospace, ctrlReverse, ctrlItalic, ctrlStrikethrough, ctrlUnderline:
			i++
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

func isFormatting(r rune) bool {
	switch r {
	case ctrlBold, ctrlColor, ctrlHexColor, ctrlReset, ctrlMonospace, ctrlReverse, ctrlItalic, ctrlStrikethrough, ctrlUnderline:
		return true
	}
	return false
}

// skipColor skips "fg[,bg]" after a color code, each part up to width
// characters accepted by valid.
func skipColor(s string, i, width int, valid func(byte) bool) int {
	j := skipRun(s, i, width, valid)
	if j == i {
		return i
	}
	if j+1 < len(s) && s[j] == ',' && valid(s[j+1]) {
		return skipRun(s, j+1, width, valid)
	}
	return j
}

func skipRun(s string, i, width int, valid func(byte) bool) int {
	for n := 0; n < width && i < len(s) && valid(s[i]); n++ {
		i++
	}
	return i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// Mentions reports whether nick appears in text as a whole word, ignoring
// case and formatting.
func Mentions(text, nick string) bool {
	if nick == "" {
		return false
	}

	text = strings.ToLower(StripControl(text))
	nick = strings.ToLower(nick)

	for off := 0; ; {
		i := strings.Index(text[off:], nick)
		if i < 0 {
			return false
		}
		start := off + i
		end := start + len(nick)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		off = start + 1
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isNickRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isNickRune(r)
}

func isNickRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("-_[]\\`^{}|", r)
}
