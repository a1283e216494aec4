package util

import "strings"

const (
	// KakaoTalk collapses a message behind "See more" once this many zero-width spaces follow the first line.
	KakaoSeeMorePadding = 500
	KakaoZeroWidthSpace = "\u200b"
)

// SeeMore keeps header visible and folds body behind KakaoTalk's "See more".
func SeeMore(header, body string) string {
	if strings.TrimSpace(body) == "" {
		return header
	}
	header = strings.TrimSpace(header)

	var b strings.Builder
	b.Grow(len(header) + len(body) + KakaoSeeMorePadding*len(KakaoZeroWidthSpace) + 1)
	b.WriteString(header)
	b.WriteString(strings.Repeat(KakaoZeroWidthSpace, KakaoSeeMorePadding))
	if !strings.HasPrefix(body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(body)
	return b.String()
}

// StripLeadingHeader drops header, and the blank lines after it, from the start of text.
func StripLeadingHeader(text, header string) string {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(header) == "" {
		return text
	}
	if !strings.HasPrefix(text, header) {
		return text
	}
	return strings.TrimLeft(strings.TrimPrefix(text, header), "\r\n")
}

// Fold leaves short replies alone. Longer ones keep their first line visible and fold the rest.
func Fold(text string, maxLines int) string {
	if maxLines <= 0 || strings.Count(text, "\n") < maxLines {
		return text
	}
	header, body, _ := strings.Cut(text, "\n")
	return SeeMore(header, StripLeadingHeader(body, header))
}
