package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeeMore(t *testing.T) {
	got := SeeMore(" Standings ", "1. @alice 4 pts")
	assert.True(t, strings.HasPrefix(got, "Standings"+KakaoZeroWidthSpace))
	assert.Equal(t, KakaoSeeMorePadding, strings.Count(got, KakaoZeroWidthSpace))
	assert.True(t, strings.HasSuffix(got, "\n1. @alice 4 pts"))

	assert.Equal(t, "Standings", SeeMore("Standings", "  "))
}

func TestStripLeadingHeader(t *testing.T) {
	assert.Equal(t, "body", StripLeadingHeader("Title\n\nbody", "Title"))
	assert.Equal(t, "body", StripLeadingHeader("Title\r\nbody", "Title"))
	assert.Equal(t, "Other\nbody", StripLeadingHeader("Other\nbody", "Title"))
	assert.Equal(t, "Title\nbody", StripLeadingHeader("Title\nbody", ""))
}

func TestFold(t *testing.T) {
	short := "Title\n1\n2"
	assert.Equal(t, short, Fold(short, 3))

	long := "Title\n1\n2\n3"
	got := Fold(long, 3)
	header, body, ok := strings.Cut(got, "\n")
	assert.True(t, ok)
	assert.Equal(t, "Title"+strings.Repeat(KakaoZeroWidthSpace, KakaoSeeMorePadding), header)
	assert.Equal(t, "1\n2\n3", body)
}
