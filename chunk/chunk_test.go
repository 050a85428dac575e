package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/poiesic/docent/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"defaults", DefaultSize, DefaultOverlap, false},
		{"no overlap", 10, 0, false},
		{"overlap one less than size", 10, 9, false},
		{"overlap equals size", 10, 10, true},
		{"overlap exceeds size", 10, 11, true},
		{"zero size", 0, 0, true},
		{"negative overlap", 10, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.size, tt.overlap)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.ErrorIs(t, err, core.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.size, c.Size())
			assert.Equal(t, tt.overlap, c.Overlap())
		})
	}
}

func TestMustNew_Panics(t *testing.T) {
	assert.Panics(t, func() { MustNew(5, 5) })
}

func TestSplit_Windows(t *testing.T) {
	c := MustNew(4, 1)

	assert.Equal(t, []string{"abcd", "defg", "ghij"}, c.Split("abcdefghij"))
	assert.Equal(t, []string{"abcd", "defg", "gh"}, c.Split("abcdefgh"))
	assert.Equal(t, []string{"abc"}, c.Split("abc"))
	assert.Equal(t, []string{"abcd"}, c.Split("abcd"))
	assert.Empty(t, c.Split(""))
}

func TestSplit_CountsCharactersNotBytes(t *testing.T) {
	c := MustNew(3, 1)

	windows := c.Split("日本語のテキスト")
	for _, w := range windows {
		assert.True(t, utf8.ValidString(w))
		assert.LessOrEqual(t, utf8.RuneCountInString(w), 3)
	}
	assert.Equal(t, "日本語", windows[0])
	assert.Equal(t, "語のテ", windows[1])
}

func TestSplit_Properties(t *testing.T) {
	texts := []string{
		"",
		"a",
		"short text",
		strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50),
		"ünïcödé " + strings.Repeat("ß∂ƒ©˙∆˚¬…", 30),
	}
	params := [][2]int{{1, 0}, {2, 1}, {7, 3}, {10, 0}, {50, 49}, {1000, 200}}

	for _, text := range texts {
		for _, p := range params {
			c := MustNew(p[0], p[1])
			windows := c.Split(text)

			// Deterministic
			assert.Equal(t, windows, c.Split(text))

			for i, w := range windows {
				n := utf8.RuneCountInString(w)
				assert.LessOrEqual(t, n, p[0])
				if i < len(windows)-1 {
					assert.Equal(t, p[0], n, "only the final window may be short")
				}
				if i > 0 {
					prev := []rune(windows[i-1])
					cur := []rune(w)
					assert.Equal(t, string(prev[len(prev)-p[1]:]), string(cur[:p[1]]),
						"consecutive windows share exactly the overlap")
				}
			}

			// Coverage
			joined, err := c.Join(windows)
			require.NoError(t, err)
			assert.Equal(t, text, joined)
		}
	}
}
