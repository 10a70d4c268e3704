package textproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "only whitespace", input: " \t\r\n \n", want: ""},
		{name: "collapses spaces and tabs", input: "Hà   Nội\t\tmùa  thu", want: "Hà Nội mùa thu"},
		{name: "windows line endings", input: "dòng một\r\ndòng hai\rdòng ba", want: "dòng một\ndòng hai\ndòng ba"},
		{name: "drops blank lines", input: "một\n\n\n   \nhai", want: "một\nhai"},
		{name: "trims lines", input: "  một  \n  hai  ", want: "một\nhai"},
		{name: "composes decomposed diacritics", input: "Vie\u0323\u0302t Nam", want: "Vi\u1ec7t Nam"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.input))
		})
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"  a  b \n\n c ",
		"\r\n\r\nXin chào.\t\tTạm biệt!  \n",
		"Một câu.\n \n Hai câu?\r Ba câu!",
		" lead \n tail ",
		"Tiếng Việt",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "input %q", in)
	}
}

func TestSegmentSentences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "splits on terminal punctuation",
			input: "Hôm nay trời đẹp. Chúng tôi đi chơi! Bạn có đi không? Tuyệt vời",
			want:  []string{"Hôm nay trời đẹp.", "Chúng tôi đi chơi!", "Bạn có đi không?", "Tuyệt vời"},
		},
		{
			name:  "drops short fragments",
			input: "Vâng. Đúng. Đây là một câu dài hơn.",
			want:  []string{"Đây là một câu dài hơn."},
		},
		{
			name:  "keeps decimals together",
			input: "Tăng trưởng đạt 6.5 phần trăm năm nay.",
			want:  []string{"Tăng trưởng đạt 6.5 phần trăm năm nay."},
		},
		{
			name:  "newline counts as whitespace",
			input: "Câu thứ nhất.\nCâu thứ hai.",
			want:  []string{"Câu thứ nhất.", "Câu thứ hai."},
		},
		{
			name:  "six characters is kept",
			input: "abcde. abcd.",
			want:  []string{"abcde."},
		},
		{name: "empty", input: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for s := range SegmentSentences(tt.input) {
				got = append(got, s)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSegmentSentencesStopsEarly(t *testing.T) {
	text := "Câu số một ở đây. Câu số hai ở đây. Câu số ba ở đây."
	var got []string
	for s := range SegmentSentences(text) {
		got = append(got, s)
		break
	}
	assert.Equal(t, []string{"Câu số một ở đây."}, got)
}

func TestCollectSentences(t *testing.T) {
	var b strings.Builder
	for range 120 {
		b.WriteString("Đây là một câu thử nghiệm. ")
	}

	assert.Len(t, CollectSentences(b.String(), 50), 50)
	assert.Len(t, CollectSentences(b.String(), 0), 120)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxChars int
		want     string
	}{
		{name: "short text untouched", input: "Xin chào.", maxChars: 100, want: "Xin chào."},
		{name: "exact length untouched", input: "abcde", maxChars: 5, want: "abcde"},
		{
			name:     "backs off to sentence end past midpoint",
			input:    "Câu một rất dài. Câu hai bị cắt",
			maxChars: 25,
			want:     "Câu một rất dài.",
		},
		{
			name:     "keeps hard cut when punctuation too early",
			input:    "Ừ. Sau đó là một đoạn văn rất dài không có dấu chấm",
			maxChars: 20,
			want:     "Ừ. Sau đó là một đoạ",
		},
		{
			name:     "counts characters not bytes",
			input:    "ươươươươươ",
			maxChars: 4,
			want:     "ươươ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.input, tt.maxChars)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, Len(got), max(tt.maxChars, Len(tt.input)))
		})
	}
}

func TestTruncateLengthProperty(t *testing.T) {
	text := strings.Repeat("Tiếng Việt có dấu. Không dấu thì khó đọc! ", 40)
	for _, n := range []int{1, 7, 50, 333, 1000, Len(text) - 1} {
		got := Truncate(text, n)
		require.LessOrEqual(t, Len(got), n, "n=%d", n)
		assert.True(t, strings.HasPrefix(text, got))
	}
	assert.Equal(t, text, Truncate(text, Len(text)))
}
