package textproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanOutput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty stays empty", input: "   ", want: ""},
		{name: "adds period", input: "Kinh tế tăng trưởng", want: "Kinh tế tăng trưởng."},
		{name: "keeps question mark", input: "Có đúng không?", want: "Có đúng không?"},
		{name: "keeps exclamation", input: "Tuyệt vời!", want: "Tuyệt vời!"},
		{name: "collapses whitespace", input: "  a \n\t b  c. ", want: "a b c."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanOutput(tt.input))
		})
	}
}

func TestRemoveRepetition(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no repetition",
			input: "thành phố Hà Nội đang phát triển nhanh chóng",
			want:  "thành phố Hà Nội đang phát triển nhanh chóng",
		},
		{
			name:  "six word phrase repeated three times",
			input: "mở đầu chính phủ ban hành nghị định chính phủ ban hành nghị định chính phủ ban hành nghị định kết thúc",
			want:  "mở đầu chính phủ ban hành nghị định kết thúc",
		},
		{
			name:  "five word phrase repeated twice",
			input: "người dân rất vui mừng người dân rất vui mừng",
			want:  "người dân rất vui mừng",
		},
		{
			name:  "separated repeat skips one window",
			input: "người dân rất vui mừng hôm nay người dân rất vui mừng thật",
			want:  "người dân rất vui mừng hôm nay thật",
		},
		{
			name:  "short repeats are allowed",
			input: "a b c d e a b c d e",
			want:  "a b c d e a b c d e",
		},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RemoveRepetition(tt.input, MinRepeatLength))
		})
	}
}

func TestRemoveRepetitionPreservesOrder(t *testing.T) {
	phrase := "giá xăng dầu trong nước tăng"
	input := "Hôm nay " + strings.Repeat(phrase+" ", 3) + "theo thông báo mới"
	got := RemoveRepetition(input, MinRepeatLength)

	assert.Equal(t, 1, strings.Count(got, phrase))
	assert.Equal(t, "Hôm nay "+phrase+" theo thông báo mới", got)
}

func TestEnsureCompleteSentences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "drops dangling tail",
			input: "Câu đầu tiên đã hoàn chỉnh. Câu sau bị",
			want:  "Câu đầu tiên đã hoàn chỉnh.",
		},
		{
			name:  "keeps text when mark is early",
			input: "Ngắn. Phần còn lại rất dài và không kết thúc bằng dấu câu",
			want:  "Ngắn. Phần còn lại rất dài và không kết thúc bằng dấu câu",
		},
		{name: "no punctuation", input: "không có dấu", want: "không có dấu"},
		{name: "already complete", input: "Xong rồi!", want: "Xong rồi!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnsureCompleteSentences(tt.input))
		})
	}
}
