package batch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/summarization"
)

type stubSummarizer struct {
	calls  []string
	failOn string
}

func (s *stubSummarizer) Summarize(_ context.Context, text, model string, _ int) (summarization.Result, error) {
	s.calls = append(s.calls, text)
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return summarization.Result{}, errors.New("inference server error 500: boom")
	}
	return summarization.Result{
		Summary:    "tóm tắt " + text,
		ModelUsed:  domain.ModelVariant(model),
		InferenceS: 0.25,
	}, nil
}

type stubEvaluator struct {
	calls int
	fail  bool
}

func (s *stubEvaluator) EvaluateSingle(_ context.Context, pred, ref string, bert bool) (domain.EvaluationMetrics, error) {
	s.calls++
	if s.fail {
		return domain.EvaluationMetrics{}, errors.New("segmenter unavailable")
	}
	score := 0.0
	if pred != "" && pred == ref {
		score = 1
	}
	m := domain.EvaluationMetrics{Rouge1: score, Rouge2: score, RougeL: score, BLEU: score}
	if bert {
		m.BERTScore, m.BERTScoreComputed = score, true
	}
	return m, nil
}

func mustParseCSV(t *testing.T, content string) *Table {
	t.Helper()
	tbl, err := ParseTable("upload.csv", strings.NewReader(content))
	require.NoError(t, err)
	return tbl
}

func TestParseTableCSV(t *testing.T) {
	tbl := mustParseCSV(t, "\ufeff id , text ,reference\n1,\"Xin chào, thế giới\",ref\n2,short\n")

	assert.Equal(t, []string{"id", "text", "reference"}, tbl.Headers)
	assert.Equal(t, 2, tbl.Len())

	col, err := tbl.Column(" text ")
	require.NoError(t, err)
	assert.Equal(t, "Xin chào, thế giới", tbl.Cell(0, col))

	refCol, err := tbl.Column("reference")
	require.NoError(t, err)
	assert.Equal(t, "", tbl.Cell(1, refCol), "short rows read as empty")
}

func TestParseTableXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"text", "reference"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Văn bản một", "Tham chiếu"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"Văn bản hai"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tbl, err := ParseTable("Data.XLSX", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"text", "reference"}, tbl.Headers)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "Văn bản hai", tbl.Cell(1, 0))
	assert.Equal(t, "", tbl.Cell(1, 1))
}

func TestParseTableXLS(t *testing.T) {
	data, err := os.ReadFile("testdata/sample.xls")
	require.NoError(t, err)

	tbl, err := ParseTable("sample.xls", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"text", "reference"}, tbl.Headers)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "Văn bản một", tbl.Cell(0, 0))
	assert.Equal(t, "Tham chiếu một", tbl.Cell(0, 1))
	assert.Equal(t, "Văn bản hai", tbl.Cell(1, 0))
	assert.Equal(t, "", tbl.Cell(1, 1))
}

func TestParseTableErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		wantErr  error
	}{
		{name: "unsupported extension", filename: "notes.txt", content: "text\nabc", wantErr: domain.ErrUnsupportedFormat},
		{name: "no extension", filename: "upload", content: "text\nabc", wantErr: domain.ErrUnsupportedFormat},
		{name: "corrupt xls", filename: "old.xls", content: "\xd0\xcf\x11\xe0not a workbook", wantErr: ErrUnreadableFile},
		{name: "corrupt xlsx", filename: "new.xlsx", content: "PK not a zip", wantErr: ErrUnreadableFile},
		{name: "empty csv", filename: "empty.csv", content: "", wantErr: ErrNoHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable(tt.filename, strings.NewReader(tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("a.csv"))
	assert.True(t, IsSupported("a.XLSX"))
	assert.True(t, IsSupported("a.xls"))
	assert.False(t, IsSupported("a.json"))
}

func TestColumnMissing(t *testing.T) {
	tbl := mustParseCSV(t, "content,summary\nx,y\n")

	_, err := tbl.Column("text")
	require.Error(t, err)

	var mc *domain.MissingColumnError
	require.ErrorAs(t, err, &mc)
	assert.Equal(t, "text", mc.Column)
	assert.Equal(t, []string{"content", "summary"}, mc.Available)
	assert.Equal(t, "column 'text' not found. Available columns: [content, summary]", err.Error())
}

func TestRunSummarization(t *testing.T) {
	csv := "id,text,reference\n" +
		"0,Bài báo thứ nhất,tóm tắt Bài báo thứ nhất\n" +
		"1,Bài báo thứ hai,\n" +
		"2,,tham chiếu\n" +
		"3,Bài báo lỗi,\n" +
		"4,Bài báo thứ năm,khác hẳn\n"
	tbl := mustParseCSV(t, csv)
	sum := &stubSummarizer{failOn: "lỗi"}
	ev := &stubEvaluator{}
	o := NewOrchestrator(sum, ev, nil, nil)

	res, err := o.RunSummarization(context.Background(), tbl, "vit5", 256, "text", "reference")
	require.NoError(t, err)

	assert.Equal(t, 5, res.TotalItems)
	assert.Equal(t, 3, res.SuccessfulItems)
	assert.Equal(t, 2, res.FailedItems)
	assert.Equal(t, "vit5", res.ModelUsed)
	require.Len(t, res.Results, 5)

	for i, item := range res.Results {
		assert.Equal(t, i, item.Index)
	}

	first := res.Results[0]
	assert.True(t, first.Success)
	require.NotNil(t, first.Rouge1)
	assert.InDelta(t, 1, *first.Rouge1, 1e-9)
	assert.Nil(t, first.BERTScore, "bertscore is never computed in summarization batches")

	second := res.Results[1]
	assert.True(t, second.Success)
	assert.Nil(t, second.ReferenceSummary)
	assert.Nil(t, second.Rouge1)

	empty := res.Results[2]
	assert.False(t, empty.Success)
	require.NotNil(t, empty.Error)
	assert.Equal(t, domain.ErrEmptyText.Error(), *empty.Error)
	assert.Nil(t, empty.Rouge1)

	failed := res.Results[3]
	assert.False(t, failed.Success)
	assert.Contains(t, *failed.Error, "boom")
	assert.Empty(t, failed.Summary)

	last := res.Results[4]
	assert.True(t, last.Success)
	require.NotNil(t, last.BLEU)
	assert.Zero(t, *last.BLEU)

	assert.Len(t, sum.calls, 4, "the empty row never reaches the server")
	assert.Equal(t, 2, ev.calls)
}

func TestRunSummarizationEmptyRowInFiveRowUpload(t *testing.T) {
	tbl := mustParseCSV(t, "id,text\n1,một\n2,hai\n3,\n4,bốn\n5,năm\n")
	o := NewOrchestrator(&stubSummarizer{}, &stubEvaluator{}, nil, nil)

	res, err := o.RunSummarization(context.Background(), tbl, "qwen", 256, "", "")
	require.NoError(t, err)
	assert.Equal(t, 5, res.TotalItems)
	assert.Equal(t, 1, res.FailedItems)
	assert.False(t, res.Results[2].Success)
}

func TestRunSummarizationRejectsBeforeWork(t *testing.T) {
	tbl := mustParseCSV(t, "content\nabc\n")

	tests := []struct {
		name    string
		model   string
		textCol string
		refCol  string
		wantErr error
	}{
		{name: "unknown model", model: "bart", textCol: "content", wantErr: domain.ErrUnsupportedModel},
		{name: "missing text column", model: "vit5", textCol: "text", wantErr: domain.ErrMissingColumn},
		{name: "missing reference column", model: "vit5", textCol: "content", refCol: "ref", wantErr: domain.ErrMissingColumn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := &stubSummarizer{}
			o := NewOrchestrator(sum, &stubEvaluator{}, nil, nil)
			_, err := o.RunSummarization(context.Background(), tbl, tt.model, 256, tt.textCol, tt.refCol)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, sum.calls)
		})
	}
}

func TestRunSummarizationEvaluationFailureFailsRow(t *testing.T) {
	tbl := mustParseCSV(t, "text,reference\nabc,def\n")
	o := NewOrchestrator(&stubSummarizer{}, &stubEvaluator{fail: true}, nil, nil)

	res, err := o.RunSummarization(context.Background(), tbl, "vit5", 256, "text", "reference")
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.False(t, res.Results[0].Success)
	assert.Nil(t, res.Results[0].Rouge1)
	assert.Contains(t, *res.Results[0].Error, "segmenter unavailable")
}

func TestRunSummarizationCancelled(t *testing.T) {
	tbl := mustParseCSV(t, "text\na\nb\n")
	sum := &stubSummarizer{}
	o := NewOrchestrator(sum, &stubEvaluator{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := o.RunSummarization(ctx, tbl, "vit5", 256, "text", "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.FailedItems)
	assert.Empty(t, sum.calls)
}

func TestRunEvaluationOnly(t *testing.T) {
	tbl := mustParseCSV(t, "summary,reference\n"+
		"giống nhau,giống nhau\n"+
		",thiếu tóm tắt\n"+
		"khác,hoàn toàn\n"+
		"giống,giống\n")
	ev := &stubEvaluator{}
	o := NewOrchestrator(nil, ev, nil, nil)

	res, err := o.RunEvaluationOnly(context.Background(), tbl, "", "", true)
	require.NoError(t, err)

	assert.Equal(t, 4, res.TotalItems)
	assert.Equal(t, 4, res.SuccessfulItems)
	assert.Zero(t, res.FailedItems)
	assert.Equal(t, 4, ev.calls, "blank rows are still scored")
	assert.InDelta(t, 0.5, res.AvgRouge1, 1e-9)
	assert.InDelta(t, 0.5, res.AvgBERTScore, 1e-9)
	assert.True(t, res.Results[1].Success)
	assert.Zero(t, res.Results[1].Rouge1)
}

func TestRunEvaluationOnlyErrors(t *testing.T) {
	t.Run("missing reference column", func(t *testing.T) {
		tbl := mustParseCSV(t, "summary,ref\na,b\n")
		o := NewOrchestrator(nil, &stubEvaluator{}, nil, nil)
		_, err := o.RunEvaluationOnly(context.Background(), tbl, "summary", "reference", false)

		var mc *domain.MissingColumnError
		require.ErrorAs(t, err, &mc)
		assert.Equal(t, "reference", mc.Column)
	})

	t.Run("row failures are recorded", func(t *testing.T) {
		tbl := mustParseCSV(t, "summary,reference\na,b\nc,d\n")
		o := NewOrchestrator(nil, &stubEvaluator{fail: true}, nil, nil)
		res, err := o.RunEvaluationOnly(context.Background(), tbl, "summary", "reference", false)
		require.NoError(t, err)
		assert.Equal(t, 2, res.FailedItems)
		assert.Zero(t, res.AvgRouge1)
		require.NotNil(t, res.Results[0].Error)
	})
}
