package classify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindDate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"dmy slash", "Ngày 05/03/2024 họp lớp", "2024-03-05"},
		{"dmy dash", "hạn nộp 15-08-2023", "2023-08-15"},
		{"ymd dash", "published 2022-11-30", "2022-11-30"},
		{"ymd slash", "backup 2021/07/04 done", "2021-07-04"},
		{"first match wins", "01/02/2020 rồi 2021-03-04", "2020-02-01"},
		{"month clamped", "deadline 10/13/2024", "2024-12-10"},
		{"day clamped", "họp 31/02/2024", "2024-02-29"},
		{"no date", "không có ngày nào cả", ""},
		{"partial year ignored", "5/3/24 is too short", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindDate(tt.text))
		})
	}
}

func TestClassifyTitle(t *testing.T) {
	c := New()

	meta := c.Classify(context.Background(), "\n\n  Giải tích 1 \nchương đầu tiên")
	assert.Equal(t, "Giải tích 1", meta.Title)

	long := strings.Repeat("ă", 200)
	meta = c.Classify(context.Background(), long)
	assert.Equal(t, 120, len([]rune(meta.Title)))

	meta = c.Classify(context.Background(), "   \n\t\n")
	assert.Equal(t, "", meta.Title)
}

func TestClassifyDocTypeHeuristics(t *testing.T) {
	c := New()
	ctx := context.Background()

	assert.Equal(t, "exam", c.Classify(ctx, "Đề thi cuối kỳ môn Toán").DocType)
	assert.Equal(t, "exercise", c.Classify(ctx, "Bài tập chương 2").DocType)
	assert.Equal(t, "syllabus", c.Classify(ctx, "Đề cương ôn tập học kỳ I").DocType)
	assert.Equal(t, "report", c.Classify(ctx, "Báo cáo thực tập tốt nghiệp").DocType)
	assert.Equal(t, "lecture", c.Classify(ctx, "Lecture 3: Linear Algebra").DocType)
	assert.Equal(t, "other", c.Classify(ctx, "nội dung tự do").DocType)

	// exam keywords outrank exercise keywords when both appear
	assert.Equal(t, "exam", c.Classify(ctx, "Bài tập trong đề thi thử").DocType)
}

func TestClassifyDate(t *testing.T) {
	c := New()
	meta := c.Classify(context.Background(), "Biên bản họp ngày 05/03/2024")
	assert.Equal(t, "2024-03-05", meta.Date)
	assert.Equal(t, 2024, meta.Year)
	assert.Equal(t, 3, meta.Month)

	meta = c.Classify(context.Background(), "không ngày tháng")
	assert.Equal(t, "", meta.Date)
	assert.Zero(t, meta.Year)
	assert.Zero(t, meta.Month)
}

func TestExtractTags(t *testing.T) {
	c := New()
	text := strings.Repeat("đạo hàm riêng ", 5) + strings.Repeat("tích phân ", 4) + "và của the 123 ab"
	tags := c.extractTags(text)

	assert.NotEmpty(t, tags)
	assert.LessOrEqual(t, len(tags), defaultMaxTags)
	assert.Contains(t, tags, "đạo hàm")
	assert.Contains(t, tags, "tích phân")
	for _, tag := range tags {
		assert.NotContains(t, []string{"và", "của", "the", "123", "ab"}, tag)
	}
	// bigrams come before unigrams
	assert.Less(t, indexOf(tags, "đạo hàm"), indexOf(tags, "đạo"))
}

func TestExtractTagsDeterministic(t *testing.T) {
	c := New(WithMaxTags(5))
	text := "tối ưu hóa hàm lồi với gradient descent và tối ưu hóa ngẫu nhiên"
	first := c.extractTags(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.extractTags(text))
	}
	assert.LessOrEqual(t, len(first), 5)
}

func TestClassifyEmptyText(t *testing.T) {
	meta := New().Classify(context.Background(), "")
	assert.Equal(t, "", meta.Title)
	assert.Equal(t, "other", meta.DocType)
	assert.Empty(t, meta.Tags)
}

func indexOf(ss []string, v string) int {
	for i, s := range ss {
		if s == v {
			return i
		}
	}
	return len(ss)
}
