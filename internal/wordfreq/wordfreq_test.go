package wordfreq

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAnalyzer splits on spaces. Each field is "surface/category/canonical";
// a missing canonical part means the form is unknown.
type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(text string) []Morpheme {
	var out []Morpheme
	for _, f := range strings.Fields(text) {
		parts := strings.SplitN(f, "/", 3)
		m := Morpheme{Surface: parts[0]}
		if len(parts) > 1 {
			m.Category = parts[1]
		}
		if len(parts) > 2 {
			m.Canonical = parts[2]
		}
		out = append(out, m)
	}
	return out
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		text string
		want Table
	}{
		{
			name: "counts canonical forms of allowed categories",
			text: "cats/名詞/cat cat/名詞/cat ran/動詞/run dog/名詞/dog",
			want: Table{{"cat", 2}, {"dog", 1}},
		},
		{
			name: "category allow list is configurable",
			cfg:  Config{Categories: []string{"名詞", "動詞"}},
			text: "cat/名詞/cat ran/動詞/run runs/動詞/run",
			want: Table{{"cat", 1}, {"run", 2}},
		},
		{
			name: "unknown canonical forms are dropped by default",
			text: "foo/名詞 bar/名詞/bar",
			want: Table{{"bar", 1}},
		},
		{
			name: "unknown canonical forms can fall back to surface",
			cfg:  Config{Unknown: UnknownSurface},
			text: "foo/名詞 bar/名詞/bar foo/名詞",
			want: Table{{"foo", 2}, {"bar", 1}},
		},
		{
			name: "default stopwords are removed",
			text: "https/名詞/https こと/名詞/こと 写真/名詞/写真",
			want: Table{{"写真", 1}},
		},
		{
			name: "custom stopwords replace the defaults",
			cfg:  Config{Stopwords: []string{"写真"}},
			text: "https/名詞/https 写真/名詞/写真",
			want: Table{{"https", 1}},
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewExtractor(fakeAnalyzer{}, tt.cfg).Extract(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractTruncation(t *testing.T) {
	// a, b, c appear once each before d appears three times.
	text := "a/名詞/a b/名詞/b c/名詞/c d/名詞/d d/名詞/d d/名詞/d"

	first := NewExtractor(fakeAnalyzer{}, Config{Limit: 2}).Extract(text)
	assert.Equal(t, Table{{"a", 1}, {"b", 1}}, first, "first policy truncates before sorting")

	top := NewExtractor(fakeAnalyzer{}, Config{Limit: 2, Truncate: TruncateTop}).Extract(text)
	assert.Equal(t, Table{{"d", 3}, {"a", 1}}, top, "top policy sorts then truncates, ties by encounter order")
}

func TestExtractDefaultLimit(t *testing.T) {
	var b strings.Builder
	for i := range 150 {
		w := "w" + strings.Repeat("x", i)
		b.WriteString(w + "/名詞/" + w + " ")
	}
	got := NewExtractor(fakeAnalyzer{}, Config{}).Extract(b.String())
	require.Len(t, got, DefaultLimit)
	assert.Equal(t, "w", got[0].Text)
}

func TestExtractDeterministic(t *testing.T) {
	e := NewExtractor(fakeAnalyzer{}, Config{Unknown: UnknownSurface})
	text := "x/名詞/x y/名詞 z/名詞/z x/名詞/x"
	want := e.Extract(text)
	for range 10 {
		assert.Equal(t, want, e.Extract(text))
	}
}

func TestTableMax(t *testing.T) {
	assert.Equal(t, 0, Table(nil).Max())
	assert.Equal(t, 5, Table{{"a", 2}, {"b", 5}, {"c", 1}}.Max())
	assert.Equal(t, map[string]int{"a": 2, "b": 5}, Table{{"a", 2}, {"b", 5}}.Counts())
}

func TestParsePolicies(t *testing.T) {
	u, err := ParseUnknownPolicy("surface")
	require.NoError(t, err)
	assert.Equal(t, UnknownSurface, u)
	_, err = ParseUnknownPolicy("guess")
	assert.Error(t, err)

	tr, err := ParseTruncatePolicy("top")
	require.NoError(t, err)
	assert.Equal(t, TruncateTop, tr)
	_, err = ParseTruncatePolicy("")
	assert.Error(t, err)
}

func TestKagomeExtract(t *testing.T) {
	k, err := NewKagome()
	require.NoError(t, err)

	e := NewExtractor(k, Config{})
	got := e.Extract("猫が猫を見た猫の写真")
	assert.Equal(t, map[string]int{"猫": 3, "写真": 1}, got.Counts())
	require.Len(t, got, 2)
	assert.Equal(t, "猫", got[0].Text)

	assert.Equal(t, got, e.Extract("猫が猫を見た猫の写真"))
}
