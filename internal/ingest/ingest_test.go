package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatThreshold(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{11.5, "11.5"},
		{12, "12"},
		{11.55, "11.55"},
		{0.5, "0.5"},
		{10.25, "10.25"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatThreshold(tc.in), "formatThreshold(%v)", tc.in)
	}
}

func TestNewRunLayout(t *testing.T) {
	root := t.TempDir()
	run, err := NewRun(root, 11.5)
	require.NoError(t, err)

	base := filepath.Base(run.Dir)
	assert.Regexp(t, regexp.MustCompile(`^run_\d{8}_\d{6}_11\.5$`), base)

	for _, dir := range []string{run.PagesDir, run.AlignedDir, run.OverlaysDir, run.ReviewDir, run.LogsDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}

	plain, err := NewRun(t.TempDir(), 0)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^run_\d{8}_\d{6}$`), filepath.Base(plain.Dir))
}

func TestRunPaths(t *testing.T) {
	run := OpenRun(filepath.Join("out", "run_x"))

	assert.Equal(t, filepath.Join("out", "run_x", "pages", "page_0003.jpg"), run.PagePath(3, ".jpg"))
	assert.Equal(t, filepath.Join("out", "run_x", "aligned", "page_0001.png"), run.AlignedPath(1))
	assert.Equal(t, filepath.Join("out", "run_x", "overlays", "page_0012_qa.png"), run.OverlayPath(12))
	assert.Equal(t, filepath.Join("out", "run_x", "review", "montage_page_0002.png"), run.MontagePath(2))
	assert.Equal(t, filepath.Join("out", "run_x", "review", "thumb_page_0004_Q1_2.png"), run.ThumbPath(4, "Q1_2"))
	assert.Equal(t, filepath.Join("out", "run_x", "report.json"), run.ReportPath())
	assert.Equal(t, filepath.Join("out", "run_x", "results.csv"), run.ResultsCSVPath())
	assert.Equal(t, filepath.Join("out", "run_x", "review.json"), run.ReviewJSONPath())
	assert.Equal(t, filepath.Join("out", "run_x", "review.csv"), run.ReviewCSVPath())
}

func TestLogStepAppends(t *testing.T) {
	run, err := NewRun(t.TempDir(), 0)
	require.NoError(t, err)

	require.NoError(t, run.LogStep("ingest", map[string]any{"pages": 3}))
	require.NoError(t, run.LogStep("classify", nil))

	data, err := os.ReadFile(filepath.Join(run.LogsDir, "steps.jsonl"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "ingest", first["step"])
	assert.Equal(t, float64(3), first["pages"])
	assert.NotEmpty(t, first["ts"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "classify", second["step"])
}

func TestLatestRun(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"run_20240101_000000", "run_20240102_120000", "run_20231231_235959"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0755))
	}
	// A stray file must not win even though it sorts last.
	require.NoError(t, os.WriteFile(filepath.Join(root, "run_notes.txt"), []byte("x"), 0644))

	run, err := LatestRun(root)
	require.NoError(t, err)
	assert.Equal(t, "run_20240102_120000", filepath.Base(run.Dir))

	_, err = LatestRun(t.TempDir())
	assert.Error(t, err)
}

func TestPageNumberFromExtracted(t *testing.T) {
	cases := []struct {
		name string
		want int
	}{
		{"scan_1_Im0.png", 1},
		{"batch_2024_final_3_Im0.png", 3},
		{"form_12_Img1.jpg", 12},
		{"a_07_Im0.tif", 7},
		{"noformat.png", 0},
		{"x_y_z.png", 0},
		{"page.png", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, pageNumberFromExtracted(tc.name), tc.name)
	}
}

func TestPickLargestPerPage(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, size int) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0644))
	}
	write("doc_1_Im0.png", 10)
	write("doc_1_Im1.png", 100)
	write("doc_2_Im0.png", 5)
	write("mask.bin", 50)

	best, err := pickLargestPerPage(dir)
	require.NoError(t, err)
	require.Len(t, best, 2)
	assert.Equal(t, filepath.Join(dir, "doc_1_Im1.png"), best[1])
	assert.Equal(t, filepath.Join(dir, "doc_2_Im0.png"), best[2])
}

func TestFromDirNaturalOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"page_2.png", "page_10.png", "page_1.png", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	paths, err := FromDir(dir)
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{"page_1.png", "page_2.png", "page_10.png"}, names)
}

func TestFromDirEmpty(t *testing.T) {
	_, err := FromDir(t.TempDir())
	assert.ErrorContains(t, err, "no page images")
}

func TestNaturalLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"page_2", "page_10", true},
		{"page_10", "page_2", false},
		{"a2b3", "a2b10", true},
		{"scan", "scanner", true},
		{"img9.png", "img10.png", true},
		{"b1", "a2", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, naturalLess(tc.a, tc.b), "%s < %s", tc.a, tc.b)
	}
}
