package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"formscan/internal/page"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractedPage matches pdfcpu's extracted image names, which end in
// _<pageNr>_<resourceId>. Anchoring on the final underscore-free
// segment keeps document names containing digits from being read as
// page numbers.
var extractedPage = regexp.MustCompile(`_(\d+)_[^_]+$`)

// FromPDF pulls the embedded page scans out of a PDF and files them
// under run.PagesDir as page_NNNN images. Returns the page paths in
// page order. Pages with no extractable image fail the whole call;
// that PDF was born digital and needs rasterizing first.
func FromPDF(pdfPath string, run *Run) ([]string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	file, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	ctx, err := api.ReadContext(file, conf)
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	total := ctx.PageCount
	if total == 0 {
		return nil, fmt.Errorf("%s has no pages", pdfPath)
	}

	extractDir := filepath.Join(run.Dir, "extract")
	if err := os.MkdirAll(extractDir, 0755); err != nil {
		return nil, err
	}
	defer os.RemoveAll(extractDir)

	if err := api.ExtractImagesFile(pdfPath, extractDir, nil, conf); err != nil {
		return nil, fmt.Errorf("extract images: %w", err)
	}

	best, err := pickLargestPerPage(extractDir)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, total)
	for n := 1; n <= total; n++ {
		src, ok := best[n]
		if !ok {
			return nil, fmt.Errorf("pdf page %d has no embedded image; rasterize the pdf and rerun with a scan directory", n)
		}
		if !page.IsSupportedFormat(src) {
			return nil, fmt.Errorf("pdf page %d extracted as %s, which the decoder cannot read; rasterize the pdf and rerun with a scan directory", n, filepath.Ext(src))
		}
		dst := run.PagePath(n, strings.ToLower(filepath.Ext(src)))
		if err := os.Rename(src, dst); err != nil {
			return nil, fmt.Errorf("file page %d: %w", n, err)
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

// pickLargestPerPage maps page number to the biggest extracted file
// for that page. Scanned-form PDFs embed one full-page image per
// page; when a page also carries masks or logos the full scan dwarfs
// them.
func pickLargestPerPage(dir string) (map[int]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	best := make(map[int]string)
	sizes := make(map[int]int64)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := pageNumberFromExtracted(e.Name())
		if n <= 0 {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > sizes[n] {
			sizes[n] = info.Size()
			best[n] = filepath.Join(dir, e.Name())
		}
	}
	return best, nil
}

// pageNumberFromExtracted reads the page number out of an extraction
// name like scan_3_Im0.png. Returns 0 when the name does not match.
func pageNumberFromExtracted(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	m := extractedPage.FindStringSubmatch(base)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// FromDir lists the supported images in a scan directory in natural
// order. Files stay where they are; the run directory only collects
// outputs.
func FromDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scan dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !page.IsSupportedFormat(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no page images in %s (want %s)", dir, strings.Join(page.SupportedFormats(), " "))
	}

	sort.Slice(paths, func(i, j int) bool {
		return naturalLess(filepath.Base(paths[i]), filepath.Base(paths[j]))
	})
	return paths, nil
}

// naturalLess orders digit runs numerically so page_2 sorts before
// page_10.
func naturalLess(a, b string) bool {
	for len(a) > 0 && len(b) > 0 {
		if isDigit(a[0]) && isDigit(b[0]) {
			an, arest := takeNumber(a)
			bn, brest := takeNumber(b)
			if an != bn {
				return an < bn
			}
			a, b = arest, brest
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func takeNumber(s string) (int, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	n, _ := strconv.Atoi(s[:i])
	return n, s[i:]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
