package extractor

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// ErrUnsupported reports a file extension no extractor handles. Callers can
// distinguish it from an extraction crash; an empty paragraph slice with a
// nil error means the file parsed but contained no text.
var ErrUnsupported = errors.New("unsupported file type")

// Paragraphs extracts the ordered paragraph sequence from a source file.
func Paragraphs(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".tex":
		return extractText(path)
	case ".md":
		return extractMarkdown(path)
	case ".pdf":
		return extractPDF(path)
	case ".docx":
		return extractDOCX(path)
	case ".pptx":
		return extractPPTX(path)
	case ".xlsx":
		return extractXLSX(path)
	case ".ods":
		return extractODS(path)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

// Supported reports whether the file extension has an extractor.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".tex", ".md", ".pdf", ".docx", ".pptx", ".xlsx", ".ods":
		return true
	}
	return false
}

// Text returns the whole document as one string, paragraphs separated by
// blank lines. Used when a selected document is inlined into a prompt.
func Text(path string) (string, error) {
	paras, err := Paragraphs(path)
	if err != nil {
		return "", err
	}
	return strings.Join(paras, "\n\n"), nil
}

func extractText(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return splitParagraphs(string(data)), nil
}

func extractMarkdown(path string) ([]string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	md := goldmark.New()
	root := md.Parser().Parse(gmtext.NewReader(source))

	var paras []string
	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		var b strings.Builder
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(source))
		}
		// Container blocks (lists, quotes) keep their text on child nodes.
		if b.Len() == 0 {
			_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
				if !entering {
					return ast.WalkContinue, nil
				}
				if t, ok := n.(*ast.Text); ok {
					b.Write(t.Segment.Value(source))
					b.WriteString(" ")
				}
				return ast.WalkContinue, nil
			})
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			paras = append(paras, text)
		}
	}
	return paras, nil
}

func extractPDF(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var paras []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not lose the document.
			continue
		}
		paras = append(paras, splitParagraphs(pageText)...)
	}
	return paras, nil
}

func extractDOCX(path string) ([]string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var paras []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			paras = append(paras, line)
		}
	}
	return paras, nil
}

// extractPPTX pulls drawingml text runs from each slide. One paragraph per
// slide, matching how slide text reads as a unit.
func extractPPTX(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	slides := make(map[string]string)
	var names []string
	for _, file := range r.File {
		if !strings.HasPrefix(file.Name, "ppt/slides/slide") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		slides[file.Name] = textRuns(string(data))
		names = append(names, file.Name)
	}
	sort.Strings(names)

	var paras []string
	for _, name := range names {
		if text := strings.TrimSpace(slides[name]); text != "" {
			paras = append(paras, text)
		}
	}
	return paras, nil
}

func extractXLSX(path string) ([]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, err
	}

	var paras []string
	for _, sheet := range f.Sheets {
		var b strings.Builder
		b.WriteString("Sheet: " + sheet.Name + "\n")
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				b.WriteString(cell.String() + "\t")
			}
			b.WriteString("\n")
		}
		paras = append(paras, strings.TrimSpace(b.String()))
	}
	return paras, nil
}

func extractODS(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var paras []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var b strings.Builder
		b.WriteString("Sheet: " + sheetName + "\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
		paras = append(paras, strings.TrimSpace(b.String()))
	}
	return paras, nil
}

// textRuns extracts the contents of <a:t> elements from slide XML.
func textRuns(xmlContent string) string {
	var b strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		if end := strings.Index(part, "</a:t>"); end >= 0 {
			b.WriteString(part[:end] + " ")
		}
	}
	return b.String()
}

func splitParagraphs(text string) []string {
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paras = append(paras, p)
		}
	}
	return paras
}
