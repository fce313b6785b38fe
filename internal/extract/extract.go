// Package extract turns uploaded document bytes into plain text for chunking.
// PDF files are read page by page; every other format is decoded as
// best-effort UTF-8 text.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Format identifies how a document's bytes are interpreted.
type Format string

const (
	// FormatPDF is a Portable Document Format file.
	FormatPDF Format = "pdf"
	// FormatText is any other file, decoded as UTF-8.
	FormatText Format = "text"
)

// pdfMagic is the signature every PDF file starts with.
var pdfMagic = []byte("%PDF-")

// DetectFormat infers the format from the filename extension, falling back
// to the PDF signature for files uploaded without an extension.
func DetectFormat(filename string, data []byte) Format {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return FormatPDF
	}
	if bytes.HasPrefix(data, pdfMagic) {
		return FormatPDF
	}
	return FormatText
}

// Text extracts the plain text of a document.
// PDF pages are concatenated with newlines. Undecodable byte sequences in
// other formats are dropped rather than reported.
func Text(filename string, data []byte) (string, error) {
	switch DetectFormat(filename, data) {
	case FormatPDF:
		return pdfText(data)
	default:
		return strings.ToValidUTF8(string(data), ""), nil
	}
}

// pdfText reads every page of a PDF and joins the page texts with "\n".
// Pages that fail to render (image-only, unsupported fonts) are skipped.
func pdfText(data []byte) (text string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract: malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract: open pdf: %w", err)
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		pg := r.Page(i)
		if pg.V.IsNull() {
			continue
		}
		txt, err := pg.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, txt)
	}
	return strings.Join(pages, "\n"), nil
}
