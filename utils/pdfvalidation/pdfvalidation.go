package pdfvalidation

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFLimits defines the validation limits for sheet files
type PDFLimits struct {
	MaxFileSizeMB    int    // Maximum file size in MB
	MaxPages         int    // Maximum number of pages
	DocumentTypeName string // For error messages
}

// SheetLimits applies to scanned ICM sheets: one sheet, front and back at most
var SheetLimits = PDFLimits{
	MaxFileSizeMB:    20,
	MaxPages:         2,
	DocumentTypeName: "ICM sheet",
}

// ValidationResult contains the result of PDF validation
type ValidationResult struct {
	Valid     bool
	PageCount int
	FileSize  int64
	Error     string
}

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/tiff": true,
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
}

// IsPDF reports whether a stored file is a PDF by mime type or extension
func IsPDF(fileName, mimeType string) bool {
	return strings.EqualFold(mimeType, "application/pdf") || strings.EqualFold(filepath.Ext(fileName), ".pdf")
}

// ValidateSheet checks a scanned sheet before it is sent for extraction.
// PDFs are parsed for their page count; scanned images only get the size check.
func ValidateSheet(content []byte, fileName, mimeType string, limits PDFLimits) *ValidationResult {
	if IsPDF(fileName, mimeType) {
		return ValidatePDFBytes(content, limits)
	}

	result := &ValidationResult{FileSize: int64(len(content))}
	if !imageTypes[strings.ToLower(mimeType)] && !imageExts[strings.ToLower(filepath.Ext(fileName))] {
		result.Error = fmt.Sprintf("Unsupported %s file type %q", limits.DocumentTypeName, mimeType)
		return result
	}
	if msg := checkSize(result.FileSize, limits); msg != "" {
		result.Error = msg
		return result
	}
	if result.FileSize == 0 {
		result.Error = "File is empty"
		return result
	}
	result.Valid = true
	return result
}

// ValidatePDFBytes validates PDF content bytes against the given limits
func ValidatePDFBytes(content []byte, limits PDFLimits) *ValidationResult {
	result := &ValidationResult{
		FileSize: int64(len(content)),
	}

	// 1. Validate file size
	if msg := checkSize(result.FileSize, limits); msg != "" {
		result.Error = msg
		return result
	}

	// 2. Validate PDF header
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		result.Error = "Invalid PDF file: missing PDF header"
		return result
	}

	// 3. Get page count
	pageCount, err := getPDFPageCount(content)
	if err != nil {
		result.Error = fmt.Sprintf("Failed to read PDF: %v", err)
		return result
	}

	result.PageCount = pageCount

	// 4. Validate page count
	if pageCount > limits.MaxPages {
		result.Error = fmt.Sprintf("PDF has %d pages, which exceeds the maximum of %d pages for %s",
			pageCount, limits.MaxPages, limits.DocumentTypeName)
		return result
	}

	if pageCount == 0 {
		result.Error = "PDF has no pages"
		return result
	}

	result.Valid = true
	return result
}

func checkSize(size int64, limits PDFLimits) string {
	maxSize := int64(limits.MaxFileSizeMB) * 1024 * 1024
	if size > maxSize {
		return fmt.Sprintf("File size exceeds maximum allowed size of %dMB", limits.MaxFileSizeMB)
	}
	return ""
}

// sanitizePDF removes trailing garbage data from PDFs
func sanitizePDF(content []byte) []byte {
	if len(content) == 0 {
		return content
	}

	eofMarker := []byte("%%EOF")
	lastEOF := bytes.LastIndex(content, eofMarker)

	if lastEOF == -1 {
		return content
	}

	pdfEnd := lastEOF + len(eofMarker)

	for pdfEnd < len(content) && (content[pdfEnd] == '\n' || content[pdfEnd] == '\r') {
		pdfEnd++
	}

	return content[:pdfEnd]
}

// getPDFPageCount returns the number of pages in a PDF
func getPDFPageCount(content []byte) (n int, err error) {
	// the parser panics on some truncated files
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	content = sanitizePDF(content)
	reader := bytes.NewReader(content)

	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse PDF: %w", err)
	}

	return pdfReader.NumPage(), nil
}
