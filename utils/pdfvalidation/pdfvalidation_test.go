package pdfvalidation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sahilchouksey/icm-reconcile/utils/pdfvalidation/pdftest"
)

func TestValidateSheetPDF(t *testing.T) {
	res := ValidateSheet(pdftest.Build(1), "sheet.pdf", "application/pdf", SheetLimits)
	assert.True(t, res.Valid, res.Error)
	assert.Equal(t, 1, res.PageCount)

	res = ValidateSheet(pdftest.Build(3), "sheet.pdf", "", SheetLimits)
	assert.False(t, res.Valid)
	assert.Equal(t, 3, res.PageCount)
	assert.Contains(t, res.Error, "exceeds the maximum of 2 pages")
}

func TestValidateSheetRejectsBrokenPDF(t *testing.T) {
	res := ValidateSheet([]byte("hello"), "sheet.pdf", "application/pdf", SheetLimits)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "missing PDF header")

	res = ValidateSheet([]byte("%PDF-1.4\ngarbage"), "sheet.pdf", "application/pdf", SheetLimits)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Error)
}

func TestValidateSheetImages(t *testing.T) {
	assert.True(t, ValidateSheet([]byte{0xff, 0xd8}, "scan.JPG", "", SheetLimits).Valid)
	assert.True(t, ValidateSheet([]byte{0x89}, "scan", "image/png", SheetLimits).Valid)
	assert.False(t, ValidateSheet(nil, "scan.png", "image/png", SheetLimits).Valid)
	assert.False(t, ValidateSheet([]byte("x"), "notes.docx", "application/msword", SheetLimits).Valid)

	tiny := PDFLimits{MaxFileSizeMB: 0, MaxPages: 1, DocumentTypeName: "sheet"}
	assert.False(t, ValidateSheet([]byte{1}, "scan.png", "", tiny).Valid)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("a.PDF", ""))
	assert.True(t, IsPDF("a", "application/pdf"))
	assert.False(t, IsPDF("a.png", "image/png"))
}
