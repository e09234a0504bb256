package services

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtractText_PlainText(t *testing.T) {
	for _, declared := range []string{"text", "txt", "md", "markdown"} {
		got, err := ExtractText([]byte("hello world"), declared)
		require.NoError(t, err, declared)
		assert.Equal(t, "hello world", got)
	}
}

func TestExtractText_Docx(t *testing.T) {
	docXML := `<?xml version="1.0"?>
<document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <body>
    <p><r><t>First paragraph.</t></r></p>
    <p><r><t>Second </t></r><r><t>paragraph.</t></r></p>
  </body>
</document>`
	got, err := ExtractText(buildDocx(t, docXML), "docx")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", got)
}

func TestExtractText_DocxWithoutDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/other.xml")
	require.NoError(t, err)
	_, _ = f.Write([]byte("<x/>"))
	require.NoError(t, w.Close())

	_, err = ExtractText(buf.Bytes(), "docx")
	assert.Error(t, err)
}

func TestExtractText_UnsupportedType(t *testing.T) {
	_, err := ExtractText([]byte{0x00}, "xls")
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
	assert.Contains(t, err.Error(), "xls")
}

func TestExtractText_InvalidPDF(t *testing.T) {
	_, err := ExtractText([]byte("not a pdf"), "pdf")
	assert.Error(t, err)
}

func TestIsImageType(t *testing.T) {
	assert.True(t, IsImageType("png"))
	assert.True(t, IsImageType("JPG"))
	assert.True(t, IsImageType("jpeg"))
	assert.False(t, IsImageType("pdf"))
	assert.False(t, IsImageType("text"))
}
