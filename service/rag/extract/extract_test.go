package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlainText(t *testing.T) {
	got := Extract([]byte("xin chào thế giới"), "notes.txt")
	assert.Equal(t, "xin chào thế giới", got)
}

func TestExtractMarkdown(t *testing.T) {
	got := Extract([]byte("# Tiêu đề\nnội dung"), "notes.md")
	assert.Equal(t, "# Tiêu đề\nnội dung", got)
}

func TestExtractUnknownExtensionFallsBackToDecode(t *testing.T) {
	got := Extract([]byte("raw bytes"), "blob.xyz")
	assert.Equal(t, "raw bytes", got)
}

func TestExtractDropsInvalidUTF8(t *testing.T) {
	data := append([]byte("abc"), 0xff, 0xfe)
	data = append(data, []byte("def")...)
	got := Extract(data, "data.txt")
	assert.Equal(t, "abcdef", got)
}

func TestExtractEmptyInput(t *testing.T) {
	assert.Equal(t, "", Extract(nil, "empty.txt"))
}

func TestExtractMalformedPDF(t *testing.T) {
	got := Extract([]byte("definitely not a pdf"), "broken.pdf")
	assert.Equal(t, "", got)
}

func TestExtractDOCX(t *testing.T) {
	docXML := `<?xml version="1.0"?>
<document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <body>
    <p><r><t>Đoạn một.</t></r></p>
    <p><r><t>Đoạn </t></r><r><t>hai.</t></r></p>
  </body>
</document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(docXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	got := Extract(buf.Bytes(), "report.docx")
	assert.Equal(t, "Đoạn một.\nĐoạn hai.", got)
}

func TestExtractMalformedDOCX(t *testing.T) {
	assert.Equal(t, "", Extract([]byte("not a zip"), "broken.docx"))
}
