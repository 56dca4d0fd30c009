package document

import (
	"archive/zip"
	"bytes"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// buildDocx 构造只含 word/document.xml 的最小 docx
func buildDocx(t *testing.T, body string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document ` + wordNS + `><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		expected Format
	}{
		{"schedule.pdf", FormatPDF},
		{"SCHEDULE.PDF", FormatPDF},
		{"week.Docx", FormatDOCX},
		{"notes.txt", FormatPlain},
		{"archive.pdf.zip", FormatPlain},
		{"pdf", FormatPlain},
		{"", FormatPlain},
		{"legacy.doc", FormatPlain},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectFormat(tt.filename))
		})
	}
}

func TestExtractTextPlain(t *testing.T) {
	t.Run("合法UTF-8原样返回", func(t *testing.T) {
		text, err := ExtractText([]byte("Friday 5pm Gala\n周六 婚礼"), "schedule.txt")
		require.NoError(t, err)
		assert.Equal(t, "Friday 5pm Gala\n周六 婚礼", text)
	})

	t.Run("非法字节被丢弃", func(t *testing.T) {
		text, err := ExtractText([]byte{'a', 0xff, 'b', 0xc3, 'c'}, "schedule.csv")
		require.NoError(t, err)
		assert.Equal(t, "abc", text)
	})

	t.Run("全部非法字节返回空串", func(t *testing.T) {
		text, err := ExtractText([]byte{0xff, 0xfe, 0xfd}, "blob.bin")
		require.NoError(t, err)
		assert.Equal(t, "", text)
	})

	t.Run("空输入", func(t *testing.T) {
		text, err := ExtractText(nil, "empty")
		require.NoError(t, err)
		assert.Equal(t, "", text)
	})
}

func TestExtractTextDOCX(t *testing.T) {
	t.Run("段落按顺序以换行拼接", func(t *testing.T) {
		data := buildDocx(t,
			`<w:p><w:r><w:t>Saturday March 2</w:t></w:r></w:p>`+
				`<w:p><w:r><w:t xml:space="preserve">Gala </w:t></w:r><w:r><w:t>5:00 PM</w:t></w:r></w:p>`+
				`<w:p/>`+
				`<w:p><w:r><w:t>Guests</w:t><w:tab/><w:t>250</w:t></w:r></w:p>`)

		text, err := ExtractText(data, "Week.DOCX")
		require.NoError(t, err)
		assert.Equal(t, "Saturday March 2\nGala 5:00 PM\n\nGuests\t250", text)
	})

	t.Run("表格内段落不参与拼接", func(t *testing.T) {
		data := buildDocx(t,
			`<w:p><w:r><w:t>Header</w:t></w:r></w:p>`+
				`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`+
				`<w:p><w:r><w:t>Footer</w:t></w:r></w:p>`)

		text, err := ExtractText(data, "a.docx")
		require.NoError(t, err)
		assert.Equal(t, "Header\nFooter", text)
	})

	t.Run("文本框与备用内容不计入段落", func(t *testing.T) {
		data := buildDocx(t,
			`<w:p><w:r><w:t>Gala</w:t></w:r>`+
				`<w:r><mc:AlternateContent xmlns:mc="http://schemas.openxmlformats.org/markup-compatibility/2006" `+
				`xmlns:wps="http://schemas.microsoft.com/office/word/2010/wordprocessingShape" xmlns:v="urn:schemas-microsoft-com:vml">`+
				`<mc:Choice Requires="wps"><w:drawing><wps:txbx><w:txbxContent>`+
				`<w:p><w:r><w:t>boxed</w:t></w:r></w:p></w:txbxContent></wps:txbx></w:drawing></mc:Choice>`+
				`<mc:Fallback><w:pict><v:textbox><w:txbxContent>`+
				`<w:p><w:r><w:t>boxed</w:t></w:r></w:p></w:txbxContent></v:textbox></w:pict></mc:Fallback>`+
				`</mc:AlternateContent></w:r>`+
				`<w:r><w:t> 5pm</w:t></w:r></w:p>`+
				`<w:p><w:r><w:t>Brunch</w:t></w:r></w:p>`)

		text, err := ExtractText(data, "a.docx")
		require.NoError(t, err)
		assert.Equal(t, "Gala 5pm\nBrunch", text)
	})

	t.Run("换行标记", func(t *testing.T) {
		data := buildDocx(t, `<w:p><w:r><w:t>line1</w:t><w:br/><w:t>line2</w:t></w:r></w:p>`)

		text, err := ExtractText(data, "a.docx")
		require.NoError(t, err)
		assert.Equal(t, "line1\nline2", text)
	})

	t.Run("不是zip时返回错误", func(t *testing.T) {
		_, err := ExtractText([]byte("plain text pretending"), "fake.docx")
		assert.Error(t, err)
	})

	t.Run("缺少正文部件时返回错误", func(t *testing.T) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		_, err := zw.Create("word/styles.xml")
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		_, err = ExtractText(buf.Bytes(), "nobody.docx")
		assert.ErrorContains(t, err, "word/document.xml")
	})
}

func TestExtractTextPDF(t *testing.T) {
	t.Run("损坏的PDF返回错误而不是panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			_, err := ExtractText([]byte("%PDF-1.4\ngarbage without xref"), "broken.pdf")
			assert.Error(t, err)
		})
	})

	t.Run("空PDF返回错误", func(t *testing.T) {
		assert.NotPanics(t, func() {
			_, err := ExtractText(nil, "empty.pdf")
			assert.Error(t, err)
		})
	})
}

func TestExtractTextPlainProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("plain extraction never fails and yields valid UTF-8", prop.ForAll(
		func(data []byte, name string) bool {
			text, err := ExtractText(data, name+".txt")
			if err != nil {
				return false
			}
			if !utf8.ValidString(text) || len(text) > len(data) {
				return false
			}
			if utf8.Valid(data) && text != string(data) {
				return false
			}
			// 为空当且仅当输入中没有任何可解码字符
			hasValidRune := false
			for rest := data; len(rest) > 0; {
				r, size := utf8.DecodeRune(rest)
				if r != utf8.RuneError || size > 1 {
					hasValidRune = true
					break
				}
				rest = rest[size:]
			}
			return (text == "") == !hasValidRune
		},
		gen.SliceOf(gen.UInt8()),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
