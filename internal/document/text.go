package document

import (
	"path/filepath"
	"strings"
)

// Format 文档格式（由文件名后缀决定）
type Format string

const (
	FormatPDF   Format = "pdf"
	FormatDOCX  Format = "docx"
	FormatPlain Format = "plain"
)

// DetectFormat 按文件名后缀（大小写不敏感）判定格式
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	default:
		return FormatPlain
	}
}

// ExtractText 将附件字节转换为纯文本
//
// .pdf 按页提取后以换行拼接；.docx 按段落提取后以换行拼接；其余格式按 UTF-8 尽力解码，
// 无法解码的字节直接丢弃。纯文本分支永远不会返回错误。
//
// 参数:
//   - data: 附件原始字节
//   - filename: 附件文件名，仅用于格式判定
//
// 返回值:
//   - string: 提取出的文本
//   - error: 仅 PDF/DOCX 结构损坏时返回
func ExtractText(data []byte, filename string) (string, error) {
	switch DetectFormat(filename) {
	case FormatPDF:
		return extractPDF(data)
	case FormatDOCX:
		return extractDOCX(data)
	default:
		return DecodeUTF8(data), nil
	}
}

// DecodeUTF8 尽力解码 UTF-8，非法字节被丢弃
func DecodeUTF8(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}
