package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	docxMainPart = "word/document.xml"

	// 解压后的正文上限，防止压缩炸弹
	maxDocxPartSize = 64 * 1024 * 1024
)

var errDocxTooLarge = errors.New("docx document part exceeds size limit")

// extractDOCX 提取正文中顶层段落的文本，段落之间以换行分隔。
//
// 只读取 w:body 的直接子段落，表格等容器内的段落不参与拼接。
// 段落内嵌的文本框（w:txbxContent）和 mc:Fallback 备用内容不计入段落文本。
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == docxMainPart {
			part = f
			break
		}
	}
	if part == nil {
		return "", fmt.Errorf("open docx: missing %s", docxMainPart)
	}
	if part.UncompressedSize64 > maxDocxPartSize {
		return "", errDocxTooLarge
	}

	rc, err := part.Open()
	if err != nil {
		return "", fmt.Errorf("open docx part: %w", err)
	}
	defer rc.Close()

	paragraphs, err := readParagraphs(io.LimitReader(rc, maxDocxPartSize))
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	return strings.Join(paragraphs, "\n"), nil
}

func readParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		path       []string
		paragraphs []string
		current    strings.Builder
		inPara     bool
		paraDepth  int
		inText     bool
		skip       int
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if !inPara && name == "p" && len(path) > 0 && path[len(path)-1] == "body" {
				inPara = true
				paraDepth = len(path)
				current.Reset()
			} else if inPara {
				switch name {
				case "txbxContent", "Fallback":
					skip++
				case "t":
					inText = true
				case "tab":
					if skip == 0 {
						current.WriteByte('\t')
					}
				case "br", "cr":
					if skip == 0 {
						current.WriteByte('\n')
					}
				}
			}
			path = append(path, name)

		case xml.EndElement:
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
			if inPara {
				switch t.Name.Local {
				case "t":
					inText = false
				case "txbxContent", "Fallback":
					skip--
				}
			}
			if inPara && t.Name.Local == "p" && len(path) == paraDepth {
				paragraphs = append(paragraphs, current.String())
				inPara = false
			}

		case xml.CharData:
			if inPara && inText && skip == 0 {
				current.Write(t)
			}
		}
	}

	return paragraphs, nil
}
