// Package pdf はPDFツールの種類と、その入力・パラメータ・成果物名の規則を提供します。
package pdf

import (
	"sort"
	"strings"
)

// OperationType はPDFツールの種別を表します。
type OperationType string

const (
	OperationCompress  OperationType = "compress-pdf"
	OperationMerge     OperationType = "merge-pdf"
	OperationSplit     OperationType = "split-pdf"
	OperationRotate    OperationType = "rotate-pdf"
	OperationWatermark OperationType = "add-watermark"
	OperationToWord    OperationType = "pdf-to-word"
	OperationToExcel   OperationType = "pdf-to-excel"
	OperationToImage   OperationType = "pdf-to-image"
)

// ResultKind は変換APIのレスポンス形式を表します。
type ResultKind string

const (
	// ResultKindBinary はレスポンス本文がそのまま成果物になる形式です。
	ResultKindBinary ResultKind = "binary"
	// ResultKindBatch はJSONで成果物の参照リストが返る形式です（ページごとの画像など）。
	ResultKindBatch ResultKind = "batch"
)

// パラメータ名
const (
	ParamText      = "text"
	ParamPages     = "pages"
	ParamAngle     = "angle"
	ParamPageRange = "pageRange"
)

const pdfMediaType = "application/pdf"

// Operation はツールごとのリクエスト形式と成果物の規則です。
type Operation struct {
	Type            OperationType     `json:"type"`
	Title           string            `json:"title"`
	FileField       string            `json:"fileField"`
	MultiFile       bool              `json:"multiFile"`
	MinFiles        int               `json:"minFiles"`
	RequiredParams  []string          `json:"requiredParams,omitempty"`
	Defaults        map[string]string `json:"defaults,omitempty"`
	Result          ResultKind        `json:"result"`
	DefaultEndpoint string            `json:"-"`

	suffix    string
	fixedName string
}

var operations = map[OperationType]Operation{
	OperationCompress: {
		Type:            OperationCompress,
		Title:           "Compress PDF",
		FileField:       "file",
		MinFiles:        1,
		Result:          ResultKindBinary,
		DefaultEndpoint: "http://localhost:5000/api/compress-pdf",
		suffix:          "-compressed.pdf",
	},
	OperationMerge: {
		Type:            OperationMerge,
		Title:           "Merge PDF",
		FileField:       "files",
		MultiFile:       true,
		MinFiles:        2,
		Result:          ResultKindBinary,
		DefaultEndpoint: "http://localhost:5000/api/merge-pdf",
		fixedName:       "merged.pdf",
	},
	OperationSplit: {
		Type:            OperationSplit,
		Title:           "Split PDF",
		FileField:       "file",
		MinFiles:        1,
		RequiredParams:  []string{ParamPageRange},
		Result:          ResultKindBinary,
		DefaultEndpoint: "http://localhost:5000/api/split-pdf",
		suffix:          "-split.pdf",
	},
	OperationRotate: {
		Type:            OperationRotate,
		Title:           "Rotate PDF",
		FileField:       "file",
		MinFiles:        1,
		RequiredParams:  []string{ParamPages, ParamAngle},
		Defaults:        map[string]string{ParamAngle: "90"},
		Result:          ResultKindBinary,
		DefaultEndpoint: "http://localhost:5000/api/rotate-pdf",
		suffix:          "-rotated.pdf",
	},
	OperationWatermark: {
		Type:            OperationWatermark,
		Title:           "Add Watermark",
		FileField:       "file",
		MinFiles:        1,
		RequiredParams:  []string{ParamText},
		Result:          ResultKindBinary,
		DefaultEndpoint: "http://localhost:5050/api/add-watermark",
		suffix:          "-watermarked.pdf",
	},
	OperationToWord: {
		Type:            OperationToWord,
		Title:           "PDF to Word",
		FileField:       "file",
		MinFiles:        1,
		Result:          ResultKindBinary,
		DefaultEndpoint: "http://localhost:5050/api/pdf-to-word",
		suffix:          ".docx",
	},
	OperationToExcel: {
		Type:            OperationToExcel,
		Title:           "PDF to Excel",
		FileField:       "file",
		MinFiles:        1,
		Result:          ResultKindBinary,
		DefaultEndpoint: "http://localhost:5050/api/pdf-to-excel",
		suffix:          ".xlsx",
	},
	OperationToImage: {
		Type:            OperationToImage,
		Title:           "PDF to Image",
		FileField:       "file",
		MinFiles:        1,
		Result:          ResultKindBatch,
		DefaultEndpoint: "http://localhost:5000/api/pdf-to-image",
		suffix:          "-images.zip",
	},
}

// Lookup はツール種別に対応する Operation を返します。
func Lookup(op OperationType) (Operation, bool) {
	o, ok := operations[op]
	if !ok {
		return Operation{}, false
	}
	return o.clone(), true
}

// Operations は全ツールを種別名順で返します。
func Operations() []Operation {
	list := make([]Operation, 0, len(operations))
	for _, o := range operations {
		list = append(list, o.clone())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Type < list[j].Type })
	return list
}

// OutputFilename は入力ファイル名からダウンロード用のファイル名を決めます。
// 例: report.pdf → report-compressed.pdf
func (o Operation) OutputFilename(inputName string) string {
	if o.fixedName != "" {
		return o.fixedName
	}
	base := BaseName(inputName)
	if base == "" {
		base = "document"
	}
	return base + o.suffix
}

// BaseName はファイル名から末尾の .pdf（大文字小文字を区別しない）を取り除きます。
func BaseName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if len(name) >= 4 && strings.EqualFold(name[len(name)-4:], ".pdf") {
		return name[:len(name)-4]
	}
	return name
}

func (o Operation) clone() Operation {
	if o.RequiredParams != nil {
		o.RequiredParams = append([]string(nil), o.RequiredParams...)
	}
	if o.Defaults != nil {
		defaults := make(map[string]string, len(o.Defaults))
		for k, v := range o.Defaults {
			defaults[k] = v
		}
		o.Defaults = defaults
	}
	return o
}
