package pdf

import (
	"fmt"
	"strconv"
	"strings"
)

var paramLabels = map[string]string{
	ParamText:      "透かしの文字列",
	ParamPages:     "回転するページ",
	ParamAngle:     "回転角度",
	ParamPageRange: "分割するページ範囲",
}

// Validate は送信前に入力ファイル数と必須パラメータを検証します。
// pageCount は先頭ファイルのページ数で、不明な場合は 0 を渡します。
func (o Operation) Validate(fileCount, pageCount int, params map[string]string) error {
	if fileCount == 0 {
		return newError("INVALID_INPUT", "PDFファイルを選択してください。", nil)
	}
	if fileCount < o.MinFiles {
		return newError("INVALID_INPUT", fmt.Sprintf("PDFファイルを%dつ以上選択してください。", o.MinFiles), nil)
	}

	for _, name := range o.RequiredParams {
		if strings.TrimSpace(params[name]) == "" {
			label := paramLabels[name]
			if label == "" {
				label = name
			}
			return newError("INVALID_INPUT", fmt.Sprintf("%sを入力してください。", label), nil)
		}
	}

	switch o.Type {
	case OperationSplit:
		if _, err := ParsePageRanges(params[ParamPageRange], pageCount); err != nil {
			return err
		}
	case OperationRotate:
		if pages := strings.TrimSpace(params[ParamPages]); !strings.EqualFold(pages, "all") {
			if _, err := ParsePageRanges(pages, pageCount); err != nil {
				return err
			}
		}
		if err := validateAngle(params[ParamAngle]); err != nil {
			return err
		}
	}
	return nil
}

func validateAngle(raw string) error {
	angle, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return newError("INVALID_INPUT", "回転角度は整数で指定してください。", err)
	}
	if angle == 0 || angle%90 != 0 {
		return newError("INVALID_INPUT", "回転角度は 90 の倍数で指定してください。", nil)
	}
	return nil
}
