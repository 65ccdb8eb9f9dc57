package pdf

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		op        OperationType
		files     int
		pageCount int
		params    map[string]string
		wantErr   string
	}{
		{"compress ok", OperationCompress, 1, 0, nil, ""},
		{"no file", OperationCompress, 0, 0, nil, "PDFファイルを選択してください。"},
		{"merge needs two", OperationMerge, 1, 0, nil, "PDFファイルを2つ以上選択してください。"},
		{"merge ok", OperationMerge, 3, 0, nil, ""},
		{"watermark missing text", OperationWatermark, 1, 0, map[string]string{}, "透かしの文字列を入力してください。"},
		{"watermark blank text", OperationWatermark, 1, 0, map[string]string{ParamText: "   "}, "透かしの文字列を入力してください。"},
		{"watermark ok", OperationWatermark, 1, 0, map[string]string{ParamText: "社外秘"}, ""},
		{"split missing range", OperationSplit, 1, 5, map[string]string{}, "分割するページ範囲を入力してください。"},
		{"split out of range", OperationSplit, 1, 5, map[string]string{ParamPageRange: "4-9"}, "範囲外"},
		{"split ok", OperationSplit, 1, 5, map[string]string{ParamPageRange: "1-2,4-"}, ""},
		{"rotate all", OperationRotate, 1, 5, map[string]string{ParamPages: "all", ParamAngle: "90"}, ""},
		{"rotate ranges", OperationRotate, 1, 5, map[string]string{ParamPages: "1,3", ParamAngle: "-90"}, ""},
		{"rotate missing pages", OperationRotate, 1, 5, map[string]string{ParamAngle: "90"}, "回転するページを入力してください。"},
		{"rotate bad angle", OperationRotate, 1, 5, map[string]string{ParamPages: "all", ParamAngle: "45"}, "90 の倍数"},
		{"rotate zero angle", OperationRotate, 1, 5, map[string]string{ParamPages: "all", ParamAngle: "0"}, "90 の倍数"},
		{"rotate non-integer angle", OperationRotate, 1, 5, map[string]string{ParamPages: "all", ParamAngle: "ninety"}, "整数"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, _ := Lookup(tt.op)
			err := op.Validate(tt.files, tt.pageCount, tt.params)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var pdfErr *Error
			if !errors.As(err, &pdfErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if !strings.Contains(pdfErr.Message, tt.wantErr) {
				t.Fatalf("message = %q, want it to contain %q", pdfErr.Message, tt.wantErr)
			}
		})
	}
}
