package pdf

import "testing"

func TestOutputFilename(t *testing.T) {
	tests := []struct {
		op    OperationType
		input string
		want  string
	}{
		{OperationCompress, "report.pdf", "report-compressed.pdf"},
		{OperationCompress, "REPORT.PDF", "REPORT-compressed.pdf"},
		{OperationSplit, "scan.2024.pdf", "scan.2024-split.pdf"},
		{OperationRotate, "a.pdf", "a-rotated.pdf"},
		{OperationWatermark, "draft", "draft-watermarked.pdf"},
		{OperationToWord, "report.pdf", "report.docx"},
		{OperationToExcel, "table.pdf", "table.xlsx"},
		{OperationToImage, "slides.pdf", "slides-images.zip"},
		{OperationMerge, "first.pdf", "merged.pdf"},
		{OperationCompress, ".pdf", "document-compressed.pdf"},
		{OperationCompress, "dir/sub/report.pdf", "report-compressed.pdf"},
	}

	for _, tt := range tests {
		op, ok := Lookup(tt.op)
		if !ok {
			t.Fatalf("Lookup(%s) not found", tt.op)
		}
		if got := op.OutputFilename(tt.input); got != tt.want {
			t.Errorf("%s.OutputFilename(%q) = %q, want %q", tt.op, tt.input, got, tt.want)
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, ok := Lookup("pdf-to-pptx"); ok {
		t.Fatal("expected unknown operation")
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	op, _ := Lookup(OperationRotate)
	op.Defaults[ParamAngle] = "270"
	op.RequiredParams[0] = "changed"

	again, _ := Lookup(OperationRotate)
	if again.Defaults[ParamAngle] != "90" {
		t.Fatalf("defaults were modified through a copy: %v", again.Defaults)
	}
	if again.RequiredParams[0] != ParamPages {
		t.Fatalf("required params were modified through a copy: %v", again.RequiredParams)
	}
}

func TestOperationsSorted(t *testing.T) {
	ops := Operations()
	if len(ops) != 8 {
		t.Fatalf("unexpected operation count: %d", len(ops))
	}
	for i := 1; i < len(ops); i++ {
		if ops[i-1].Type >= ops[i].Type {
			t.Fatalf("operations not sorted: %s before %s", ops[i-1].Type, ops[i].Type)
		}
	}
}

func TestMergeUsesFilesField(t *testing.T) {
	op, _ := Lookup(OperationMerge)
	if op.FileField != "files" || !op.MultiFile || op.MinFiles != 2 {
		t.Fatalf("unexpected merge definition: %+v", op)
	}
}
