package pdf

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// SourceFileMeta は入力ファイルの基本メタデータを表します。
type SourceFileMeta struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Pages       int    `json:"pages,omitempty"`
}

// AcceptPDF は保存済みファイルをPDFとして受け付けるか判定し、採用したメディアタイプを返します。
// 宣言されたメディアタイプ、拡張子のどちらかがPDFなら受け付けます。
// メディアタイプが宣言されていない場合は内容を判定します。
func AcceptPDF(name, declaredType, path string) (string, bool) {
	declared := normalizeMediaType(declaredType)
	if declared == pdfMediaType {
		return pdfMediaType, true
	}
	if strings.HasSuffix(strings.ToLower(strings.TrimSpace(name)), ".pdf") {
		return pdfMediaType, true
	}
	if declared != "" && declared != "application/octet-stream" {
		return "", false
	}
	if path == "" {
		return "", false
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil || !mtype.Is(pdfMediaType) {
		return "", false
	}
	return pdfMediaType, true
}

// CountPages はPDFのページ数を返します。読み取れない場合は 0 です。
// ページ数は表示と範囲チェックの参考値で、受け付け判定には使いません。
func CountPages(path string) int {
	pages, err := pdfapi.PageCountFile(path)
	if err != nil || pages < 0 {
		return 0
	}
	return pages
}

func normalizeMediaType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(v)
	}
	return mediaType
}
