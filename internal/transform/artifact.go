package transform

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/yourusername/toolshub/internal/pdf"
)

const maxBatchManifestBytes = 32 << 20

// storeBinary はレスポンス本文をそのまま成果物として保存します。
func storeBinary(resp *http.Response, outDir, filename string) (*Artifact, error) {
	outputPath := filepath.Join(outDir, filename)
	size, err := writeFile(outputPath, resp.Body)
	if err != nil {
		return nil, transportError(0, "変換結果の受信に失敗しました。", err)
	}

	contentType := mediaTypeOf(resp.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		if mtype, err := mimetype.DetectFile(outputPath); err == nil {
			contentType = mtype.String()
		}
	}

	return &Artifact{
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		path:        outputPath,
	}, nil
}

// batchManifest はページごとの成果物を参照するレスポンスです。
type batchManifest struct {
	Images []string `json:"images"`
}

// storeBatch は参照リストのすべてを取得し、zip にまとめます。
// 1つでも取得できなければジョブ全体を失敗とします。
func storeBatch(ctx context.Context, client *Client, endpoint string, resp *http.Response, outDir, filename string) (*Artifact, error) {
	var manifest batchManifest
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBatchManifestBytes)).Decode(&manifest); err != nil {
		return nil, transportError(0, "変換結果の形式が正しくありません。", err)
	}
	if len(manifest.Images) == 0 {
		return nil, transportError(0, "変換結果が空でした。", nil)
	}

	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, transportError(0, "変換APIのURLが正しくありません。", err)
	}

	partsDir := filepath.Join(outDir, "parts")
	if err := os.MkdirAll(partsDir, 0o750); err != nil {
		return nil, fmt.Errorf("成果物ディレクトリの作成に失敗しました: %w", err)
	}

	parts := make([]Part, 0, len(manifest.Images))
	entries := make([]pdf.ZipEntry, 0, len(manifest.Images))
	for i, ref := range manifest.Images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tmpPath := filepath.Join(partsDir, fmt.Sprintf("part-%03d", i+1))
		if err := fetchRef(ctx, client, base, ref, tmpPath); err != nil {
			return nil, err
		}

		contentType, ext := "application/octet-stream", ""
		if mtype, err := mimetype.DetectFile(tmpPath); err == nil {
			contentType, ext = mtype.String(), mtype.Extension()
		}
		name := fmt.Sprintf("page-%02d%s", i+1, ext)

		info, err := os.Stat(tmpPath)
		if err != nil {
			return nil, fmt.Errorf("成果物の確認に失敗しました: %w", err)
		}
		parts = append(parts, Part{Name: name, ContentType: mediaTypeOf(contentType), Size: info.Size()})
		entries = append(entries, pdf.ZipEntry{Name: name, Path: tmpPath})
	}

	outputPath := filepath.Join(outDir, filename)
	if err := pdf.WriteZip(outputPath, entries); err != nil {
		return nil, err
	}
	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("zipファイルの確認に失敗しました: %w", err)
	}

	return &Artifact{
		Filename:    filename,
		ContentType: "application/zip",
		Size:        info.Size(),
		Parts:       parts,
		path:        outputPath,
	}, nil
}

// fetchRef は data URI をデコードするか、URL を取得して path に保存します。
func fetchRef(ctx context.Context, client *Client, base *url.URL, ref, path string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return transportError(0, "変換結果に空の参照が含まれています。", nil)
	}

	if strings.HasPrefix(ref, "data:") {
		body, err := decodeDataURI(ref)
		if err != nil {
			return transportError(0, "変換結果のデータ形式が正しくありません。", err)
		}
		if _, err := writeFile(path, body); err != nil {
			return transportError(0, "変換結果のデータ形式が正しくありません。", err)
		}
		return nil
	}

	target, err := base.Parse(ref)
	if err != nil {
		return transportError(0, "変換結果の参照先が正しくありません。", err)
	}
	resp, err := client.Fetch(ctx, target.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := writeFile(path, resp.Body); err != nil {
		return transportError(0, "変換結果の受信に失敗しました。", err)
	}
	return nil
}

// decodeDataURI は "data:[<mediatype>][;base64],<data>" の本文を返します。
func decodeDataURI(ref string) (io.Reader, error) {
	rest := strings.TrimPrefix(ref, "data:")
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("data uri has no payload separator")
	}
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return base64.NewDecoder(base64.StdEncoding, strings.NewReader(payload)), nil
	}
	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return strings.NewReader(decoded), nil
}

func writeFile(path string, r io.Reader) (int64, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return n, nil
}

func mediaTypeOf(v string) string {
	if v == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mediaType
}
