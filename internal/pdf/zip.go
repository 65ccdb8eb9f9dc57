package pdf

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
)

// ZipEntry は zip に格納する1ファイルです。
type ZipEntry struct {
	Name string // zip内のファイル名
	Path string // 元ファイルのパス
}

// WriteZip は entries を指定順に outputPath の zip へ書き出します。
func WriteZip(outputPath string, entries []ZipEntry) (err error) {
	outFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("zipファイルの作成に失敗しました: %w", err)
	}
	defer func() {
		if closeErr := outFile.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("zipファイルのクローズに失敗しました: %w", closeErr)
		}
	}()

	zipWriter := zip.NewWriter(outFile)
	for _, entry := range entries {
		if err := addZipEntry(zipWriter, entry); err != nil {
			_ = zipWriter.Close()
			return err
		}
	}
	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("zipの書き込みに失敗しました: %w", err)
	}
	return nil
}

func addZipEntry(zw *zip.Writer, entry ZipEntry) error {
	file, err := os.Open(entry.Path)
	if err != nil {
		return fmt.Errorf("zip入力ファイルのオープンに失敗しました: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("zip入力ファイルの情報取得に失敗しました: %w", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zipヘッダーの生成に失敗しました: %w", err)
	}
	header.Name = entry.Name
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("zipヘッダーの書き込みに失敗しました: %w", err)
	}
	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("zipへの書き込みに失敗しました: %w", err)
	}
	return nil
}
