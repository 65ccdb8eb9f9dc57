package pdf

import (
	"fmt"
	"strconv"
	"strings"
)

// PageRange はページ範囲を表します（Start/Endは1-based, End>=Start）。
// End が 0 の場合は最終ページまでを意味します（ページ数が不明な場合のみ）。
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ParsePageRanges は "1-3,5,8-" 形式の範囲指定を解析します。
// pageCount が 0 以下の場合はページ数の上限チェックを行いません。
func ParsePageRanges(expr string, pageCount int) ([]PageRange, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, newError("INVALID_INPUT", "ページ範囲を指定してください。", nil)
	}
	segments := strings.Split(expr, ",")

	ranges := make([]PageRange, 0, len(segments))
	lastEnd := 0
	openEnded := false

	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, newError("INVALID_INPUT", "空の範囲指定が含まれています。", nil)
		}
		if openEnded {
			return nil, newError("INVALID_INPUT", "最終ページ指定の後に追加の範囲を指定することはできません。", nil)
		}

		start, end, err := parseSingleRange(seg, pageCount)
		if err != nil {
			return nil, err
		}

		if start <= lastEnd {
			return nil, newError("INVALID_INPUT", "ページ範囲は重複なく昇順で指定してください。", nil)
		}
		if end == 0 || (pageCount > 0 && end == pageCount) {
			openEnded = true
		}
		if end == 0 {
			lastEnd = start
		} else {
			lastEnd = end
		}

		ranges = append(ranges, PageRange{Start: start, End: end})
	}

	return ranges, nil
}

func parseSingleRange(seg string, pageCount int) (int, int, error) {
	if strings.Contains(seg, "-") {
		parts := strings.SplitN(seg, "-", 2)
		start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return 0, 0, newError("INVALID_INPUT", fmt.Sprintf("範囲開始が整数ではありません: %q", seg), nil)
		}
		var end int
		if strings.TrimSpace(parts[1]) == "" {
			end = pageCount
			if end < 0 {
				end = 0
			}
		} else {
			end, err = strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil {
				return 0, 0, newError("INVALID_INPUT", fmt.Sprintf("範囲終了が整数ではありません: %q", seg), nil)
			}
			if end < start {
				return 0, 0, newError("INVALID_INPUT", fmt.Sprintf("範囲の終了が開始より前です: %q", seg), nil)
			}
		}

		if start < 1 || (pageCount > 0 && end > pageCount) || (pageCount > 0 && start > pageCount) {
			return 0, 0, newError("INVALID_INPUT", fmt.Sprintf("範囲指定がページ数の範囲外です: %q", seg), nil)
		}
		return start, end, nil
	}

	page, err := strconv.Atoi(seg)
	if err != nil {
		return 0, 0, newError("INVALID_INPUT", fmt.Sprintf("ページ番号が整数ではありません: %q", seg), nil)
	}
	if page < 1 || (pageCount > 0 && page > pageCount) {
		return 0, 0, newError("INVALID_INPUT", fmt.Sprintf("ページ番号がページ数の範囲外です: %q", seg), nil)
	}
	return page, page, nil
}
