// Package accounts は監視対象アカウント一覧（CSV）の読み込みを提供する。
package accounts

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// headerNames はアカウント列として認識するヘッダー名（優先順）。
var headerNames = []string{"username", "Username", "account"}

// LoadFile はCSVファイルからアカウントのハンドル一覧を読み込む。
// UTF-8として不正なバイト列の場合は Latin-1 として再解釈する。
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file %s: %w", path, err)
	}
	return Parse(decode(data))
}

// Parse はCSV本文からアカウントのハンドル一覧を抽出する。
//
// 1行目に username / Username / account のいずれかの列があればその列を使い、
// なければヘッダーなしとみなして先頭列を使う。
// 値の先頭の "@" は除去し、空値と重複は読み飛ばす。出現順は保持する。
func Parse(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse accounts csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col, hasHeader := findColumn(rows[0])
	if hasHeader {
		rows = rows[1:]
	}

	seen := make(map[string]struct{}, len(rows))
	var out []string
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		handle := normalizeHandle(row[col])
		if handle == "" {
			continue
		}
		if _, dup := seen[handle]; dup {
			continue
		}
		seen[handle] = struct{}{}
		out = append(out, handle)
	}
	return out, nil
}

// findColumn は認識可能なヘッダー列のインデックスを返す。見つからなければ (0, false)。
func findColumn(header []string) (int, bool) {
	for _, name := range headerNames {
		for i, h := range header {
			if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == name {
				return i, true
			}
		}
	}
	return 0, false
}

func normalizeHandle(raw string) string {
	s := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	s = strings.TrimPrefix(s, "@")
	return strings.TrimSpace(s)
}

// decode はUTF-8として妥当ならそのまま、そうでなければ Latin-1 としてデコードする。
func decode(data []byte) io.Reader {
	if utf8.Valid(data) {
		return bytes.NewReader(data)
	}
	return charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(data))
}
