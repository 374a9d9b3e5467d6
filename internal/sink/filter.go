package sink

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// acceptedType は内容から判定した形式が accepted のいずれかに合うかを調べる
//
// accepted は "image/*" のようなワイルドカードを含められる。
func acceptedType(accepted []string, data []byte) (string, error) {
	detected := mimetype.Detect(data)

	for _, pattern := range accepted {
		if matchesType(detected, pattern) {
			return detected.String(), nil
		}
	}
	return "", fmt.Errorf("受け付けられないファイル形式: %s", detected.String())
}

// matchesType は検出結果がパターンに一致するかを返す
func matchesType(detected *mimetype.MIME, pattern string) bool {
	if pattern == "*/*" || pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		for m := detected; m != nil; m = m.Parent() {
			if major, _, _ := strings.Cut(m.String(), "/"); major == prefix {
				return true
			}
		}
		return false
	}
	return detected.Is(pattern)
}
