package dataload

import (
	"strings"
	"unicode"
)

// maxLabelLength caps classification labels so they stay usable as database keys.
const maxLabelLength = 50

// genericDirNames are directory names that carry no classification meaning on
// their own. When the parent of the deepest directory matches one of these,
// the parent and the deepest directory are combined into a single label.
var genericDirNames = []string{"data", "images", "dataset", "train", "test", "batch"}

// NormalizeLabel converts a raw directory name into a canonical classification
// label. The function is idempotent: applying it twice yields the same result.
func NormalizeLabel(raw string) string {
	label := strings.ToLower(strings.TrimSpace(raw))

	replacer := strings.NewReplacer(
		" ", "_",
		"-", "_",
		".", "_",
		"(", "", ")", "",
		"[", "", "]", "",
		"{", "", "}", "",
		"&", "and",
		"+", "plus",
	)
	label = replacer.Replace(label)

	// Collapse repeated underscores.
	for strings.Contains(label, "__") {
		label = strings.ReplaceAll(label, "__", "_")
	}
	label = strings.Trim(label, "_")

	if !hasAlphanumeric(label) {
		return "unclassified"
	}

	if len(label) > maxLabelLength {
		label = strings.TrimRight(label[:maxLabelLength], "_")
	}

	return label
}

// hasAlphanumeric reports whether s contains at least one letter or digit.
func hasAlphanumeric(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// isGenericDirName reports whether a directory name is considered generic:
// a known container name, a name containing one of the known tokens, or a
// 2 or 4 digit numeric name such as a year or a camera batch number.
func isGenericDirName(name string) bool {
	lower := strings.ToLower(name)

	if isDigits(lower) && (len(lower) == 2 || len(lower) == 4) {
		return true
	}

	for _, generic := range genericDirNames {
		if strings.Contains(lower, generic) {
			return true
		}
	}

	return false
}

// isDigits reports whether s is non-empty and consists of ASCII digits only.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ClassifyRelPath derives the classification label from the path components
// between the corpus root and the image file. dirs must not include the
// file name itself.
func ClassifyRelPath(dirs []string) string {
	switch len(dirs) {
	case 0:
		return "root_level"
	case 1:
		return NormalizeLabel(dirs[0])
	default:
		deepest := dirs[len(dirs)-1]
		parent := dirs[len(dirs)-2]
		if isGenericDirName(parent) {
			return NormalizeLabel(parent + "_" + deepest)
		}
		return NormalizeLabel(deepest)
	}
}
