package gaussian

import (
	"os"
	"path/filepath"
	"strings"
)

// RelatedExtensions are the sibling files that belong to a job.
var RelatedExtensions = []string{".gau", ".gjf", ".com", ".chk", ".fchk"}

// JobStem returns path without its log extension and any compression
// suffix: "a/b.log.gz" gives "a/b".
func JobStem(path string) string {
	for _, s := range []string{".gz", ".zst"} {
		if hasSuffixFold(path, s) {
			path = path[:len(path)-len(s)]
			break
		}
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// RelatedFiles returns the existing sibling files of the job logged at
// logPath, e.g. its input deck and checkpoint.
func RelatedFiles(logPath string) []string {
	stem := JobStem(logPath)
	var out []string
	for _, ext := range RelatedExtensions {
		p := stem + ext
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			out = append(out, p)
		}
	}
	return out
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
