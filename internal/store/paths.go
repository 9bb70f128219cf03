package store

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NormalizeSlash converts path separators to forward slashes. Every path that
// lands in a JSONL row or CSV cell goes through this, so artifacts written on
// different platforms join cleanly.
func NormalizeSlash(path string) string {
	return strings.ReplaceAll(filepath.ToSlash(path), "\\", "/")
}

// Category is the composite <domain>_<risk> directory key.
func Category(domain, risk string) string {
	return domain + "_" + risk
}

// ImagePath lays out one image file:
// <root>/<category>/<setting>/<category>_<setting>_s<sample>.png
func ImagePath(root, domain, risk, setting string, sample int) string {
	category := Category(domain, risk)
	name := fmt.Sprintf("%s_%s_s%d.png", category, setting, sample)
	return filepath.Join(root, category, setting, name)
}

// VideoPath lays out one video file, mirroring the image layout with .mp4.
func VideoPath(root, domain, risk, setting string, sample int) string {
	category := Category(domain, risk)
	name := fmt.Sprintf("%s_%s_s%d.mp4", category, setting, sample)
	return filepath.Join(root, category, setting, name)
}

// RecordPath lays out one stage output: <stageDir>/<domain>_<risk>.jsonl
func RecordPath(stageDir, domain, risk string) string {
	return filepath.Join(stageDir, Category(domain, risk)+".jsonl")
}

// CheckpointPath lays out one stage checkpoint:
// <stageDir>/checkpoint_<stage>_<domain>_<risk>.txt
func CheckpointPath(stageDir, stage, domain, risk string) string {
	return filepath.Join(stageDir, fmt.Sprintf("checkpoint_%s_%s_%s.txt", stage, domain, risk))
}
