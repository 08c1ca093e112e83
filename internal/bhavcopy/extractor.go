package bhavcopy

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nsvirk/bhavcopyapi/pkg/utils/zaplogger"
)

var zipMagic = []byte("PK\x03\x04")

func isZip(b []byte) bool {
	return bytes.HasPrefix(b, zipMagic)
}

// WorkDir returns the per-date, per-profile directory extracted files land in
func WorkDir(dataDir string, profile SourceProfile, date time.Time) string {
	return filepath.Join(dataDir, date.Format(DateLayout), profile.Key())
}

// Extract writes raw into destDir and returns the path of the tabular file to normalize.
// ZIP payloads are unpacked; flat payloads are written under a deterministic name.
func Extract(raw []byte, destDir string, profile SourceProfile, date time.Time) (string, error) {
	const op = "extract"
	day := date.Format(DateLayout)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", wrapError(KindUnexpected, op, err, "cannot create %s", destDir)
	}

	if !isZip(raw) {
		if profile.Format == FormatZip {
			return "", newError(KindCorruptArchive, op, "payload for %s %s is not a ZIP archive", profile.Key(), day)
		}
		path := filepath.Join(destDir, profile.FlatFileName(date))
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return "", wrapError(KindUnexpected, op, err, "cannot write %s", path)
		}
		zaplogger.Info("File saved", zaplogger.Fields{"profile": profile.Key(), "date": day, "path": path})
		return path, nil
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", wrapError(KindCorruptArchive, op, err, "failed to open ZIP for %s %s", profile.Key(), day)
	}

	want := profile.FileName(date)
	var found string
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		path, err := unpack(zf, destDir)
		if err != nil {
			return "", err
		}
		name := filepath.Base(zf.Name)
		if want == "" || strings.EqualFold(name, want) {
			if found == "" {
				found = path
			}
		}
	}

	if found == "" {
		return "", newError(KindFileNotFound, op, "no file matching %q in archive for %s %s", want, profile.Key(), day)
	}

	zaplogger.Info("File extracted", zaplogger.Fields{"profile": profile.Key(), "date": day, "path": found})
	return found, nil
}

func unpack(zf *zip.File, destDir string) (string, error) {
	const op = "extract"

	target := filepath.Join(destDir, filepath.Clean(zf.Name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", newError(KindCorruptArchive, op, "archive entry %q escapes the destination", zf.Name)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", wrapError(KindUnexpected, op, err, "cannot create %s", filepath.Dir(target))
	}

	rc, err := zf.Open()
	if err != nil {
		return "", wrapError(KindCorruptArchive, op, err, "cannot read archive entry %q", zf.Name)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return "", wrapError(KindUnexpected, op, err, "cannot create %s", target)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return "", wrapError(KindCorruptArchive, op, err, "cannot unpack archive entry %q", zf.Name)
	}
	if err := out.Close(); err != nil {
		return "", wrapError(KindUnexpected, op, err, "cannot write %s", target)
	}
	return target, nil
}
