package fits

import (
	"fmt"
	"strings"
	"time"
)

// Metadata carries the header fields the pipeline consumes.
type Metadata struct {
	Path        string
	Target      string
	RawFilter   string
	Filter      string // canonical code, see NormalizeFilter
	ExposureSec float64
	DateObs     string
	Captured    time.Time // zero when DATE-OBS is absent or unparseable
}

var dateObsLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ReadMetadata extracts target, filter, exposure and capture time from the
// primary header of the file at path.
func ReadMetadata(path string) (Metadata, error) {
	hdr, err := ReadHeader(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read header: %w", err)
	}

	rawFilter := hdr.GetString("FILTER", "Unknown")
	exptime := hdr.GetFloat("EXPTIME", hdr.GetFloat("EXPOSURE", 0))
	dateObs := hdr.GetString("DATE-OBS", "")

	md := Metadata{
		Path:        path,
		Target:      strings.TrimSpace(hdr.GetString("OBJECT", "Unknown")),
		RawFilter:   rawFilter,
		Filter:      NormalizeFilter(rawFilter),
		ExposureSec: exptime,
		DateObs:     dateObs,
	}
	if md.Target == "" {
		md.Target = "Unknown"
	}
	for _, layout := range dateObsLayouts {
		if t, err := time.Parse(layout, dateObs); err == nil {
			md.Captured = t
			break
		}
	}
	return md, nil
}

// SanitizeTarget makes a target name safe as a single directory component
// and catalog key: spaces become underscores, path separators hyphens.
func SanitizeTarget(name string) string {
	r := strings.NewReplacer(" ", "_", "/", "-", "\\", "-")
	return r.Replace(strings.TrimSpace(name))
}
