package organize

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"nebulapilot/internal/quality"
)

// AuditFileName is the per-destination-folder ledger each run appends to.
const AuditFileName = "organize_log.csv"

var auditHeader = []string{
	"Timestamp", "Filename", "Decision", "Reason",
	"StarCount", "FWHM", "Ellipticity", "BgMean", "BgRMS",
	"Ref_Stars", "Ref_FWHM",
}

// AuditEntry is one processed-file row in a destination folder's ledger.
type AuditEntry struct {
	Time     time.Time
	Filename string
	Decision quality.Decision
	Reason   string
	Metrics  *quality.Metrics
	Baseline *quality.Baseline
}

// AppendAudit writes one row to the ledger in folder, creating the file
// with its header on first use. The ledger accumulates across runs.
func AppendAudit(folder string, e AuditEntry) error {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return err
	}
	path := filepath.Join(folder, AuditFileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(auditHeader); err != nil {
			return err
		}
	}
	if err := w.Write(e.record()); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (e AuditEntry) record() []string {
	row := []string{
		e.Time.Format("2006-01-02 15:04:05"),
		e.Filename,
		string(e.Decision),
		e.Reason,
		"", "", "", "", "", "", "",
	}
	if m := e.Metrics; m != nil {
		row[4] = fmt.Sprintf("%d", m.StarCount)
		row[5] = fmt.Sprintf("%.2f", m.FWHM)
		row[6] = fmt.Sprintf("%.3f", m.Ellipticity)
		row[7] = fmt.Sprintf("%.1f", m.BgMean)
		row[8] = fmt.Sprintf("%.1f", m.BgRMS)
	}
	if b := e.Baseline; b != nil {
		row[9] = fmt.Sprintf("%.0f", b.RefStarCount)
		row[10] = fmt.Sprintf("%.2f", b.RefFWHM)
	}
	return row
}
