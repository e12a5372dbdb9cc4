package compose

import (
	"fmt"
	"strings"
	"time"
)

// LocaleDate formats a date the way clinic staff write it: M/D/YYYY.
func LocaleDate(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d", int(t.Month()), t.Day(), t.Year())
}

// DownloadName builds "prescription-<mr>-<M>-<D>-<YYYY>.<ext>". Path
// separators in the MR number are replaced so the name stays one segment.
func DownloadName(mrNumber string, date time.Time, ext string) string {
	mr := strings.NewReplacer("/", "-", "\\", "-", "\"", "").Replace(strings.TrimSpace(mrNumber))
	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("prescription-%s-%d-%d-%d.%s", mr, int(date.Month()), date.Day(), date.Year(), ext)
}
