package media

import (
	"regexp"
	"strconv"
	"time"
)

type datePattern struct {
	name    string
	re      *regexp.Regexp
	hasTime bool
}

// Ordered most specific first; the first pattern that matches and produces
// a plausible date wins.
var datePatterns = []datePattern{
	// IMG-20240115-WA0042.jpg
	{name: "WhatsApp", re: regexp.MustCompile(`IMG-(\d{4})(\d{2})(\d{2})-WA`)},
	// WhatsApp Image 2024-01-15 at 10.30.45.jpeg
	{name: "WhatsApp", re: regexp.MustCompile(`WhatsApp.*(\d{4})-(\d{2})-(\d{2})(?:\s+at\s+(\d{2})\.(\d{2})\.(\d{2}))?`), hasTime: true},
	// Screenshot 2024-01-15 at 14.30.00.png
	{name: "Screenshot", re: regexp.MustCompile(`Screenshot\s+(\d{4})-(\d{2})-(\d{2})\s+at\s+(\d{2})\.(\d{2})\.(\d{2})`), hasTime: true},
	// 20240115_143000.jpg, IMG_20240115_143000.jpg
	{name: "Camera", re: regexp.MustCompile(`(?:IMG_)?(\d{4})(\d{2})(\d{2})_(\d{2})(\d{2})(\d{2})`), hasTime: true},
	// photo_2024-03-20_something.jpg
	{name: "Filename", re: regexp.MustCompile(`(\d{4})[-_]?(\d{2})[-_]?(\d{2})`)},
}

// ExtractDateFromFilename recovers a capture date from common naming
// conventions (messaging apps, screenshots, phone cameras). The filename
// should not include its directory.
func ExtractDateFromFilename(name string) *ExtractedDate {
	for _, pattern := range datePatterns {
		m := pattern.re.FindStringSubmatch(name)
		if m == nil {
			continue
		}

		date, ok := buildDate(m, pattern.hasTime)
		if !ok {
			continue
		}

		return &ExtractedDate{
			Date:    date,
			HasTime: pattern.hasTime && len(m) > 4 && m[4] != "",
			Source:  FilenameSource,
			Pattern: pattern.name,
		}
	}

	return nil
}

func buildDate(m []string, withTime bool) (time.Time, bool) {
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if year < 1990 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	var hour, minute, second int
	if withTime && len(m) > 6 && m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
		second, _ = strconv.Atoi(m[6])
		if hour > 23 || minute > 59 || second > 59 {
			return time.Time{}, false
		}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	// time.Date normalises 2024-02-30 in to March; reject those.
	if t.Day() != day {
		return time.Time{}, false
	}

	return t, true
}
