package check

import "strings"

// Severity classifies a reported problem. The numbers match the syslog
// standard, so a lower value is more severe.
type Severity int

const (
	SeverityError   Severity = 3
	SeverityWarning Severity = 4
	SeverityNotice  Severity = 5
	SeverityInfo    Severity = 6
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	case SeverityNotice:
		return "NOTICE"
	case SeverityInfo:
		return "INFO"
	}
	return "UNKNOWN"
}

// severityKeywords is ordered; NOTE is accepted as an alias for NOTICE.
var severityKeywords = []struct {
	keyword  string
	severity Severity
}{
	{"ERROR", SeverityError},
	{"WARNING", SeverityWarning},
	{"NOTICE", SeverityNotice},
	{"NOTE", SeverityNotice},
	{"INFO", SeverityInfo},
}

// ParseSeverity extracts a leading severity keyword from a raw line,
// case-insensitively, stripping the keyword and its separator. Lines
// without a keyword get the least severe level and stay unmodified.
func ParseSeverity(line string) (Severity, string) {
	upper := strings.ToUpper(line)
	for _, entry := range severityKeywords {
		if strings.HasPrefix(upper, entry.keyword) {
			return entry.severity, strings.Trim(line[len(entry.keyword):], " :-")
		}
	}
	return SeverityInfo, line
}
