package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected Severity
		rest     string
	}{
		{
			name:     "error with colon",
			line:     "ERROR: something broke",
			expected: SeverityError,
			rest:     "something broke",
		},
		{
			name:     "lower case warning",
			line:     "warning - bad style",
			expected: SeverityWarning,
			rest:     "bad style",
		},
		{
			name:     "note is an alias for notice",
			line:     "Note: check this",
			expected: SeverityNotice,
			rest:     "check this",
		},
		{
			name:     "notice",
			line:     "NOTICE new domain",
			expected: SeverityNotice,
			rest:     "new domain",
		},
		{
			name:     "no keyword stays unmodified",
			line:     "just some output",
			expected: SeverityInfo,
			rest:     "just some output",
		},
		{
			name:     "keyword only",
			line:     "ERROR",
			expected: SeverityError,
			rest:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			severity, rest := ParseSeverity(tt.line)
			assert.Equal(t, tt.expected, severity)
			assert.Equal(t, tt.rest, rest)
		})
	}
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "ERROR", SeverityError.String())
	assert.Equal(t, "WARNING", SeverityWarning.String())
	assert.Equal(t, "NOTICE", SeverityNotice.String())
	assert.Equal(t, "INFO", SeverityInfo.String())
}

func TestSeverityOrdering(t *testing.T) {
	// Syslog numbering: a lower value is more severe.
	assert.True(t, SeverityError < SeverityWarning)
	assert.True(t, SeverityWarning < SeverityNotice)
	assert.True(t, SeverityNotice < SeverityInfo)
}
