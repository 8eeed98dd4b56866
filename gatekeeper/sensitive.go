package gatekeeper

import (
	"regexp"
	"strings"
)

// SensitiveDetector flags content that must not leave the device. Detection
// is regex-based so it keeps working offline and costs well under a
// millisecond per message.
type SensitiveDetector struct {
	patterns map[string]*regexp.Regexp
	keywords []string
}

// NewSensitiveDetector creates a detector with the built-in pattern set.
func NewSensitiveDetector() *SensitiveDetector {
	return &SensitiveDetector{
		patterns: map[string]*regexp.Regexp{
			"phone":     regexp.MustCompile(`(?:\+?\d{1,3}[-\s]?)?1[3-9]\d{9}|\b\d{3}[-.\s]\d{3,4}[-.\s]\d{4}\b`),
			"id_card":   regexp.MustCompile(`\b\d{17}[\dXx]\b`),
			"email":     regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
			"bank_card": regexp.MustCompile(`\b\d{16,19}\b`),
			"api_key":   regexp.MustCompile(`\b(?:sk|pk|rk)-[A-Za-z0-9\-_]{16,}\b`),
			"ssn":       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		},
		keywords: []string{
			"password", "passphrase", "private key", "secret key",
			"密码", "私钥", "身份证", "银行卡",
		},
	}
}

// Detect reports whether text contains sensitive content, with the matched
// pattern names as reasons.
func (d *SensitiveDetector) Detect(text string) (bool, []string) {
	var reasons []string
	for name, re := range d.patterns {
		if re.MatchString(text) {
			reasons = append(reasons, name)
		}
	}
	lower := strings.ToLower(text)
	for _, kw := range d.keywords {
		if strings.Contains(lower, kw) {
			reasons = append(reasons, "keyword:"+kw)
			break
		}
	}
	return len(reasons) > 0, reasons
}
