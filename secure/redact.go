package secure

import "regexp"

// redaction rules applied to anything headed for a log sink. Order matters:
// the more specific credential shapes run before the generic ones.
var redactions = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)(secret|password|token|credential)[\s]*[:=][\s]*\S+`), "$1=[REDACTED]"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[REDACTED-AWS-KEY]"},
	{regexp.MustCompile(`(?i)aws_secret_access_key[\s]*[:=][\s]*\S+`), "aws_secret_access_key=[REDACTED]"},
	{regexp.MustCompile(`\b(?:\d[ \-]*?){13,16}\b`), "[REDACTED-CARD]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[REDACTED-SSN]"},
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED-EMAIL]"},
}

// Redact scrubs secrets, credit-card numbers, SSNs and email addresses from s.
// Every log line carrying externally supplied data goes through here first.
func Redact(s string) string {
	for _, r := range redactions {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return s
}
