package usecase

import "regexp"

// Question text is rendered back into chat surfaces, so script-bearing
// fragments are stripped before anything else sees the input. Ordinary text,
// including surrounding whitespace, passes through untouched.
var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	iframeBlockRe = regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?</iframe\s*>`)
	jsSchemeRe    = regexp.MustCompile(`(?i)javascript:`)
	eventAttrRe   = regexp.MustCompile(`(?i)\bon\w+\s*=`)
)

// SanitizeQuestion removes dangerous script-related content from the input.
func SanitizeQuestion(in string) string {
	out := scriptBlockRe.ReplaceAllString(in, "")
	out = iframeBlockRe.ReplaceAllString(out, "")
	out = jsSchemeRe.ReplaceAllString(out, "")
	out = eventAttrRe.ReplaceAllString(out, "")
	return out
}
