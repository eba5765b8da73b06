package inbox

import (
	"regexp"
	"strings"
)

// Filter decides which mails are order mails.
type Filter struct {
	allowlist []string
	subject   *regexp.Regexp
}

// NewFilter compiles pattern. An invalid pattern matches everything.
func NewFilter(allowlist []string, pattern string) *Filter {
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = regexp.MustCompile(".*")
	}
	allow := make([]string, 0, len(allowlist))
	for _, a := range allowlist {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			allow = append(allow, a)
		}
	}
	return &Filter{allowlist: allow, subject: re}
}

// Accept matches the sender against the allowlist (exact address or domain,
// with or without a leading "@") and the subject against the pattern. An
// empty allowlist lets every sender through.
func (f *Filter) Accept(from, subject string) bool {
	if len(f.allowlist) > 0 {
		from = strings.ToLower(from)
		allowed := false
		for _, a := range f.allowlist {
			domain := a
			if !strings.HasPrefix(domain, "@") {
				domain = "@" + domain
			}
			if from == a || strings.HasSuffix(from, domain) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	return f.subject.MatchString(subject)
}
