package security

import (
	"net/url"
	"strings"
)

// Query keys whose values are treated as secrets.
var sensitiveParams = map[string]bool{
	"key":          true,
	"api_key":      true,
	"apikey":       true,
	"token":        true,
	"access_token": true,
	"auth_token":   true,
	"secret":       true,
	"password":     true,
	"signature":    true,
	"sig":          true,
}

// MaskCredential masks a credential value for logging.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// MaskURL hides the secrets a webhook URL commonly carries: the userinfo
// password, sensitive query values and long token-like path segments.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return MaskCredential(raw)
	}

	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		if len(seg) >= 16 {
			segments[i] = MaskCredential(seg)
		}
	}
	path := strings.Join(segments, "/")

	q := u.Query()
	for k, vals := range q {
		if sensitiveParams[strings.ToLower(k)] {
			for i := range vals {
				vals[i] = MaskCredential(vals[i])
			}
		}
	}

	// Built by hand so the masks are not percent-encoded.
	var sb strings.Builder
	sb.WriteString(u.Scheme)
	sb.WriteString("://")
	if u.User != nil {
		sb.WriteString(url.User(u.User.Username()).String())
		if _, ok := u.User.Password(); ok {
			sb.WriteString(":****")
		}
		sb.WriteString("@")
	}
	sb.WriteString(u.Host)
	sb.WriteString(path)
	if len(q) > 0 {
		query, _ := url.QueryUnescape(q.Encode())
		sb.WriteString("?")
		sb.WriteString(query)
	}
	return sb.String()
}
