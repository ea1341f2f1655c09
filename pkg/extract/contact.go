package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"igleads/pkg/instagram"
)

var (
	emailRe    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	waLinkRe   = regexp.MustCompile(`(?i)(?:https?://)?(?:wa\.me/\+?\d+|api\.whatsapp\.com/send\?[^\s"'<>]+|whatsapp://send\?[^\s"'<>]+)`)
	nonDigitRe = regexp.MustCompile(`\D`)
)

// EmailFromText returns the first email address in text
func EmailFromText(text string) string {
	return strings.ToLower(emailRe.FindString(text))
}

// WhatsAppLinks returns every WhatsApp deep link found in text
func WhatsAppLinks(text string) []string {
	return waLinkRe.FindAllString(text, -1)
}

// WhatsAppNumber extracts the phone digits from a WhatsApp deep link
func WhatsAppNumber(link string) string {
	raw := strings.TrimSpace(link)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	switch {
	case host == "wa.me":
		return nonDigitRe.ReplaceAllString(u.Path, "")
	case strings.HasSuffix(host, "whatsapp.com"), u.Scheme == "whatsapp":
		return nonDigitRe.ReplaceAllString(u.Query().Get("phone"), "")
	}
	return ""
}

// NormalizePhone parses a phone number and returns it in E.164 form.
// Numbers without a country code are read in defaultRegion.
func NormalizePhone(raw, defaultRegion string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	digits := nonDigitRe.ReplaceAllString(raw, "")
	candidates := []string{raw}
	// deep links carry the country code without '+'
	if !strings.HasPrefix(raw, "+") && len(digits) >= 12 {
		candidates = append([]string{"+" + digits}, candidates...)
	}
	for _, c := range candidates {
		num, err := phonenumbers.Parse(c, defaultRegion)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			continue
		}
		return phonenumbers.Format(num, phonenumbers.E164), true
	}
	return "", false
}

// dddStates maps Brazilian area codes to state abbreviations
var dddStates = map[string]string{
	"11": "SP", "12": "SP", "13": "SP", "14": "SP", "15": "SP", "16": "SP", "17": "SP", "18": "SP", "19": "SP",
	"21": "RJ", "22": "RJ", "24": "RJ",
	"27": "ES", "28": "ES",
	"31": "MG", "32": "MG", "33": "MG", "34": "MG", "35": "MG", "37": "MG", "38": "MG",
	"41": "PR", "42": "PR", "43": "PR", "44": "PR", "45": "PR", "46": "PR",
	"47": "SC", "48": "SC", "49": "SC",
	"51": "RS", "53": "RS", "54": "RS", "55": "RS",
	"61": "DF",
	"62": "GO", "64": "GO",
	"63": "TO",
	"65": "MT", "66": "MT",
	"67": "MS",
	"68": "AC",
	"69": "RO",
	"71": "BA", "73": "BA", "74": "BA", "75": "BA", "77": "BA",
	"79": "SE",
	"81": "PE", "87": "PE",
	"82": "AL",
	"83": "PB",
	"84": "RN",
	"85": "CE", "88": "CE",
	"86": "PI", "89": "PI",
	"91": "PA", "93": "PA", "94": "PA",
	"92": "AM", "97": "AM",
	"95": "RR",
	"96": "AP",
	"98": "MA", "99": "MA",
}

// RegionForPhone returns the state derived from a Brazilian area code, or ""
func RegionForPhone(e164 string) string {
	num, err := phonenumbers.Parse(e164, "BR")
	if err != nil || num.GetCountryCode() != 55 {
		return ""
	}
	national := phonenumbers.GetNationalSignificantNumber(num)
	if len(national) < 2 {
		return ""
	}
	return dddStates[national[:2]]
}

// IsPlaceholderLink reports whether an external link carries no signal:
// empty, not a domain, or pointing back at the network itself
func IsPlaceholderLink(link string) bool {
	link = strings.TrimSpace(link)
	if link == "" {
		return true
	}
	raw := link
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(u.Host, ".") {
		return true
	}
	return instagram.IsInstagramHost(u.Host)
}

// unwrapRedirect resolves the network's outbound link shim
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.EqualFold(u.Host, "l.instagram.com") {
		if target := u.Query().Get("u"); target != "" {
			return target
		}
	}
	return href
}
