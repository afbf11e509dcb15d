package slackapi

import (
	"net/url"
	"strings"
)

// BuildMessageLink renders the canonical archive permalink for a message:
// https://<host>/archives/<channel>/p<ts-without-dot>, with a thread_ts query
// parameter when the message sits inside another message's thread.
func BuildMessageLink(host, channelID, messageTs, threadTs string) string {
	if host == "" {
		host = "slack.com"
	}
	link := "https://" + host + "/archives/" + channelID + "/p" + strings.ReplaceAll(messageTs, ".", "")
	if threadTs != "" && threadTs != messageTs {
		link += "?thread_ts=" + strings.ReplaceAll(threadTs, ".", "")
	}
	return link
}

// ParseMessageLink extracts (channelID, messageTs) from an archive permalink
// or the slack:?id=...&message=... deep-link form. ok is false when the link
// matches neither shape.
func ParseMessageLink(link string) (channelID, messageTs string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", "", false
	}

	if strings.Contains(u.Host, "slack.com") || strings.HasPrefix(u.Path, "/archives/") {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 3 && parts[0] == "archives" {
			channelID = parts[1]
			tsPart := parts[2]
			if strings.HasPrefix(tsPart, "p") && len(tsPart) > 7 {
				digits := tsPart[1:]
				// p1234567890123456 → 1234567890.123456
				messageTs = digits[:len(digits)-6] + "." + digits[len(digits)-6:]
				return channelID, messageTs, true
			}
		}
		return "", "", false
	}

	if u.Scheme == "slack" {
		q := u.Query()
		channelID = q.Get("id")
		messageTs = q.Get("message")
		if channelID != "" && messageTs != "" {
			return channelID, messageTs, true
		}
	}

	return "", "", false
}
