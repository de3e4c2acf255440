package identity

import "strconv"

const (
	payloadDomain  = "tello"
	payloadVersion = "v4"
)

// SigningPayload builds the canonical byte string a sender signs for one
// message. Verifiers rebuild it from the entry's own fields; a payload
// string shipped alongside the data is never trusted.
func SigningPayload(sender, recipient, content string, timestamp int64) []byte {
	parts := payloadDomain + "|" + payloadVersion +
		"|sender:" + sender +
		"|recipient:" + recipient +
		"|timestamp:" + strconv.FormatInt(timestamp, 10) +
		"|content:" + content
	return []byte(parts)
}
