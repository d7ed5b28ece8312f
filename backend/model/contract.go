package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ApprovalStatusApproved is the only status this service ever sends.
const ApprovalStatusApproved = "APPROVED"

// ErrMalformedPayload is returned when the backend answer is neither a JSON object nor an array.
var ErrMalformedPayload = errors.New("payload is not a JSON object or array")

// ContractRef is the automation backend's answer for one token.
type ContractRef struct {
	HTMLURL         string
	ApprovalStatus  string
	ContractVersion string
}

// DecodeContractRef normalizes the two payload shapes the backend uses,
// a single object or an array whose first element is the object.
// found is false when the array is empty or contract_html_url is missing.
func DecodeContractRef(body []byte) (ref ContractRef, found bool, err error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ContractRef{}, false, ErrMalformedPayload
	}

	var objects []map[string]any
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &objects); err != nil {
			return ContractRef{}, false, errors.Join(ErrMalformedPayload, err)
		}
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return ContractRef{}, false, errors.Join(ErrMalformedPayload, err)
		}
		objects = append(objects, obj)
	default:
		return ContractRef{}, false, ErrMalformedPayload
	}

	if len(objects) == 0 {
		return ContractRef{}, false, nil
	}

	first := objects[0]
	ref = ContractRef{
		HTMLURL:         scalarField(first, "contract_html_url"),
		ApprovalStatus:  scalarField(first, "approval_status"),
		ContractVersion: scalarField(first, "contract_version"),
	}
	return ref, ref.HTMLURL != "", nil
}

func scalarField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// ContractDocument is the downloaded contract body. It is never cached.
type ContractDocument struct {
	RawHTML string
}

// Valid reports whether the body looks like an HTML document.
func (d ContractDocument) Valid() bool {
	return d.RawHTML != "" && strings.Contains(strings.ToLower(d.RawHTML), "<html")
}

// Preview returns at most n characters of the body for diagnostics.
func (d ContractDocument) Preview(n int) string {
	if utf8.RuneCountInString(d.RawHTML) <= n {
		return d.RawHTML
	}
	runes := []rune(d.RawHTML)
	return string(runes[:n])
}

// ApprovalSubmission is forwarded once to the automation backend and then discarded.
type ApprovalSubmission struct {
	Token          string `json:"token"`
	FullName       string `json:"full_name"`
	CaptchaToken   string `json:"-"`
	ApprovalStatus string `json:"approval_status"`
	ApprovedAt     string `json:"approved_at"`
	ApprovedIP     string `json:"approved_ip"`
	UserAgent      string `json:"user_agent"`
}

// NewApprovalSubmission stamps the submission with now in UTC, millisecond precision.
func NewApprovalSubmission(token, fullName, captchaToken, ip, userAgent string, now time.Time) ApprovalSubmission {
	if ip == "" {
		ip = "unknown"
	}
	return ApprovalSubmission{
		Token:          token,
		FullName:       fullName,
		CaptchaToken:   captchaToken,
		ApprovalStatus: ApprovalStatusApproved,
		ApprovedAt:     now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		ApprovedIP:     ip,
		UserAgent:      userAgent,
	}
}
