package auth

import (
	"fmt"

	"github.com/charmbracelet/x/ansi"
	"github.com/tidwall/gjson"

	"github.com/ibeckermayer/pageprobe/internal/types"
)

// LoginResponse is the part of the login endpoint's JSON body we read:
// {"success": true, "user": {"name": "...", "role": "..."}} or
// {"error": "..."}.
type LoginResponse struct {
	Status   int
	Success  bool
	UserName string
	UserRole string
	Error    string
}

// ParseLoginResponse interprets a login endpoint response.
//
// A 2xx with a JSON body is authoritative: Success is the body's success
// field. A 401 or 403 with a JSON body is a rejected login, not an error.
// Any other status, or a body that is not a JSON object, wraps
// types.ErrUnexpectedResponse.
func ParseLoginResponse(status int, body []byte) (LoginResponse, error) {
	resp := LoginResponse{Status: status}

	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return resp, fmt.Errorf("%w: status %d with non-JSON body %q", types.ErrUnexpectedResponse, status, truncate(string(body), 120))
	}

	doc := gjson.ParseBytes(body)
	resp.Error = doc.Get("error").String()

	switch {
	case status >= 200 && status < 300:
		success := doc.Get("success")
		if !success.Exists() {
			return resp, fmt.Errorf("%w: status %d body has no success field", types.ErrUnexpectedResponse, status)
		}
		resp.Success = success.Bool()
		resp.UserName = doc.Get("user.name").String()
		resp.UserRole = doc.Get("user.role").String()
		return resp, nil
	case status == 401 || status == 403:
		return resp, nil
	default:
		return resp, fmt.Errorf("%w: status %d", types.ErrUnexpectedResponse, status)
	}
}

func truncate(s string, maxLen int) string {
	return ansi.Truncate(s, maxLen, "...")
}
