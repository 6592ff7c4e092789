package inference

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// apiError covers both {"error":"msg"} and {"error":{"message":"msg"}}.
type apiError struct {
	Error json.RawMessage `json:"error"`
}

func (e apiError) message() string {
	var s string
	if json.Unmarshal(e.Error, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Error, &obj) == nil {
		return obj.Message
	}
	return ""
}

// do sends req and decodes a 200 JSON body into out. Other statuses become
// errors carrying the provider's own message when it sends one.
func do(client *http.Client, provider string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := strings.TrimSpace(string(raw))
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.message() != "" {
			msg = ae.message()
		}
		return fmt.Errorf("%s returned status %d: %s", provider, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", provider, err)
	}
	return nil
}
