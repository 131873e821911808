package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GetJson fetches url from the admin API and returns the response body.
func GetJson(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	return readJson(resp)
}

// PostJson sends body to url and returns the response body.
func PostJson(url string, body []byte) ([]byte, error) {
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	return readJson(resp)
}

// readJson returns the body of a 2xx response. Other statuses become errors
// carrying the server's message when it sent one.
func readJson(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, fmt.Errorf("server response: %s", JsonExtractStringOrDefault(body, "message", resp.Status))
	}
	return body, nil
}

// PrintJson writes body to w, indented.
func PrintJson(w io.Writer, body []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "\t"); err != nil {
		return err
	}
	out.WriteString("\n")
	_, err := out.WriteTo(w)
	return err
}
