// Package codec talks to room codecs over their HTTP XML API: commands and
// configuration through /putxml, status reads through /getxml.
package codec

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Target addresses one codec.
type Target struct {
	Host     string
	Username string
	Password string
}

// Client sends XML API requests to codecs.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a client with the given per-request timeout. Codecs ship
// with self-signed certificates, so insecureTLS is usually true on site.
func NewClient(timeout time.Duration, insecureTLS bool) *Client {
	return &Client{
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: insecureTLS},
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Execute posts a command or configuration document.
func (c *Client) Execute(ctx context.Context, target Target, doc Document) error {
	_, err := c.PutXML(ctx, target, doc.Action(), doc.Render())
	return err
}

// PutXML posts a raw XML body to https://host/putxml.
func (c *Client) PutXML(ctx context.Context, target Target, action string, body []byte) ([]byte, error) {
	endpoint := fmt.Sprintf("https://%s/putxml", target.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=\"utf-8\"")

	payload, err := c.do(req, target, action)
	if err != nil {
		return nil, err
	}

	if reason, failed := parseResultError(payload); failed {
		return nil, &RejectedError{Action: action, Status: http.StatusOK, Reason: reason}
	}
	return payload, nil
}

// GetXML reads a status subtree, e.g. location "/Status/Call".
func (c *Client) GetXML(ctx context.Context, target Target, location string) ([]byte, error) {
	endpoint := fmt.Sprintf("https://%s/getxml?location=%s", target.Host, url.QueryEscape(location))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, target, "getxml "+location)
}

func (c *Client) do(req *http.Request, target Target, action string) ([]byte, error) {
	if target.Username != "" {
		req.SetBasicAuth(target.Username, target.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, &TimeoutError{Host: target.Host, Action: action}
		}
		return nil, &UnreachableError{Host: target.Host, Action: action, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnreachableError{Host: target.Host, Action: action, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &UnauthorizedError{Host: target.Host}
	case resp.StatusCode >= 400:
		reason, _ := parseResultError(payload)
		return nil, &RejectedError{Action: action, Status: resp.StatusCode, Reason: reason}
	}

	return payload, nil
}

// parseResultError finds a status="Error" result and its Reason text.
func parseResultError(payload []byte) (string, bool) {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	failed := false
	var reason string

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, attr := range se.Attr {
			if attr.Name.Local == "status" && strings.EqualFold(attr.Value, "Error") {
				failed = true
			}
		}
		if failed && se.Name.Local == "Reason" {
			var value string
			if err := decoder.DecodeElement(&value, &se); err == nil {
				reason = strings.TrimSpace(value)
			}
		}
	}

	return reason, failed
}
