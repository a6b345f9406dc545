package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// apiError is the server's JSON failure body.
type apiError struct {
	Status  int    `json:"-"`
	Msg     string `json:"error"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Message
	}
	if e.Kind != "" {
		return fmt.Sprintf("http %d (%s): %s", e.Status, e.Kind, msg)
	}
	return fmt.Sprintf("http %d: %s", e.Status, msg)
}

// client talks to the kobo-server JSON API.
type client struct {
	base string
	http *http.Client
}

func newClient(base string, hc *http.Client) *client {
	return &client{base: strings.TrimRight(base, "/"), http: hc}
}

func (c *client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		e := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(b, e) != nil || (e.Msg == "" && e.Message == "") {
			e.Msg = strings.TrimSpace(string(b))
		}
		return e
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(b, out)
}
