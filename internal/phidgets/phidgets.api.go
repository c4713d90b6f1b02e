// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package phidgets talks to a Phidgets HTTP bridge. The kiln uses a
// digital output channel to switch the SSR.
package phidgets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type DigitalOutRequest struct {
	Name        string `json:"name"`
	TargetState bool   `json:"target_state"`
	Channel     int    `json:"channel"`
	HubPort     int    `json:"hub_port"`
}

type Client struct {
	serverURL string
	http      *http.Client
}

func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		http:      &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP POST failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) SetDigitalOutput(ctx context.Context, name string, state bool, channel, hubPort int) error {
	return c.postJSON(ctx, "/phidgets/digital_out", DigitalOutRequest{
		Name:        name,
		TargetState: state,
		Channel:     channel,
		HubPort:     hubPort,
	})
}

// Relay returns a switch func for one digital output channel.
func (c *Client) Relay(ctx context.Context, name string, channel, hubPort int) func(on bool) error {
	return func(on bool) error {
		return c.SetDigitalOutput(ctx, name, on, channel, hubPort)
	}
}
