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

// Package emoncms posts periodic snapshots to an EmonCMS server.
package emoncms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"kilnctl/internal/config"
	"kilnctl/pkg/logger"
)

// DataSource provides one EmonCMS node worth of inputs.
type DataSource interface {
	GetData() map[string]float64
}

type LoggerService struct {
	addr     string
	apiKey   string
	interval time.Duration
	nodes    map[string]DataSource
	client   *http.Client
	log      *logger.Logger
}

func New(appConfig *config.Config, nodes map[string]DataSource) *LoggerService {
	return &LoggerService{
		addr:     appConfig.DataLogger.EmonCMSAddr,
		apiKey:   appConfig.DataLogger.EmonCMSApiKey,
		interval: time.Duration(appConfig.DataLogger.IntervalSeconds) * time.Second,
		nodes:    nodes,
		client:   &http.Client{Timeout: 5 * time.Second},
		log:      logger.New("DataLogger"),
	}
}

func (c *LoggerService) emoncmsInputPost(ctx context.Context, node string, data map[string]float64) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	q := url.Values{}
	q.Set("node", node)
	q.Set("apikey", c.apiKey)
	q.Set("fulljson", string(bytes))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.addr+"/input/post?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("input/post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("input/post: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *LoggerService) tick(ctx context.Context) {
	names := make([]string, 0, len(c.nodes))
	for name := range c.nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, node := range names {
		data := c.nodes[node].GetData()
		if len(data) == 0 {
			continue
		}
		if err := c.emoncmsInputPost(ctx, node, data); err != nil {
			c.log.Error("node %s: %v", node, err)
		}
	}
}

func (c *LoggerService) Run(ctx context.Context) {
	if c.addr == "" {
		c.log.Info("no emoncms_addr configured, not logging")
		return
	}
	c.log.Info("Running...")
	defer c.log.Info("Stopped.")

	tick := time.NewTicker(c.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			c.tick(ctx)
		}
	}
}
