package entropy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const randomOrgEndpoint = "https://api.random.org/json-rpc/4/invoke"

// OrgSeeder fetches seed material from random.org. Falls back to crypto/rand
// when the API is unavailable.
type OrgSeeder struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewOrgSeeder creates a random.org seeder. Returns nil if apiKey is empty.
func NewOrgSeeder(apiKey string) *OrgSeeder {
	if apiKey == "" {
		return nil
	}
	return &OrgSeeder{
		apiKey:   apiKey,
		endpoint: randomOrgEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled returns true if the seeder has a valid API key.
func (o *OrgSeeder) Enabled() bool {
	return o != nil && o.apiKey != ""
}

// Seed implements SeedProvider. A nil or failing seeder returns crypto/rand
// material, so Seed only errors when crypto/rand itself does.
func (o *OrgSeeder) Seed(ctx context.Context) ([SeedSize]byte, error) {
	if !o.Enabled() {
		return CryptoSeeder{}.Seed(ctx)
	}
	seed, err := o.fetch(ctx)
	if err != nil {
		slog.Debug("random.org fetch failed", "error", err)
		return CryptoSeeder{}.Seed(ctx)
	}
	slog.Debug("random.org seed fetched")
	return seed, nil
}

// fetch asks for eight 16-bit integers and packs them little-endian.
func (o *OrgSeeder) fetch(ctx context.Context) ([SeedSize]byte, error) {
	var seed [SeedSize]byte

	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateIntegers",
		"params": map[string]any{
			"apiKey":      o.apiKey,
			"n":           SeedSize / 2,
			"min":         0,
			"max":         0xFFFF,
			"replacement": true,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return seed, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return seed, fmt.Errorf("request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return seed, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return seed, fmt.Errorf("read: %w", err)
	}

	var result struct {
		Result struct {
			Random struct {
				Data []int `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return seed, fmt.Errorf("parse: %w", err)
	}
	if result.Error != nil {
		return seed, errors.New(result.Error.Message)
	}

	data := result.Result.Random.Data
	if len(data) != SeedSize/2 {
		return seed, fmt.Errorf("got %d integers, want %d", len(data), SeedSize/2)
	}
	for i, v := range data {
		if v < 0 || v > 0xFFFF {
			return seed, fmt.Errorf("integer %d out of range: %d", i, v)
		}
		seed[2*i] = byte(v)
		seed[2*i+1] = byte(v >> 8)
	}
	return seed, nil
}
