package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// VaultConfig configures the HashiCorp Vault KV v2 source.
type VaultConfig struct {
	Address    string // e.g. http://localhost:8200
	Token      string
	MountPath  string // default "secret"
	SecretPath string // default "quill"
	Timeout    time.Duration
}

// VaultSource reads keys from a single KV v2 secret. The secret is fetched
// on every Get; the Resolver caches hits.
type VaultSource struct {
	config VaultConfig
	client *http.Client
}

// NewVaultSource validates cfg and fills defaults.
func NewVaultSource(cfg *VaultConfig) (*VaultSource, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("secrets: vault address required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("secrets: vault token required")
	}
	c := *cfg
	if c.MountPath == "" {
		c.MountPath = "secret"
	}
	if c.SecretPath == "" {
		c.SecretPath = "quill"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	return &VaultSource{config: c, client: &http.Client{Timeout: c.Timeout}}, nil
}

func (s *VaultSource) Name() string { return "vault" }

func (s *VaultSource) Get(ctx context.Context, key string) (string, error) {
	url := fmt.Sprintf("%s/v1/%s/data/%s",
		strings.TrimSuffix(s.config.Address, "/"), s.config.MountPath, s.config.SecretPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", s.config.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vault request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("vault error %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	val, ok := result.Data.Data[key]
	if !ok {
		return "", ErrNotFound
	}
	if str, ok := val.(string); ok {
		return str, nil
	}
	return fmt.Sprint(val), nil
}
