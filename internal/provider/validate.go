// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package provider

import (
	"context"
	"io"
	"net/http"
	"strings"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// Name identifies a supported completion vendor for key validation.
type Name string

const (
	NameAnthropic  Name = "anthropic"
	NameOpenAI     Name = "openai"
	NameGoogle     Name = "google"
	NameOpenRouter Name = "openrouter"
	NameStatic     Name = "static"
)

// KnownNames lists the vendors the setup wizard can configure.
var KnownNames = []Name{NameAnthropic, NameOpenAI, NameGoogle, NameOpenRouter}

func endpointFor(name Name, key string) (string, bool) {
	switch name {
	case NameAnthropic:
		return "https://api.anthropic.com/v1/models", true
	case NameOpenAI:
		return "https://api.openai.com/v1/models", true
	case NameGoogle:
		// Google's Generative Language API authenticates via query parameter.
		// There is no header-based alternative; the key will appear in HTTP
		// proxy/CDN access logs.
		return "https://generativelanguage.googleapis.com/v1/models?key=" + key, true
	case NameOpenRouter:
		return "https://openrouter.ai/api/v1/models", true
	default:
		return "", false
	}
}

func authHeaders(name Name, key string) map[string]string {
	switch name {
	case NameAnthropic:
		return map[string]string{
			"x-api-key":         key,
			"anthropic-version": "2023-06-01",
		}
	case NameOpenAI, NameOpenRouter:
		return map[string]string{
			"Authorization": "Bearer " + key,
		}
	default:
		return nil
	}
}

// CheckEndpoint probes the vendor's models endpoint, honoring a base-URL
// override. Overrides mirror each SDK's base semantics: anthropic and google
// bases sit above the versioned path, OpenAI-compatible bases include it.
func CheckEndpoint(ctx context.Context, client *http.Client, name Name, key, baseURL string) error {
	if baseURL == "" {
		return ValidateKey(ctx, client, name, key)
	}

	base := strings.TrimSuffix(baseURL, "/")
	var url string
	switch name {
	case NameAnthropic:
		url = base + "/v1/models"
	case NameGoogle:
		url = base + "/v1/models?key=" + key
	default:
		url = base + "/models"
	}
	return ValidateKeyWithURL(ctx, client, name, key, url)
}

// ValidateKey makes a lightweight call to the vendor's models endpoint to
// confirm the API key works. 401/403 means the key is bad; any other failure
// means the check itself could not complete.
func ValidateKey(ctx context.Context, client *http.Client, name Name, key string) error {
	url, ok := endpointFor(name, key)
	if !ok {
		return aegiserr.Errorf(aegiserr.CodeProviderKeyInvalid, "unknown provider: %s", name)
	}
	return ValidateKeyWithURL(ctx, client, name, key, url)
}

// ValidateKeyWithURL is ValidateKey against an explicit endpoint, used by
// tests and by deployments fronting vendors with a proxy.
func ValidateKeyWithURL(ctx context.Context, client *http.Client, name Name, key, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeProviderKeyCheckFailed, "building validation request")
	}
	for k, v := range authHeaders(name, key) {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeProviderKeyCheckFailed, "validating %s key", name)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return aegiserr.Errorf(aegiserr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", name, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return aegiserr.Errorf(aegiserr.CodeProviderKeyCheckFailed, "%s validation failed (HTTP %d)", name, resp.StatusCode)
	}
	return nil
}
