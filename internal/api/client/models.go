package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bz888/modeler/internal/apperr"
	"github.com/bz888/modeler/internal/credentials"
)

type ModelsResponse struct {
	Models []Model `json:"models"`
}

type Model struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

type Families []string

// ModelDetails Details represents the details of a model.
type ModelDetails struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          Families `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// ListModels fetches the models the upstream Ollama instance has pulled.
func (c *Client) ListModels(ctx context.Context, cred credentials.Credential) ([]Model, error) {
	requestURL, err := c.ModelsURL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, apperr.Configuration("build models request", err)
	}
	req.Header.Set("Accept", "application/json")
	cred.Apply(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Transport("models request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, apperr.Transport("read models response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Transport("failed to fetch models: "+resp.Status+": "+strings.TrimSpace(string(body)), nil)
	}

	var response ModelsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, apperr.Deserialization("decode models response", err)
	}
	return response.Models, nil
}

// UnmarshalJSON handles the custom unmarshalling for Families.
func (f *Families) UnmarshalJSON(data []byte) error {
	// If the JSON data is "null", return an empty Families slice.
	if string(data) == "null" {
		*f = Families{}
		return nil
	}

	var families []string
	if err := json.Unmarshal(data, &families); err != nil {
		return err
	}
	*f = Families(families)
	return nil
}
