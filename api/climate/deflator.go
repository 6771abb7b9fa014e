package climate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ClimFinLedger/internal/engine"
	"ClimFinLedger/internal/schema"
)

// Deflator restates monetary values in a target currency and price basis.
// It is an external collaborator consumed as a black box: rows with a year,
// provider code, and value go in, restated values come out in order.
type Deflator interface {
	Deflate(ctx context.Context, req DeflateRequest) ([]float64, error)
}

// DeflateRow is one value to restate.
type DeflateRow struct {
	Year         int16   `json:"year"`
	ProviderCode string  `json:"provider_code"`
	Value        float64 `json:"value"`
}

// DeflateRequest is the deflator wire contract.
type DeflateRequest struct {
	Currency   string       `json:"currency"`
	PriceBasis string       `json:"price_basis"`
	Rows       []DeflateRow `json:"rows"`
}

// HTTPDeflator talks to the deflator service over JSON.
type HTTPDeflator struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPDeflator(baseURL string) *HTTPDeflator {
	return &HTTPDeflator{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (d *HTTPDeflator) Deflate(ctx context.Context, req DeflateRequest) ([]float64, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/deflate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deflator returned HTTP %d", resp.StatusCode)
	}

	var out struct {
		Values []float64 `json:"values"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Values) != len(req.Rows) {
		return nil, fmt.Errorf("deflator returned %d values for %d rows", len(out.Values), len(req.Rows))
	}
	return out.Values, nil
}

// deflateRows restates every ledger row and returns a new slice; the input
// is never mutated.
func deflateRows(ctx context.Context, d Deflator, rows []engine.IndicatorRow, currency schema.Currency, basis schema.PriceBasis) ([]engine.IndicatorRow, error) {
	req := DeflateRequest{
		Currency:   currency.String(),
		PriceBasis: basis.String(),
		Rows:       make([]DeflateRow, len(rows)),
	}
	for i, r := range rows {
		req.Rows[i] = DeflateRow{Year: r.Year, ProviderCode: r.ProviderCode, Value: r.Value}
	}
	values, err := d.Deflate(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]engine.IndicatorRow, len(rows))
	copy(out, rows)
	for i := range out {
		out[i].Value = values[i]
	}
	return out, nil
}
