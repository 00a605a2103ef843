package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// HTTPOracle polls a JSON endpoint shaped like the reference feed's
// latestRoundData: {"round_id":..,"answer":"..","started_at":..,"updated_at":..,"answered_in_round":..}.
type HTTPOracle struct {
	url        string
	decimals   uint8
	httpClient *http.Client
}

func NewHTTPOracle(url string, decimals uint8) (*HTTPOracle, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("missing ORACLE_URL")
	}
	return &HTTPOracle{
		url:        strings.TrimSpace(url),
		decimals:   decimals,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type roundPayload struct {
	RoundID         uint64 `json:"round_id"`
	Answer          string `json:"answer"`
	StartedAt       int64  `json:"started_at"`
	UpdatedAt       int64  `json:"updated_at"`
	AnsweredInRound uint64 `json:"answered_in_round"`
}

func (o *HTTPOracle) LatestRoundData(ctx context.Context) (Round, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return Round{}, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Round{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Round{}, fmt.Errorf("pricefeed: oracle endpoint returned %d", resp.StatusCode)
	}
	var p roundPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Round{}, err
	}
	answer, ok := new(big.Int).SetString(strings.TrimSpace(p.Answer), 10)
	if !ok {
		return Round{}, fmt.Errorf("pricefeed: bad answer %q", p.Answer)
	}
	return Round{
		RoundID:         p.RoundID,
		Answer:          answer,
		StartedAt:       time.Unix(p.StartedAt, 0).UTC(),
		UpdatedAt:       time.Unix(p.UpdatedAt, 0).UTC(),
		AnsweredInRound: p.AnsweredInRound,
	}, nil
}

func (o *HTTPOracle) Decimals() uint8 { return o.decimals }

// FixedOracle serves a constant price; development and test wiring.
type FixedOracle struct {
	Price *big.Int
	Scale uint8
}

func (o *FixedOracle) LatestRoundData(context.Context) (Round, error) {
	now := time.Now().UTC()
	return Round{RoundID: 1, Answer: new(big.Int).Set(o.Price), StartedAt: now, UpdatedAt: now, AnsweredInRound: 1}, nil
}

func (o *FixedOracle) Decimals() uint8 { return o.Scale }
