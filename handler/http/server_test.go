package http_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	clock "github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/veilpay/veilpay/crypto"
	dhttp "github.com/veilpay/veilpay/handler/http"
	"github.com/veilpay/veilpay/ledger"
	"github.com/veilpay/veilpay/ledger/memdb"
	"github.com/veilpay/veilpay/log"
	"github.com/veilpay/veilpay/oracle/mock"
	"github.com/veilpay/veilpay/reveal"
)

type apiEnv struct {
	srv    *httptest.Server
	oracle *mock.Oracle
	engine *reveal.Engine
}

func newAPI(t *testing.T) *apiEnv {
	t.Helper()
	orc := mock.New()
	store := memdb.NewStore()
	engine := reveal.NewEngine(
		log.DefaultLogger(),
		store,
		orc,
		orc,
		crypto.NewVerifier(orc.PublicKey()),
		clock.NewFakeClock(),
	)
	srv := httptest.NewServer(dhttp.New(log.DefaultLogger(), engine, store))
	t.Cleanup(srv.Close)
	return &apiEnv{srv: srv, oracle: orc, engine: engine}
}

func (a *apiEnv) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	buff := &bytes.Buffer{}
	if body != nil {
		require.NoError(t, json.NewEncoder(buff).Encode(body))
	}
	resp, err := http.Post(a.srv.URL+path, "application/json", buff)
	require.NoError(t, err)
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func (a *apiEnv) ciphertext(t *testing.T, v uint64) string {
	t.Helper()
	ct, err := a.oracle.Encrypt(v)
	require.NoError(t, err)
	return hex.EncodeToString(ct)
}

func TestAPIRevealFlow(t *testing.T) {
	api := newAPI(t)
	contributor := ledger.ContributorKey{0xaa}

	resp := api.post(t, "/pool/deposit", map[string]int64{"amount": 1000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var deposit struct {
		Balance uint64 `json:"balance"`
	}
	decodeInto(t, resp, &deposit)
	require.Equal(t, uint64(1000), deposit.Balance)

	resp = api.post(t, "/contributions", map[string]string{
		"compute_hours":   api.ciphertext(t, 100),
		"data_quality":    api.ciphertext(t, 80),
		"model_impact":    api.ciphertext(t, 60),
		"contributor_key": contributor.String(),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var submitted struct {
		ContributionID uint64 `json:"contribution_id"`
	}
	decodeInto(t, resp, &submitted)
	require.Equal(t, uint64(1), submitted.ContributionID)

	// nothing revealed yet: the read API serves the zero-value default
	var royalty struct {
		ContributionID uint64 `json:"contribution_id"`
		ShareBps       uint64 `json:"share_bps"`
		Payment        uint64 `json:"payment"`
		Revealed       bool   `json:"revealed"`
	}
	resp, err := http.Get(fmt.Sprintf("%s/royalty/%d", api.srv.URL, submitted.ContributionID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, resp, &royalty)
	require.False(t, royalty.Revealed)

	resp = api.post(t, fmt.Sprintf("/contributions/%d/calculate", submitted.ContributionID), nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	_ = resp.Body.Close()

	require.NoError(t, api.oracle.Emit(api.oracle.LastRequest(), api.engine.OnCalculationRevealed))

	resp, err = http.Get(fmt.Sprintf("%s/royalty/%d", api.srv.URL, submitted.ContributionID))
	require.NoError(t, err)
	decodeInto(t, resp, &royalty)
	require.True(t, royalty.Revealed)
	require.Equal(t, uint64(83), royalty.ShareBps)
	require.Equal(t, uint64(8), royalty.Payment)

	resp = api.post(t, "/claims/"+contributor.String(), nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	_ = resp.Body.Close()
	require.NoError(t, api.oracle.Emit(api.oracle.LastRequest(), api.engine.OnClaimRevealed))

	// settled claims are final
	resp = api.post(t, "/claims/"+contributor.String(), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIRejectsBadInput(t *testing.T) {
	api := newAPI(t)

	resp := api.post(t, "/contributions", map[string]string{
		"compute_hours":   "zz",
		"data_quality":    api.ciphertext(t, 1),
		"model_impact":    api.ciphertext(t, 1),
		"contributor_key": ledger.ContributorKey{}.String(),
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = api.post(t, "/contributions", map[string]string{
		"compute_hours":   api.ciphertext(t, 1),
		"data_quality":    api.ciphertext(t, 1),
		"model_impact":    api.ciphertext(t, 1),
		"contributor_key": "abcd",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = api.post(t, "/pool/deposit", map[string]int64{"amount": -10})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = api.post(t, "/contributions/42/calculate", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	resp = api.post(t, "/claims/"+ledger.ContributorKey{0x01}.String(), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHealth(t *testing.T) {
	api := newAPI(t)

	resp, err := http.Get(api.srv.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health struct {
		Status  string `json:"status"`
		Pending int    `json:"pending"`
	}
	decodeInto(t, resp, &health)
	require.Equal(t, "ok", health.Status)
	require.Zero(t, health.Pending)
}
