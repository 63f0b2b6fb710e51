package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"wishport/native/wishport"
)

type listParams struct {
	Caller    string `json:"caller"`
	Value     string `json:"value,omitempty"`
	ID        string `json:"id"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Nonce     string `json:"nonce"`
	Deadline  int64  `json:"deadline"`
	Signature string `json:"signature"`
}

type unlistParams struct {
	Caller     string `json:"caller"`
	ID         string `json:"id"`
	FeePortion uint64 `json:"feePortion"`
	Nonce      string `json:"nonce"`
	Deadline   int64  `json:"deadline"`
	Signature  string `json:"signature"`
}

type fulfillParams struct {
	Caller        string `json:"caller"`
	ID            string `json:"id"`
	Fulfiller     string `json:"fulfiller"`
	RefundPortion uint64 `json:"refundPortion"`
	FeePortion    uint64 `json:"feePortion"`
	Nonce         string `json:"nonce"`
	Deadline      int64  `json:"deadline"`
	Signature     string `json:"signature"`
}

type disputeParams struct {
	Caller        string `json:"caller"`
	ID            string `json:"id"`
	Fulfiller     string `json:"fulfiller"`
	RewardPortion uint64 `json:"rewardPortion"`
	Nonce         string `json:"nonce"`
	Deadline      int64  `json:"deadline"`
	Signature     string `json:"signature"`
}

type claimParams struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient,omitempty"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
}

type signerParams struct {
	Caller string `json:"caller"`
	Signer string `json:"signer"`
}

type claimAllowedParams struct {
	Caller  string `json:"caller"`
	Allowed bool   `json:"allowed"`
}

type assetConfigParams struct {
	Caller                    string `json:"caller"`
	Asset                     string `json:"asset,omitempty"`
	Activated                 bool   `json:"activated"`
	PlatformFeePortion        uint64 `json:"platformFeePortion"`
	DisputeHandlingFeePortion uint64 `json:"disputeHandlingFeePortion"`
}

type assetConfigBody struct {
	Activated                 bool   `json:"activated"`
	PlatformFeePortion        uint64 `json:"platformFeePortion"`
	DisputeHandlingFeePortion uint64 `json:"disputeHandlingFeePortion"`
}

// assetConfigBatchParams pairs assets and configs element-wise; the ledger
// rejects mismatched lengths.
type assetConfigBatchParams struct {
	Caller  string            `json:"caller"`
	Assets  []string          `json:"assets"`
	Configs []assetConfigBody `json:"configs"`
}

type tokenFlagParams struct {
	Caller string `json:"caller"`
	ID     string `json:"id"`
	Status bool   `json:"status"`
}

type statusResult struct {
	Status string `json:"status"`
}

type recordJSON struct {
	ID     string `json:"id"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	Live   bool   `json:"live"`
}

type tokenJSON struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	Transferable bool   `json:"transferable"`
	Completed    bool   `json:"completed"`
}

type settingsJSON struct {
	AuthedSigner string `json:"authedSigner"`
	ClaimAllowed bool   `json:"claimAllowed"`
}

type assetConfigJSON struct {
	Activated                 bool   `json:"activated"`
	PlatformFeePortion        uint64 `json:"platformFeePortion"`
	DisputeHandlingFeePortion uint64 `json:"disputeHandlingFeePortion"`
}

type eventJSON struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func decode(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func ok(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, statusResult{Status: "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var params listParams
	if err := decode(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	value, err := parseOptionalAmount("value", params.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := parseTokenID("id", params.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset, err := parseOptionalAddress("asset", params.Asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	nonce, err := parseNonce("nonce", params.Nonce)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sig, err := parseSignature("signature", params.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	call := wishport.Call{Caller: caller, Value: value}
	if err := s.node.List(call, id, asset, amount, nonce, params.Deadline, sig); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w)
}

func (s *Server) handleUnlist(w http.ResponseWriter, r *http.Request) {
	var params unlistParams
	if err := decode(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := parseTokenID("id", params.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	nonce, err := parseNonce("nonce", params.Nonce)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sig, err := parseSignature("signature", params.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.Unlist(wishport.Call{Caller: caller}, id, params.FeePortion, nonce, params.Deadline, sig); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w)
}

func (s *Server) handleFulfill(w http.ResponseWriter, r *http.Request) {
	var params fulfillParams
	if err := decode(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := parseTokenID("id", params.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fulfiller, err := parseAddress("fulfiller", params.Fulfiller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	nonce, err := parseNonce("nonce", params.Nonce)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sig, err := parseSignature("signature", params.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.node.Fulfill(wishport.Call{Caller: caller}, id, fulfiller, params.RefundPortion, params.FeePortion, nonce, params.Deadline, sig)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w)
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	var params disputeParams
	if err := decode(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := parseTokenID("id", params.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fulfiller, err := parseAddress("fulfiller", params.Fulfiller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	nonce, err := parseNonce("nonce", params.Nonce)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sig, err := parseSignature("signature", params.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.node.HandleDispute(wishport.Call{Caller: caller}, id, fulfiller, params.RewardPortion, nonce, params.Deadline, sig)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var params claimParams
	if err := decode(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recipient, err := parseOptionalAddress("recipient", params.Recipient)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset, err := parseOptionalAddress("asset", params.Asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.Claim(wishport.Call{Caller: caller}, recipient, asset, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w)
}

func (s *Server) handleSetAuthedSigner(w http.ResponseWriter, r *http.Request) {
	var params signerParams
	if err := decode(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	signer, err := parseAddress("signer", params.Signer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.SetAuthedSigner(caller, signer); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w)
}

func (s *Server) handleSetClaimAllowed(w http.ResponseWriter, r *http.Request) {
	var params claimAllowedParams
	if err := decode(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.SetClaimAllowed(caller, params.Allowed); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w)
}

func (s *Server) handleSetAssetConfig(w http.ResponseWriter, r *http.Request) {
	var params assetConfigParams
	if err := decode(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset, err := parseOptionalAddress("asset", params.Asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg := &wishport.AssetConfig{
		Activated:                 params.Activated,
		PlatformFeePortion:        params.PlatformFeePortion,
		DisputeHandlingFeePortion: params.DisputeHandlingFeePortion,
	}
	if err := s.node.SetAssetConfig(caller, asset, cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w)
}

func (s *Server) handleSetAssetConfigs(w http.ResponseWriter, r *http.Request) {
	var params assetConfigBatchParams
	if err := decode(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	assets := make([]ethcommon.Address, 0, len(params.Assets))
	for _, raw := range params.Assets {
		asset, err := parseOptionalAddress("assets", raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		assets = append(assets, asset)
	}
	cfgs := make([]*wishport.AssetConfig, 0, len(params.Configs))
	for _, body := range params.Configs {
		cfgs = append(cfgs, &wishport.AssetConfig{
			Activated:                 body.Activated,
			PlatformFeePortion:        body.PlatformFeePortion,
			DisputeHandlingFeePortion: body.DisputeHandlingFeePortion,
		})
	}
	if err := s.node.SetAssetConfigs(caller, assets, cfgs); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w)
}

func (s *Server) handleSetDefaultAssetConfig(w http.ResponseWriter, r *http.Request) {
	var params assetConfigParams
	if err := decode(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg := &wishport.AssetConfig{
		Activated:                 params.Activated,
		PlatformFeePortion:        params.PlatformFeePortion,
		DisputeHandlingFeePortion: params.DisputeHandlingFeePortion,
	}
	if err := s.node.SetDefaultAssetConfig(caller, cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w)
}

func (s *Server) handleSetTransferable(w http.ResponseWriter, r *http.Request) {
	s.handleTokenFlag(w, r, s.node.SetTransferable)
}

func (s *Server) handleSetCompleted(w http.ResponseWriter, r *http.Request) {
	s.handleTokenFlag(w, r, s.node.SetCompleted)
}

func (s *Server) handleTokenFlag(w http.ResponseWriter, r *http.Request, apply func(ethcommon.Address, *uint256.Int, bool) error) {
	var params tokenFlagParams
	if err := decode(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := parseTokenID("id", params.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := apply(caller, id, params.Status); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseTokenID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	record, found, err := s.node.Record(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !found {
		s.writeError(w, r, wishport.ErrRecordNotFound)
		return
	}
	writeJSON(w, http.StatusOK, recordJSON{
		ID:     id.Dec(),
		Asset:  record.Asset.Hex(),
		Amount: record.Amount.String(),
		Live:   record.Live(),
	})
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	id, err := parseTokenID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.node.GetToken(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenJSON{
		ID:           token.ID.Dec(),
		Owner:        token.Owner.Hex(),
		Transferable: token.Transferable,
		Completed:    token.Completed,
	})
}

func (s *Server) handleGetTokenOwner(w http.ResponseWriter, r *http.Request) {
	id, err := parseTokenID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := s.node.OwnerOf(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": owner.Hex()})
}

func (s *Server) handleGetTokenURI(w http.ResponseWriter, r *http.Request) {
	id, err := parseTokenID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	uri, err := s.node.TokenURI(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uri": uri})
}

func (s *Server) handleTokensOfOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var ids []*uint256.Int
	switch r.URL.Query().Get("transferable") {
	case "":
		ids, err = s.node.TokensOfOwner(owner)
	case "true":
		ids, err = s.node.TokensOfOwnerFiltered(owner, true)
	case "false":
		ids, err = s.node.TokensOfOwnerFiltered(owner, false)
	default:
		s.writeError(w, r, badRequest("transferable must be true or false"))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Dec())
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tokens": out})
}

func (s *Server) handleClaimableBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset, err := parseAddress("asset", chi.URLParam(r, "asset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	balance, err := s.node.ClaimableBalance(account, asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.node.Settings()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsJSON{
		AuthedSigner: settings.AuthedSigner.Hex(),
		ClaimAllowed: settings.ClaimAllowed,
	})
}

func (s *Server) handleGetAssetConfig(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAddress("asset", chi.URLParam(r, "asset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := s.node.AssetConfig(asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assetConfigJSON{
		Activated:                 cfg.Activated,
		PlatformFeePortion:        cfg.PlatformFeePortion,
		DisputeHandlingFeePortion: cfg.DisputeHandlingFeePortion,
	})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	tail := s.node.Events()
	out := make([]eventJSON, 0, len(tail))
	for _, evt := range tail {
		out = append(out, eventJSON{Type: evt.Type, Attributes: evt.Attributes})
	}
	writeJSON(w, http.StatusOK, map[string][]eventJSON{"events": out})
}
