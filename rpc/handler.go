package rpc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/indexer"
	"github.com/tolelom/kombat/vm"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	chainID string // expected chain_id; used to reject cross-chain replay transactions
	now     func() time.Time
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, chainID string) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, chainID: chainID, now: time.Now}
}

// BattleView is a battle together with its lifecycle state at query time.
type BattleView struct {
	*core.Battle
	State core.BattleState `json:"state"`
}

// VaultView is a vault record together with the balance its account holds.
type VaultView struct {
	*core.Vault
	Balance uint64 `json:"balance"`
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getConfig":
		return h.getConfig(req)

	case "getBattle":
		return h.byID(req, h.getBattle)

	case "getVault":
		return h.byID(req, h.getVault)

	case "getBettingPool":
		return h.byID(req, func(id string) (any, error) { return h.state.GetBettingPool(id) })

	case "getBet":
		return h.byID(req, func(id string) (any, error) { return h.state.GetBet(id) })

	case "getCommit":
		return h.byID(req, func(id string) (any, error) { return h.state.GetCommit(id) })

	case "getBattlesByPlayer":
		return h.byKey(req, "player", func(p string) (any, error) { return h.indexer.GetBattlesByPlayer(p) })

	case "getBetsByBettor":
		return h.byKey(req, "bettor", func(b string) (any, error) { return h.indexer.GetBetsByBettor(b) })

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return errorResponse(req.ID, err)
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	return h.byKey(req, "address", func(addr string) (any, error) {
		acc, err := h.state.GetAccount(addr)
		if err != nil {
			return nil, err
		}
		return map[string]any{"address": addr, "balance": acc.Balance, "nonce": acc.Nonce}, nil
	})
}

func (h *Handler) getConfig(req Request) Response {
	cfg, err := h.state.GetConfig()
	if err != nil {
		return errorResponse(req.ID, fmt.Errorf("global config: %w", err))
	}
	return okResponse(req.ID, cfg)
}

func (h *Handler) getBattle(id string) (any, error) {
	b, err := h.state.GetBattle(id)
	if err != nil {
		return nil, err
	}
	return BattleView{Battle: b, State: core.DeriveState(b, h.now().Unix())}, nil
}

func (h *Handler) getVault(id string) (any, error) {
	v, err := h.state.GetVault(id)
	if err != nil {
		return nil, err
	}
	acc, err := h.state.GetAccount(v.Address)
	if err != nil {
		return nil, err
	}
	return VaultView{Vault: v, Balance: acc.Balance}, nil
}

func (h *Handler) byID(req Request, get func(id string) (any, error)) Response {
	return h.byKey(req, "id", get)
}

// byKey decodes a single required string parameter named key and passes it
// to get.
func (h *Handler) byKey(req Request, key string, get func(string) (any, error)) Response {
	var params map[string]string
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	val := params[key]
	if val == "" {
		return errResponse(req.ID, CodeInvalidParams, key+" is required")
	}
	result, err := get(val)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return okResponse(req.ID, result)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	if !vm.Registered(tx.Type) {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("unknown tx type %q", tx.Type))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}
