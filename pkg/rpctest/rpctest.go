// Package rpctest is an in-process JSON-RPC node for exercising clients
// against canned chain responses.
package rpctest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Handler answers one JSON-RPC method.
type Handler func(params []json.RawMessage) (any, error)

// CallHandler answers an eth_call for one contract function.
type CallHandler func(input []byte) ([]byte, error)

// Error is returned to the client as a JSON-RPC error object.
type Error struct {
	Code    int
	Message string
	Data    string
}

func (e *Error) Error() string { return e.Message }

// Revert builds the error a node returns for a reverted call.
func Revert(reason string, data []byte) *Error {
	return &Error{Code: 3, Message: "execution reverted: " + reason, Data: hexutil.Encode(data)}
}

// Server is a fake node.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]Handler
	calls    map[string]CallHandler
	counts   map[string]int
	sent     []*types.Transaction
}

// NewServer starts a node reporting chainID. It is closed with the test.
func NewServer(t testing.TB, chainID int64) *Server {
	s := &Server{
		handlers: make(map[string]Handler),
		calls:    make(map[string]CallHandler),
		counts:   make(map[string]int),
	}
	s.Result("eth_chainId", hexutil.EncodeBig(big.NewInt(chainID)))
	s.Result("net_version", fmt.Sprint(chainID))
	s.Handle("eth_call", s.handleCall)
	s.Handle("eth_sendRawTransaction", s.handleSendRaw)
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)
	return s
}

// Handle registers h for method.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Result makes method always return v.
func (s *Server) Result(method string, v any) {
	s.Handle(method, func([]json.RawMessage) (any, error) { return v, nil })
}

// HandleCall routes eth_call to contract `to` with 4-byte selector sel.
func (s *Server) HandleCall(to common.Address, sel []byte, h CallHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[callKey(to, sel)] = h
}

// Count reports how many times method was requested.
func (s *Server) Count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method]
}

// Sent returns the raw transactions received so far.
func (s *Server) Sent() []*types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Transaction(nil), s.sent...)
}

func callKey(to common.Address, sel []byte) string {
	return strings.ToLower(to.Hex()) + ":" + hex.EncodeToString(sel)
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.counts[req.Method]++
	h := s.handlers[req.Method]
	s.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if h == nil {
		resp["error"] = map[string]any{"code": -32601, "message": "the method " + req.Method + " does not exist"}
	} else if result, err := h(req.Params); err != nil {
		e, ok := err.(*Error)
		if !ok {
			e = &Error{Code: -32000, Message: err.Error()}
		}
		obj := map[string]any{"code": e.Code, "message": e.Message}
		if e.Data != "" {
			obj["data"] = e.Data
		}
		resp["error"] = obj
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleCall(params []json.RawMessage) (any, error) {
	if len(params) == 0 {
		return nil, &Error{Code: -32602, Message: "missing call object"}
	}
	var arg struct {
		To    *common.Address `json:"to"`
		Input hexutil.Bytes   `json:"input"`
		Data  hexutil.Bytes   `json:"data"`
	}
	if err := json.Unmarshal(params[0], &arg); err != nil {
		return nil, &Error{Code: -32602, Message: err.Error()}
	}
	input := arg.Input
	if len(input) == 0 {
		input = arg.Data
	}
	if arg.To == nil || len(input) < 4 {
		return nil, Revert("", nil)
	}

	s.mu.Lock()
	h := s.calls[callKey(*arg.To, input[:4])]
	s.mu.Unlock()
	if h == nil {
		return nil, &Error{Code: -32000, Message: "execution reverted"}
	}
	out, err := h(input)
	if err != nil {
		return nil, err
	}
	return hexutil.Encode(out), nil
}

func (s *Server) handleSendRaw(params []json.RawMessage) (any, error) {
	var raw hexutil.Bytes
	if len(params) == 0 || json.Unmarshal(params[0], &raw) != nil {
		return nil, &Error{Code: -32602, Message: "invalid raw transaction"}
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, &Error{Code: -32602, Message: err.Error()}
	}
	s.mu.Lock()
	s.sent = append(s.sent, tx)
	s.mu.Unlock()
	return tx.Hash().Hex(), nil
}

// Word left-pads v into a 32-byte ABI word.
func Word(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

// Bool encodes an ABI bool.
func Bool(b bool) []byte {
	if b {
		return Word(big.NewInt(1))
	}
	return Word(big.NewInt(0))
}

// Header is a minimal block header. A nil baseFee omits the London field.
func Header(number uint64, baseFee *big.Int) map[string]any {
	h := map[string]any{
		"number":           hexutil.EncodeUint64(number),
		"hash":             "0x0000000000000000000000000000000000000000000000000000000000000001",
		"parentHash":       "0x0000000000000000000000000000000000000000000000000000000000000002",
		"sha3Uncles":       "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
		"timestamp":        "0x5f5e1000",
		"miner":            "0x0000000000000000000000000000000000000000",
		"gasLimit":         "0x1c9c380",
		"gasUsed":          "0x0",
		"difficulty":       "0x0",
		"extraData":        "0x",
		"mixHash":          "0x0000000000000000000000000000000000000000000000000000000000000000",
		"nonce":            "0x0000000000000000",
		"stateRoot":        "0x0000000000000000000000000000000000000000000000000000000000000000",
		"receiptsRoot":     "0x0000000000000000000000000000000000000000000000000000000000000000",
		"transactionsRoot": "0x0000000000000000000000000000000000000000000000000000000000000001",
		"logsBloom":        "0x" + strings.Repeat("00", 256),
	}
	if baseFee != nil {
		h["baseFeePerGas"] = hexutil.EncodeBig(baseFee)
	}
	return h
}

// Receipt is a mined receipt for hash with the given status.
func Receipt(hash common.Hash, status uint64) map[string]any {
	return map[string]any{
		"transactionHash":   hash.Hex(),
		"transactionIndex":  "0x0",
		"blockHash":         "0x0000000000000000000000000000000000000000000000000000000000000003",
		"blockNumber":       "0x1001",
		"cumulativeGasUsed": "0x5208",
		"gasUsed":           "0x5208",
		"effectiveGasPrice": "0x3b9aca00",
		"logs":              []any{},
		"logsBloom":         "0x" + strings.Repeat("00", 256),
		"status":            hexutil.EncodeUint64(status),
		"type":              "0x2",
	}
}
