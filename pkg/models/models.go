package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Capability names the kind of signer a session connects through.
type Capability string

const (
	CapabilityInjected Capability = "injected"
	CapabilityRemote   Capability = "remote"
)

// ConnectionStatus is the coarse state of the wallet session.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// ConnectionState is a snapshot of the wallet session.
type ConnectionState struct {
	Status         ConnectionStatus `json:"status"`
	Account        string           `json:"account,omitempty"`
	ChainID        int64            `json:"chain_id,omitempty"`
	CorrectNetwork bool             `json:"correct_network"`
	Capability     Capability       `json:"capability,omitempty"`
	Message        string           `json:"message,omitempty"`
}

// Connected reports whether the session has an account.
func (s ConnectionState) Connected() bool {
	return s.Status == StatusConnected && s.Account != ""
}

// OperationKind names the four on-chain actions.
type OperationKind string

const (
	OpApprove  OperationKind = "Approve"
	OpBuy      OperationKind = "Buy"
	OpClaim    OperationKind = "Claim"
	OpFinalize OperationKind = "Finalize"
)

// OperationStage tracks an operation from submission to outcome.
type OperationStage string

const (
	StageSubmitted OperationStage = "submitted"
	StageConfirmed OperationStage = "confirmed"
	StageSkipped   OperationStage = "skipped"
	StageFailed    OperationStage = "failed"
)

// PendingOperation is published as an operation progresses.
type PendingOperation struct {
	Kind    OperationKind  `json:"kind"`
	Stage   OperationStage `json:"stage"`
	TxHash  string         `json:"tx_hash,omitempty"`
	Message string         `json:"message,omitempty"`
}

// SoldSource records which strategy produced the sold figure.
type SoldSource string

const (
	SoldFromAccessor   SoldSource = "accessor"
	SoldFromInventory  SoldSource = "inventory"
	SoldFromRaisedRate SoldSource = "raised_rate"
	SoldUnknown        SoldSource = "unknown"
)

// StatsSnapshot holds the global sale stats. Sold is null when unknown.
type StatsSnapshot struct {
	Raised     decimal.Decimal     `json:"raised"`
	Sold       decimal.NullDecimal `json:"sold"`
	SoldSource SoldSource          `json:"sold_source"`
	Accessor   string              `json:"accessor,omitempty"`
	Capacity   decimal.Decimal     `json:"capacity"`
	Percent    float64             `json:"percent"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// Position holds the connected account's personal figures.
type Position struct {
	Account        string          `json:"account"`
	PaymentBalance decimal.Decimal `json:"payment_balance"`
	Claimable      decimal.Decimal `json:"claimable"`
	EndTime        int64           `json:"end_time"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// StatsPoint is one sample of the raised history.
type StatsPoint struct {
	Timestamp time.Time
	Raised    float64
}

// LogEntry is one line of the activity log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// RPCLatencyData contains the result of a latency check.
type RPCLatencyData struct {
	RPCURL  string
	Latency time.Duration
	Err     error
}

// GasPriceData contains the current gas price.
type GasPriceData struct {
	Price      *big.Int
	FailedRPCs []string
	Err        error
}

// ChainResult holds test results for the sale chain.
type ChainResult struct {
	Name            string           `json:"name"`
	Symbol          string           `json:"symbol"`
	ConfigChainID   int64            `json:"config_chain_id"`
	RPCs            []RPCResult      `json:"rpcs"`
	Contracts       []ContractResult `json:"contracts,omitempty"`
	Inconsistent    bool             `json:"inconsistent"`
	ChainIDUpdated  bool             `json:"chain_id_updated"`
	ObservedChainID int64            `json:"observed_chain_id,omitempty"`
}

// RPCResult holds test results for a specific RPC URL.
type RPCResult struct {
	URL       string `json:"url"`
	Status    string `json:"status"` // "ok" or "error"
	ChainID   int64  `json:"chain_id,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ContractResult reports whether code exists at a configured address.
type ContractResult struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	HasCode bool   `json:"has_code"`
	Error   string `json:"error,omitempty"`
}

// TestReport holds the results of the configuration test.
type TestReport struct {
	ConfigPath      string       `json:"config_path"`
	ValidStructure  bool         `json:"valid_structure"`
	StructureErrors []string     `json:"structure_errors,omitempty"`
	PhaseCount      int          `json:"phase_count"`
	Chain           *ChainResult `json:"chain,omitempty"`
	ConfigUpdated   bool         `json:"config_updated"`
	SaveError       string       `json:"save_error,omitempty"`
	DryRun          bool         `json:"dry_run"`
}

// TxRequest is a state-changing call handed to a signer.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}
