// Package evm reads ERC-20 Transfer logs straight from a JSON-RPC node.
// It backs the explorer when the explorer API is unavailable.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/observability"
)

// Default configuration values.
const (
	DefaultChunkSize = 5000
	DefaultDecimals  = 18
)

const sourceName = "rpc"

// TransferTopic is the log topic of Transfer(address,address,uint256).
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// LogClient is the subset of ethclient.Client used by Source.
type LogClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Dial connects to a JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return client, nil
}

// Source implements ingestion.TransferSource over eth_getLogs.
type Source struct {
	client    LogClient
	decimals  int
	chunkSize uint64
}

// NewSource creates a log-based transfer source. decimals is reported on
// every transfer since logs do not carry it.
func NewSource(client LogClient, decimals int, chunkSize uint64) *Source {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if decimals < 0 {
		decimals = DefaultDecimals
	}
	return &Source{client: client, decimals: decimals, chunkSize: chunkSize}
}

// FetchTransfers scans [startBlock, latest] in chunks and returns transfers
// in block and log order.
func (s *Source) FetchTransfers(ctx context.Context, contract string, startBlock uint64) ([]*domain.RawTransfer, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address %q", contract)
	}
	token := common.HexToAddress(contract)

	started := time.Now()
	latest, err := s.client.BlockNumber(ctx)
	if err != nil {
		observability.RecordUpstreamError(sourceName, "block_number")
		return nil, fmt.Errorf("latest block: %w", err)
	}

	var (
		transfers  []*domain.RawTransfer
		blockTimes = make(map[uint64]int64)
		decimals   = strconv.Itoa(s.decimals)
	)
	for from := startBlock; from <= latest; from += s.chunkSize {
		to := from + s.chunkSize - 1
		if to > latest {
			to = latest
		}

		logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{token},
			Topics:    [][]common.Hash{{TransferTopic}},
		})
		if err != nil {
			observability.RecordUpstreamError(sourceName, "filter_logs")
			return nil, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
		}

		for _, l := range logs {
			if l.Removed || len(l.Topics) != 3 {
				continue
			}
			ts, ok := blockTimes[l.BlockNumber]
			if !ok {
				header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(l.BlockNumber))
				if err != nil {
					observability.RecordUpstreamError(sourceName, "header")
					return nil, fmt.Errorf("header %d: %w", l.BlockNumber, err)
				}
				ts = int64(header.Time)
				blockTimes[l.BlockNumber] = ts
			}

			transfers = append(transfers, &domain.RawTransfer{
				Hash:            l.TxHash.Hex(),
				BlockNumber:     l.BlockNumber,
				Timestamp:       ts,
				From:            common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
				To:              common.BytesToAddress(l.Topics[2].Bytes()).Hex(),
				ContractAddress: l.Address.Hex(),
				Value:           new(big.Int).SetBytes(l.Data).String(),
				TokenDecimal:    decimals,
			})
		}
	}

	observability.RecordUpstreamCall(sourceName, "get_logs", time.Since(started).Seconds())
	return transfers, nil
}
