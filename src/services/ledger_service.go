package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/optionfolio/backend/src/brokerage"
	"github.com/username/optionfolio/backend/src/database"
	"github.com/username/optionfolio/backend/src/logger"
	"github.com/username/optionfolio/backend/src/models"
	"github.com/username/optionfolio/backend/src/parsers"
	"github.com/username/optionfolio/backend/src/processors"
	"github.com/username/optionfolio/backend/src/utils"
)

const (
	// Cache key formats, all keyed per user.
	ckAggregatedPositions = "aggregatedPositions_%d"
	ckTransactionList     = "transactionList_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type ledgerServiceImpl struct {
	broker      *brokerage.Client
	accountID   string
	source      string
	aggregator  processors.PositionAggregator
	reportCache *cache.Cache
}

// NewLedgerService wires the brokerage client, the parser selected by source
// and the position aggregator behind a shared report cache.
func NewLedgerService(broker *brokerage.Client, accountID, source string) LedgerService {
	return &ledgerServiceImpl{
		broker:      broker,
		accountID:   accountID,
		source:      source,
		aggregator:  processors.NewPositionAggregator(),
		reportCache: cache.New(DefaultCacheExpiration, CacheCleanupInterval),
	}
}

func (s *ledgerServiceImpl) SyncTransactions(ctx context.Context, userID int64) (*SyncResult, error) {
	parser, err := parsers.GetParser(s.source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	payload, err := s.broker.FetchTransactions(ctx, s.accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	// Fatal parse errors already carry the parsers.ErrInvalidInput sentinel.
	txs, err := parser.Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Fetched: len(txs)}

	dbTx, err := database.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %v", ErrSyncFailed, err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`
		INSERT INTO transactions (
			user_id, external_id, executed_at, transaction_type, instrument_type,
			action, symbol, quantity, price, value, value_effect, hash_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare insert: %v", ErrSyncFailed, err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		hashID := generateTransactionHash(userID, tx)
		_, err := stmt.ExecContext(ctx,
			userID, tx.ID, tx.ExecutedAt.Format(time.RFC3339), tx.TransactionType,
			tx.InstrumentType, tx.Action, tx.Symbol, tx.Quantity, tx.Price,
			tx.Value, tx.ValueEffect, hashID)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
				result.Duplicates++
				continue
			}
			logger.L.Warn("skipping transaction that failed to insert",
				"userID", userID, "externalID", tx.ID, "error", err)
			result.Skipped++
			continue
		}
		result.Inserted++
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrSyncFailed, err)
	}

	s.InvalidateUserCache(userID)

	if result.Inserted > 0 {
		episodes, err := s.GetAggregatedPositions(userID)
		if err != nil {
			logger.L.Warn("post-sync aggregation failed", "userID", userID, "error", err)
		} else if err := s.persistClosedPositions(userID, episodes); err != nil {
			logger.L.Warn("persisting closed positions failed", "userID", userID, "error", err)
		}
	}

	logger.L.Info("ledger sync finished", "userID", userID,
		"fetched", result.Fetched, "inserted", result.Inserted,
		"duplicates", result.Duplicates, "skipped", result.Skipped)
	return result, nil
}

func (s *ledgerServiceImpl) GetTransactions(userID int64) ([]models.TransactionRecord, error) {
	cacheKey := fmt.Sprintf(ckTransactionList, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		if txs, ok := cached.([]models.TransactionRecord); ok {
			return txs, nil
		}
	}

	txs, err := s.fetchUserTransactions(userID)
	if err != nil {
		return nil, err
	}
	s.reportCache.Set(cacheKey, txs, cache.DefaultExpiration)
	return txs, nil
}

func (s *ledgerServiceImpl) GetAggregatedPositions(userID int64) ([]models.PositionEpisode, error) {
	cacheKey := fmt.Sprintf(ckAggregatedPositions, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		if episodes, ok := cached.([]models.PositionEpisode); ok {
			return episodes, nil
		}
	}

	txs, err := s.fetchUserTransactions(userID)
	if err != nil {
		return nil, err
	}
	episodes := s.aggregator.Aggregate(txs)
	s.reportCache.Set(cacheKey, episodes, cache.DefaultExpiration)
	return episodes, nil
}

func (s *ledgerServiceImpl) InvalidateUserCache(userID int64) {
	s.reportCache.Delete(fmt.Sprintf(ckAggregatedPositions, userID))
	s.reportCache.Delete(fmt.Sprintf(ckTransactionList, userID))
	logger.L.Debug("user report cache invalidated", "userID", userID)
}

func (s *ledgerServiceImpl) fetchUserTransactions(userID int64) ([]models.TransactionRecord, error) {
	rows, err := database.DB.Query(`
		SELECT external_id, executed_at, transaction_type, instrument_type,
		       action, symbol, quantity, price, value, value_effect
		FROM transactions
		WHERE user_id = ?
		ORDER BY executed_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying transactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	var txs []models.TransactionRecord
	for rows.Next() {
		var tx models.TransactionRecord
		var executedAt string
		if err := rows.Scan(&tx.ID, &executedAt, &tx.TransactionType, &tx.InstrumentType,
			&tx.Action, &tx.Symbol, &tx.Quantity, &tx.Price, &tx.Value, &tx.ValueEffect); err != nil {
			return nil, fmt.Errorf("scanning transaction row: %w", err)
		}
		parsed := utils.ParseDate(executedAt)
		if parsed.IsZero() {
			logger.L.Warn("skipping transaction with unparseable date",
				"userID", userID, "externalID", tx.ID, "executedAt", executedAt)
			continue
		}
		tx.ExecutedAt = parsed
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// persistClosedPositions snapshots finished episodes so closed-trade history
// survives a ledger re-import. Open episodes are always derived live.
func (s *ledgerServiceImpl) persistClosedPositions(userID int64, episodes []models.PositionEpisode) error {
	stmt, err := database.DB.Prepare(`
		INSERT OR REPLACE INTO closed_positions (
			user_id, symbol, first_transaction_date, last_transaction_date,
			total_cost, total_proceeds, total_option_premium, realized_pl,
			total_return, return_percentage, days_held, total_transactions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ep := range episodes {
		if ep.IsOpen {
			continue
		}
		_, err := stmt.Exec(userID, ep.Symbol,
			ep.FirstTransactionDate.Format(time.RFC3339),
			ep.LastTransactionDate.Format(time.RFC3339),
			ep.TotalCost, ep.TotalProceeds, ep.TotalOptionPremium, ep.RealizedPL,
			ep.TotalReturn, ep.ReturnPercentage, ep.DaysHeld, ep.TotalTransactions)
		if err != nil {
			return err
		}
	}
	return nil
}

func generateTransactionHash(userID int64, tx models.TransactionRecord) string {
	payload := fmt.Sprintf("%d|%s|%s|%s|%s|%.6f|%.6f",
		userID, tx.ID, tx.ExecutedAt.Format(time.RFC3339), tx.Symbol,
		tx.Action, tx.Quantity, tx.Value)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
