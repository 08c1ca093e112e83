// Package repository contains the repository layer for the Bhavcopy API
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nsvirk/bhavcopyapi/internal/bhavcopy"
	"github.com/nsvirk/bhavcopyapi/internal/models"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/zaplogger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordSource yields records to upsert until it returns false
type RecordSource[T models.Upsertable] interface {
	Next() (T, bool)
}

// UpsertSummary counts what an upsert run did
type UpsertSummary struct {
	Inserted     int64 `json:"inserted"`
	Updated      int64 `json:"updated"`
	Skipped      int64 `json:"skipped"`
	NulledFields int64 `json:"nulled_fields"`
	Batches      int   `json:"batches"`
}

// Upsert writes every record of src in batches of batchSize.
// Each batch commits in its own transaction and each record runs under a savepoint,
// so a failing record is skipped without losing the rest of its batch.
// A transaction-level failure aborts the run with UpsertFailed; batches committed before it stay.
func Upsert[T models.Upsertable](ctx context.Context, db *gorm.DB, src RecordSource[T], batchSize int) (UpsertSummary, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	var summary UpsertSummary
	batch := make([]T, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		counts, err := upsertBatch(ctx, db, batch, summary.Batches)
		if err != nil {
			return err
		}
		summary.Inserted += counts.Inserted
		summary.Updated += counts.Updated
		summary.Skipped += counts.Skipped
		summary.Batches++
		batch = resetBatch(batch)
		return nil
	}

	for {
		rec, ok := src.Next()
		if !ok {
			break
		}
		batch = append(batch, rec)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return summary, err
			}
		}
	}
	if err := flush(); err != nil {
		return summary, err
	}

	return summary, nil
}

// resetBatch empties batch for reuse, dropping its references to committed records
func resetBatch[T any](batch []T) []T {
	clear(batch)
	return batch[:0]
}

func upsertBatch[T models.Upsertable](ctx context.Context, db *gorm.DB, batch []T, index int) (UpsertSummary, error) {
	const op = "upsert"
	var counts UpsertSummary

	fail := func(err error, format string, args ...interface{}) (UpsertSummary, error) {
		e := bhavcopy.NewError(bhavcopy.KindUpsertFailed, op, err, format, args...)
		e.BatchIndex = index
		zaplogger.Error("Batch failed", zaplogger.Fields{
			"batch": index,
			"size":  len(batch),
			"error": err.Error(),
		})
		return UpsertSummary{}, e
	}

	if err := ctx.Err(); err != nil {
		return fail(err, "batch %d cancelled", index)
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fail(tx.Error, "cannot begin batch %d", index)
	}

	now := time.Now()
	for i, rec := range batch {
		sp := fmt.Sprintf("rec_%d", i)
		if err := tx.SavePoint(sp).Error; err != nil {
			tx.Rollback()
			return fail(err, "cannot open savepoint in batch %d", index)
		}

		rec.Stamp(now)
		inserted, err := upsertOne(tx, rec)
		if err != nil {
			if rbErr := tx.RollbackTo(sp).Error; rbErr != nil {
				tx.Rollback()
				return fail(rbErr, "cannot roll back record %d of batch %d", i, index)
			}
			fields := zaplogger.Fields{
				"table":  rec.TableName(),
				"batch":  index,
				"record": i,
				"key":    fmt.Sprint(rec.NaturalKey()),
				"error":  err.Error(),
			}
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				fields["sqlstate"] = pgErr.Code
			}
			zaplogger.Warn("Record skipped", fields)
			counts.Skipped++
			continue
		}

		if err := tx.Exec("RELEASE SAVEPOINT " + sp).Error; err != nil {
			tx.Rollback()
			return fail(err, "cannot release savepoint in batch %d", index)
		}
		if inserted {
			counts.Inserted++
		} else {
			counts.Updated++
		}
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return fail(err, "cannot commit batch %d", index)
	}

	zaplogger.Debug("Batch committed", zaplogger.Fields{
		"batch":    index,
		"inserted": counts.Inserted,
		"updated":  counts.Updated,
		"skipped":  counts.Skipped,
	})
	return counts, nil
}

// upsertOne inserts rec, or refreshes its mutable columns when the natural key already exists
func upsertOne(tx *gorm.DB, rec models.Upsertable) (bool, error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	res = tx.Table(rec.TableName()).Where(rec.NaturalKey()).Updates(rec.RefreshColumns())
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, errors.New("conflicting row not found by natural key")
	}
	return false, nil
}
