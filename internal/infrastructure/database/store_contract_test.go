package database

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"bridge-flow-indexer/internal/domain/entity"
	"bridge-flow-indexer/internal/domain/repository"
)

// day0 is the start of a daily bucket that is also the start of a monthly bucket
const day0 int64 = 1728000000

func bridgeTx(hash string, flowType entity.FlowType, value string, ts int64) *entity.Transaction {
	from := "0x00000000000000000000000000000000000000aa"
	if flowType == entity.FlowTypeOutflow {
		from = entity.ZeroAddress
	}
	return &entity.Transaction{
		Hash:        hash,
		From:        from,
		To:          "0x00000000000000000000000000000000000000bb",
		Value:       value,
		Timestamp:   ts,
		Type:        flowType,
		BlockNumber: uint64(ts - day0),
	}
}

func bucketSums(t *testing.T, ts repository.TimeSeriesRepository, pt entity.PeriodType, id int64) (string, string) {
	t.Helper()
	buckets, err := ts.GetBuckets(context.Background(), pt, id, id)
	if err != nil {
		t.Fatalf("GetBuckets: %v", err)
	}
	if len(buckets) == 0 {
		return "0", "0"
	}
	return buckets[0].InflowAmount.String(), buckets[0].OutflowAmount.String()
}

// runStoreContract exercises the behaviour every storage backend must share
func runStoreContract(t *testing.T, txs repository.TransactionRepository, status repository.SyncStatusRepository, ts repository.TimeSeriesRepository) {
	ctx := context.Background()

	t.Run("aggregation", func(t *testing.T) {
		batch := []*entity.Transaction{
			bridgeTx("0xa1", entity.FlowTypeInflow, "500", day0+10),
			bridgeTx("0xa2", entity.FlowTypeInflow, "1000000000000000000000", day0+20),
			bridgeTx("0xa3", entity.FlowTypeOutflow, "300", day0+3600+5),
		}
		fresh, err := txs.UpsertMany(ctx, batch)
		if err != nil {
			t.Fatalf("UpsertMany: %v", err)
		}
		if len(fresh) != 3 {
			t.Fatalf("fresh = %d, want 3", len(fresh))
		}

		hour := entity.PeriodHourly.PeriodID(day0)
		if in, out := bucketSums(t, ts, entity.PeriodHourly, hour); in != "1000000000000000000500" || out != "0" {
			t.Errorf("hour 0 = %s/%s", in, out)
		}
		if in, out := bucketSums(t, ts, entity.PeriodHourly, hour+1); in != "0" || out != "300" {
			t.Errorf("hour 1 = %s/%s", in, out)
		}
		day := entity.PeriodDaily.PeriodID(day0)
		if in, out := bucketSums(t, ts, entity.PeriodDaily, day); in != "1000000000000000000500" || out != "300" {
			t.Errorf("day = %s/%s", in, out)
		}
		month := entity.PeriodMonthly.PeriodID(day0)
		if in, out := bucketSums(t, ts, entity.PeriodMonthly, month); in != "1000000000000000000500" || out != "300" {
			t.Errorf("month = %s/%s", in, out)
		}
	})

	t.Run("idempotent upsert", func(t *testing.T) {
		again := []*entity.Transaction{
			bridgeTx("0xa1", entity.FlowTypeInflow, "500", day0+10),
			bridgeTx("0xa3", entity.FlowTypeOutflow, "300", day0+3600+5),
		}
		fresh, err := txs.UpsertMany(ctx, again)
		if err != nil {
			t.Fatalf("UpsertMany: %v", err)
		}
		if len(fresh) != 0 {
			t.Errorf("re-upsert inserted %d rows", len(fresh))
		}

		day := entity.PeriodDaily.PeriodID(day0)
		if in, out := bucketSums(t, ts, entity.PeriodDaily, day); in != "1000000000000000000500" || out != "300" {
			t.Errorf("sums changed after re-upsert: %s/%s", in, out)
		}

		page, err := txs.ListPage(ctx, 1, 100)
		if err != nil {
			t.Fatal(err)
		}
		if len(page.Transactions) != 3 {
			t.Errorf("stored rows = %d, want 3", len(page.Transactions))
		}
	})

	t.Run("duplicates inside one batch", func(t *testing.T) {
		dup := bridgeTx("0xb1", entity.FlowTypeOutflow, "7", day0+7200)
		fresh, err := txs.UpsertMany(ctx, []*entity.Transaction{dup, dup})
		if err != nil {
			t.Fatal(err)
		}
		if len(fresh) != 1 {
			t.Errorf("fresh = %d, want 1", len(fresh))
		}
		hour := entity.PeriodHourly.PeriodID(day0 + 7200)
		if _, out := bucketSums(t, ts, entity.PeriodHourly, hour); out != "7" {
			t.Errorf("outflow = %s, want 7", out)
		}
	})

	t.Run("empty upsert", func(t *testing.T) {
		fresh, err := txs.UpsertMany(ctx, nil)
		if err != nil || len(fresh) != 0 {
			t.Errorf("UpsertMany(nil) = %v, %v", fresh, err)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		var batch []*entity.Transaction
		for i := 0; i < 25; i++ {
			batch = append(batch, bridgeTx(fmt.Sprintf("0xc%02d", i), entity.FlowTypeInflow, "1", day0+86400+int64(i)))
		}
		if _, err := txs.UpsertMany(ctx, batch); err != nil {
			t.Fatal(err)
		}
		// 4 earlier rows + 25 new rows
		total := 29

		seen := 0
		var last int64 = 1 << 62
		for page := 1; ; page++ {
			p, err := txs.ListPage(ctx, page, 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(p.Transactions) > 10 {
				t.Fatalf("page %d has %d rows", page, len(p.Transactions))
			}
			for _, tx := range p.Transactions {
				if tx.Timestamp > last {
					t.Errorf("rows not ordered by timestamp desc")
				}
				last = tx.Timestamp
			}
			seen += len(p.Transactions)
			if !p.HasMore {
				break
			}
		}
		if seen != total {
			t.Errorf("paged through %d rows, want %d", seen, total)
		}

		first, err := txs.ListPage(ctx, 1, 1000)
		if err != nil {
			t.Fatal(err)
		}
		if first.Limit != repository.MaxPageLimit {
			t.Errorf("limit = %d, want capped %d", first.Limit, repository.MaxPageLimit)
		}

		if _, err := txs.ListPage(ctx, 0, 10); err == nil {
			t.Error("page 0 must be rejected")
		}
		if _, err := txs.ListPage(ctx, 1<<62, 20); !errors.Is(err, entity.ErrValidation) {
			t.Errorf("overflowing page err = %v, want ErrValidation", err)
		}
	})

	t.Run("address lookup", func(t *testing.T) {
		outflow := entity.FlowTypeOutflow
		got, err := txs.GetByAddress(ctx, repository.TransactionFilter{
			Address: entity.ZeroAddress,
			Limit:   10,
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Errorf("zero address rows = %d, want 2", len(got))
		}

		got, err = txs.GetByAddress(ctx, repository.TransactionFilter{
			Address: "0x00000000000000000000000000000000000000BB",
			Type:    &outflow,
			Limit:   10,
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Errorf("outflow rows to recipient = %d, want 2", len(got))
		}
		for _, tx := range got {
			if tx.Type != entity.FlowTypeOutflow {
				t.Errorf("type filter leaked %s", tx.Type)
			}
		}

		got, err = txs.GetByAddress(ctx, repository.TransactionFilter{
			Address: "0x00000000000000000000000000000000000000aa",
			Limit:   5,
			Offset:  25,
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Errorf("offset window = %d rows, want 2", len(got))
		}
	})

	t.Run("checkpoint is monotonic", func(t *testing.T) {
		for _, block := range []uint64{150, 120, 200, 199} {
			if err := status.AdvanceCheckpoint(ctx, block); err != nil {
				t.Fatal(err)
			}
		}
		cp, err := status.GetCheckpoint(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if cp.LastSyncedBlock != 200 {
			t.Errorf("checkpoint = %d, want 200", cp.LastSyncedBlock)
		}
	})

	t.Run("bad value leaves store untouched", func(t *testing.T) {
		_, err := txs.UpsertMany(ctx, []*entity.Transaction{
			bridgeTx("0xd1", entity.FlowTypeInflow, "1", day0+500000),
			bridgeTx("0xd2", entity.FlowTypeInflow, "not-a-number", day0+500000),
		})
		if err == nil {
			t.Fatal("expected error for malformed value")
		}
		got, err := txs.GetByAddress(ctx, repository.TransactionFilter{Address: "0x00000000000000000000000000000000000000aa", Limit: 100})
		if err != nil {
			t.Fatal(err)
		}
		for _, tx := range got {
			if tx.Hash == "0xd1" {
				t.Error("partial batch was persisted")
			}
		}
	})

	t.Run("sums grow past 256 bits", func(t *testing.T) {
		maxValue := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
		ts0 := day0 + 400*86400
		var batch []*entity.Transaction
		for i := 0; i < 10; i++ {
			batch = append(batch, bridgeTx(fmt.Sprintf("0xe%d", i), entity.FlowTypeInflow, maxValue.String(), ts0+int64(i)))
		}
		if _, err := txs.UpsertMany(ctx, batch); err != nil {
			t.Fatalf("UpsertMany: %v", err)
		}

		want := new(big.Int).Mul(maxValue, big.NewInt(10)).String()
		if in, _ := bucketSums(t, ts, entity.PeriodMonthly, entity.PeriodMonthly.PeriodID(ts0)); in != want {
			t.Errorf("monthly inflow = %s, want %s", in, want)
		}
	})
}
