package merge

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equities-daily/internal/errors"
	"equities-daily/internal/model"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func at(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func rec(d time.Time, src string, ingested int64, close float64) model.CanonicalRecord {
	return model.CanonicalRecord{
		Date: d, Symbol: "SPY", Open: close, High: close, Low: close, Close: close,
		Volume: 100, Source: src, IngestedAt: at(ingested),
	}
}

func part(records ...model.CanonicalRecord) model.Partition {
	return model.Partition{Symbol: "SPY", Records: records}
}

func TestMerge_ConcreteScenario(t *testing.T) {
	existing := part(rec(day(2024, 1, 2), "stooq", 100, 10.0))
	incoming := []model.CanonicalRecord{
		rec(day(2024, 1, 2), "stooq", 200, 10.5),
		rec(day(2024, 1, 3), "stooq", 200, 11.0),
	}

	got, err := Merge(existing, incoming)
	require.NoError(t, err)
	require.Len(t, got.Records, 2)
	assert.Equal(t, day(2024, 1, 2), got.Records[0].Date)
	assert.Equal(t, 10.5, got.Records[0].Close)
	assert.Equal(t, at(200), got.Records[0].IngestedAt)
	assert.Equal(t, day(2024, 1, 3), got.Records[1].Date)
	assert.Equal(t, 11.0, got.Records[1].Close)
}

func TestMerge_KeepLatest(t *testing.T) {
	older := rec(day(2024, 1, 2), "stooq", 100, 1)
	newer := rec(day(2024, 1, 2), "stooq", 200, 2)

	got, err := Merge(part(older), []model.CanonicalRecord{newer})
	require.NoError(t, err)
	require.Len(t, got.Records, 1)
	assert.Equal(t, 2.0, got.Records[0].Close)

	// a stale incoming row does not override newer history
	got, err = Merge(part(newer), []model.CanonicalRecord{older})
	require.NoError(t, err)
	require.Len(t, got.Records, 1)
	assert.Equal(t, 2.0, got.Records[0].Close)
}

func TestMerge_ProviderCoexistence(t *testing.T) {
	got, err := Merge(
		part(rec(day(2024, 1, 2), "stooq", 100, 1)),
		[]model.CanonicalRecord{rec(day(2024, 1, 2), "yahoo", 100, 1.01)},
	)
	require.NoError(t, err)
	require.Len(t, got.Records, 2)
	assert.Equal(t, "stooq", got.Records[0].Source)
	assert.Equal(t, "yahoo", got.Records[1].Source)
}

func TestMerge_EmptyExisting(t *testing.T) {
	rowB := rec(day(2024, 1, 5), "stooq", 100, 2)
	rowA := rec(day(2024, 1, 4), "stooq", 100, 1)
	rowA.AdjClose = null.FloatFrom(0.9)

	got, err := Merge(model.Partition{Symbol: "SPY"}, []model.CanonicalRecord{rowB, rowA})
	require.NoError(t, err)
	assert.Equal(t, []model.CanonicalRecord{rowA, rowB}, got.Records)
	assert.Equal(t, "SPY", got.Symbol)

	got, err = Merge(model.Partition{}, []model.CanonicalRecord{rowB})
	require.NoError(t, err)
	assert.Equal(t, "SPY", got.Symbol, "symbol taken from incoming")
}

func TestMerge_EmptyBoth(t *testing.T) {
	got, err := Merge(model.Partition{Symbol: "SPY"}, nil)
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestMerge_Idempotent(t *testing.T) {
	existing := part(
		rec(day(2024, 1, 2), "stooq", 100, 10),
		rec(day(2024, 1, 3), "stooq", 100, 11),
	)
	a := []model.CanonicalRecord{
		rec(day(2024, 1, 3), "stooq", 200, 11.5),
		rec(day(2024, 1, 4), "stooq", 200, 12),
		rec(day(2024, 1, 4), "yahoo", 200, 12.1),
	}

	once, err := Merge(existing, a)
	require.NoError(t, err)
	twice, err := Merge(once, a)
	require.NoError(t, err)
	assert.Equal(t, once, twice)

	// merging a subset of already stored rows is a no-op
	again, err := Merge(once, once.Records[:2])
	require.NoError(t, err)
	assert.Equal(t, once, again)
}

func TestMerge_IdempotentFromEmpty(t *testing.T) {
	a := []model.CanonicalRecord{
		rec(day(2024, 1, 4), "yahoo", 200, 12.1),
		rec(day(2024, 1, 4), "stooq", 200, 12),
	}
	once, err := Merge(model.Partition{Symbol: "SPY"}, a)
	require.NoError(t, err)
	twice, err := Merge(once, a)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestMerge_RandomizedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	sources := []string{"stooq", "yahoo"}
	gen := func(n int, ingested int64) []model.CanonicalRecord {
		seen := map[model.RecordKey]bool{}
		var out []model.CanonicalRecord
		for len(out) < n {
			r := rec(day(2024, 1, 1).AddDate(0, 0, rng.Intn(30)), sources[rng.Intn(2)], ingested, rng.Float64()*100)
			if seen[r.Key()] {
				continue
			}
			seen[r.Key()] = true
			out = append(out, r)
		}
		return out
	}

	p := model.Partition{Symbol: "SPY"}
	for run := int64(1); run <= 20; run++ {
		batch := gen(10, run*100)
		var err error
		p, err = Merge(p, batch)
		require.NoError(t, err)

		keys := map[model.RecordKey]bool{}
		for i, r := range p.Records {
			assert.False(t, keys[r.Key()], "duplicate key %s", r.Key())
			keys[r.Key()] = true
			if i > 0 {
				assert.False(t, r.Date.Before(p.Records[i-1].Date), "not sorted at %d", i)
			}
		}
		// every row of the latest batch must survive unchanged
		for _, b := range batch {
			found := false
			for _, r := range p.Records {
				if r.Key() == b.Key() {
					assert.Equal(t, b, r)
					found = true
				}
			}
			assert.True(t, found, "latest row %s lost", b.Key())
		}
	}
}

func TestMerge_RejectsForeignSymbol(t *testing.T) {
	other := rec(day(2024, 1, 2), "stooq", 100, 1)
	other.Symbol = "QQQ"
	_, err := Merge(part(rec(day(2024, 1, 1), "stooq", 100, 1)), []model.CanonicalRecord{other})
	var me *errors.MergeInvariantError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, errors.KindMergeInvariant, errors.KindOf(err))
}

func TestMerge_DuplicatesWithinEmptyPathAreInvariantViolation(t *testing.T) {
	r := rec(day(2024, 1, 2), "stooq", 100, 1)
	_, err := Merge(model.Partition{Symbol: "SPY"}, []model.CanonicalRecord{r, r})
	assert.Equal(t, errors.KindMergeInvariant, errors.KindOf(err))
}

func TestMerge_IncomingDatesAreCoercedBeforeMatching(t *testing.T) {
	existing := part(rec(day(2024, 1, 2), "stooq", 100, 10))

	afternoon := rec(time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC), "stooq", 200, 10.5)
	ny := time.FixedZone("EST", -5*3600)
	nextDay := rec(time.Date(2024, 1, 3, 0, 0, 0, 0, ny), "stooq", 200, 11)
	nextDay.IngestedAt = time.Unix(200, 999).In(ny)

	got, err := Merge(existing, []model.CanonicalRecord{afternoon, nextDay})
	require.NoError(t, err)
	require.Len(t, got.Records, 2)
	assert.Equal(t, day(2024, 1, 2), got.Records[0].Date)
	assert.Equal(t, 10.5, got.Records[0].Close, "newer row replaces the stored one")
	assert.Equal(t, day(2024, 1, 3), got.Records[1].Date)
	assert.Equal(t, at(200), got.Records[1].IngestedAt)
}

func TestMerge_InvalidIncomingIsSchemaError(t *testing.T) {
	bad := rec(day(2024, 1, 3), "stooq", 200, 1)
	bad.Close = math.NaN()

	_, err := Merge(part(rec(day(2024, 1, 2), "stooq", 100, 1)), []model.CanonicalRecord{bad})
	var se *errors.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, errors.KindSchema, errors.KindOf(err), "bad input is not an engine fault")
}

func TestCollapse(t *testing.T) {
	in := []model.CanonicalRecord{
		rec(day(2024, 1, 3), "stooq", 300, 3),
		rec(day(2024, 1, 2), "stooq", 200, 2),
		rec(day(2024, 1, 2), "stooq", 100, 1),
		rec(day(2024, 1, 2), "yahoo", 100, 9),
	}
	out := Collapse(in)
	require.Len(t, out, 3)
	assert.Equal(t, 2.0, out[0].Close)
	assert.Equal(t, "yahoo", out[1].Source)
	assert.Equal(t, 3.0, out[2].Close)
}
