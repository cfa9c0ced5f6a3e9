package universe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equities-daily/internal/errors"
)

const sample = `
regions:
  us:
    etfs: [SPY, QQQM]
    sectors:
      - xlk
      - SPY
  europe:
    broad: [VGK]
  empty:
symbol_mapping:
  stooq:
    SPY: spy.us
    QQQM: qqqm.us
    xlk: xlk.us
`

func TestSymbols_DocumentOrderDeduped(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	syms, invalid := cfg.Symbols()
	assert.Equal(t, []string{"SPY", "QQQM", "XLK", "VGK"}, syms)
	assert.Empty(t, invalid)
}

func TestSymbols_InvalidEntriesAreKept(t *testing.T) {
	cfg, err := Parse([]byte(`regions: {us: [SPY, QQQM], idx: ["^spx"], long: [ABCDEFGHIJKL], odd: ['bad sym', '../etc', spy]}`))
	require.NoError(t, err)
	syms, invalid := cfg.Symbols()
	assert.Equal(t, []string{"SPY", "QQQM", "^SPX", "ABCDEFGHIJKL", "BAD SYM", "../ETC"}, syms)
	assert.Equal(t, []string{"^SPX", "ABCDEFGHIJKL", "BAD SYM", "../ETC"}, invalid)
}

func TestSymbols_NoRegions(t *testing.T) {
	cfg, err := Parse([]byte("symbol_mapping: {}\n"))
	require.NoError(t, err)
	syms, invalid := cfg.Symbols()
	assert.Empty(t, syms)
	assert.Empty(t, invalid)
}

func TestSymbolMap(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	m := cfg.SymbolMap("stooq")
	assert.Equal(t, 3, m.Len())
	got, err := m.ToProvider("QQQM")
	require.NoError(t, err)
	assert.Equal(t, "qqqm.us", got)
	got, err = m.ToProvider("XLK")
	require.NoError(t, err)
	assert.Equal(t, "xlk.us", got, "mapping keys are sanitized too")

	_, err = m.ToProvider("VGK")
	var mm *errors.MissingMappingError
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, "VGK", mm.Symbol)
	assert.Equal(t, "stooq", mm.Provider)

	_, err = cfg.SymbolMap("yahoo").ToProvider("SPY")
	assert.Equal(t, errors.KindMissingMapping, errors.KindOf(err))

	_, err = m.ToProvider("../ETC")
	var se *errors.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "symbol", se.Field)
	assert.Equal(t, errors.KindSchema, errors.KindOf(err))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "u.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("regions: [unclosed"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	s, ok := Sanitize(" brk.b ")
	assert.True(t, ok)
	assert.Equal(t, "BRK.B", s)
	_, ok = Sanitize("TOOLONGSYMBOL")
	assert.False(t, ok)
	_, ok = Sanitize("")
	assert.False(t, ok)
}
