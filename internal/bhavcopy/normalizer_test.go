package bhavcopy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// udiffCSV renders a header with every UDiFF column and one line per row,
// each row given as overrides of a valid NSE CM equity line
func udiffCSV(rows ...map[string]string) string {
	base := map[string]string{
		"TradDt": "2025-02-10", "BizDt": "2025-02-10", "Sgmt": "CM", "Src": "NSE",
		"FinInstrmTp": "STK", "FinInstrmId": "1594", "ISIN": "INE009A01021", "TckrSymb": "INFY",
		"SctySrs": "EQ", "FinInstrmNm": "INFOSYS LIMITED", "OpnPric": "1850.00", "HghPric": "1874.55",
		"LwPric": "1840.10", "ClsPric": "1869.40", "LastPric": "1870.00", "PrvsClsgPric": "1848.25",
		"SttlmPric": "1869.40", "TtlTradgVol": "5123456", "TtlTrfVal": "9543210987.65",
		"TtlNbOfTxsExctd": "154321", "SsnId": "F1", "NewBrdLotQty": "1",
	}

	var b strings.Builder
	b.WriteString(strings.Join(udiffColumns, ",") + "\n")
	for _, row := range rows {
		fields := make([]string, len(udiffColumns))
		for i, col := range udiffColumns {
			v, ok := row[col]
			if !ok {
				v = base[col]
			}
			fields[i] = v
		}
		b.WriteString(strings.Join(fields, ",") + "\n")
	}
	return b.String()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBhavStreamReadsRecords(t *testing.T) {
	path := writeFile(t, "bhav.csv", udiffCSV(
		map[string]string{},
		map[string]string{
			"Sgmt": "FO", "FinInstrmTp": "IDO", "FinInstrmId": "35001", "TckrSymb": "NIFTY",
			"XpryDt": "2025-02-27", "FininstrmActlXpryDt": "27-Feb-2025", "StrkPric": "23500", "OptnTp": "CE",
			"OpnIntrst": "123450", "ChngInOpnIntrst": "-2500", "UndrlygPric": "23381.60",
		},
	))

	stream, err := OpenBhavCSV(path)
	require.NoError(t, err)
	defer stream.Close()

	rec, ok := stream.Next()
	require.True(t, ok)
	assert.Equal(t, testDate, time.Time(rec.TradDt))
	assert.Equal(t, "CM", rec.Sgmt)
	assert.Equal(t, "NSE", rec.Src)
	assert.Equal(t, int64(1594), rec.FinInstrmId)
	assert.Equal(t, "INE009A01021", rec.ISIN)
	assert.Equal(t, "1869.4", rec.ClsPric.String())
	assert.Equal(t, int64(5123456), *rec.TtlTradgVol)
	assert.Equal(t, "9543210987.65", rec.TtlTrfVal.String())
	assert.Nil(t, rec.XpryDt)
	assert.Nil(t, rec.StrkPric)
	assert.Nil(t, rec.OpnIntrst)

	rec, ok = stream.Next()
	require.True(t, ok)
	assert.Equal(t, "FO", rec.Sgmt)
	assert.Equal(t, "CE", rec.OptnTp)
	assert.Equal(t, "23500", rec.StrkPric.String())
	require.NotNil(t, rec.XpryDt)
	assert.Equal(t, time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC), time.Time(*rec.XpryDt))
	assert.Equal(t, time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC), time.Time(*rec.FininstrmActlXpryDt))
	assert.Equal(t, int64(-2500), *rec.ChngInOpnIntrst)

	_, ok = stream.Next()
	assert.False(t, ok)
	assert.NoError(t, stream.Err())
	assert.Zero(t, stream.Skipped())
	assert.Zero(t, stream.NulledFields())
}

func TestBhavStreamNullsUnparseableNumbers(t *testing.T) {
	path := writeFile(t, "bhav.csv", udiffCSV(
		map[string]string{"FinInstrmId": "1", "StrkPric": "abc"},
		map[string]string{"FinInstrmId": "2", "StrkPric": "", "OpnPric": "-"},
		map[string]string{"FinInstrmId": "3", "TtlTradgVol": "12.5", "XpryDt": "someday"},
	))

	stream, err := OpenBhavCSV(path)
	require.NoError(t, err)
	defer stream.Close()

	var n int
	for rec, ok := stream.Next(); ok; rec, ok = stream.Next() {
		n++
		assert.Nil(t, rec.StrkPric)
	}
	assert.Equal(t, 3, n)
	// empty and "-" are absent values, not failures
	assert.Equal(t, 3, stream.NulledFields())
	assert.Zero(t, stream.Skipped())
}

func TestBhavStreamSkipsBadRows(t *testing.T) {
	content := udiffCSV(
		map[string]string{"FinInstrmId": "1"},
		map[string]string{"FinInstrmId": "x"},
		map[string]string{"FinInstrmId": "0"},
		map[string]string{"FinInstrmId": "4", "TradDt": "10/02/2025x"},
		map[string]string{"FinInstrmId": "5", "TckrSymb": ""},
	)
	content += "2025-02-10,2025-02-10,CM\n\n"

	stream, err := OpenBhavCSV(writeFile(t, "bhav.csv", content))
	require.NoError(t, err)
	defer stream.Close()

	var ids []int64
	for rec, ok := stream.Next(); ok; rec, ok = stream.Next() {
		ids = append(ids, rec.FinInstrmId)
	}
	assert.Equal(t, []int64{1}, ids)
	assert.NoError(t, stream.Err())
	assert.Equal(t, 5, stream.Skipped())

	rowErrors := stream.RowErrors()
	require.Len(t, rowErrors, 5)
	assert.Equal(t, 3, rowErrors[0].Line)
	assert.Contains(t, rowErrors[0].Reason, "FinInstrmId")
	assert.Contains(t, rowErrors[2].Reason, "TradDt")
	assert.Equal(t, 7, rowErrors[4].Line)
	assert.Contains(t, rowErrors[4].Reason, "fields")
}

func TestBhavStreamHeaderVariants(t *testing.T) {
	content := "\ufeffTradDt, BizDt,Sgmt,Src,FinInstrmId,TckrSymb,ClsPric\n" +
		"10-Feb-2025,10-Feb-2025,CM,BSE,500325,RELIANCE,\"1,234.50\"\n"

	stream, err := OpenBhavCSV(writeFile(t, "bse.csv", content))
	require.NoError(t, err)
	defer stream.Close()

	rec, ok := stream.Next()
	require.True(t, ok)
	assert.Equal(t, testDate, time.Time(rec.TradDt))
	assert.Equal(t, "BSE", rec.Src)
	assert.Equal(t, "1234.5", rec.ClsPric.String())
	assert.Nil(t, rec.OpnPric)
}

func TestOpenBhavCSVSchemaMismatch(t *testing.T) {
	_, err := OpenBhavCSV(writeFile(t, "old.csv", "SYMBOL,SERIES,OPEN,HIGH,LOW,CLOSE\nINFY,EQ,1,2,3,4\n"))
	require.Error(t, err)
	assert.Equal(t, KindSchemaMismatch, KindOf(err))
	assert.Contains(t, err.Error(), "TradDt")

	_, err = OpenBhavCSV(writeFile(t, "empty.csv", ""))
	assert.Equal(t, KindSchemaMismatch, KindOf(err))

	_, err = OpenBhavCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Equal(t, KindFileNotFound, KindOf(err))
}

func TestParseDate(t *testing.T) {
	want := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2025-02-10", "10-Feb-2025", "10-FEB-2025", "10-02-2025", "20250210", "10 Feb 2025", "10FEB2025", "02/10/2025", " 2025-02-10 "} {
		got, err := ParseDate(s)
		if assert.NoError(t, err, s) {
			assert.Equal(t, want, got, s)
		}
	}

	_, err := ParseDate("2025/02/10")
	assert.Error(t, err)
	_, err = ParseDate("")
	assert.Error(t, err)
}

func TestCoercer(t *testing.T) {
	var c coercer

	assert.Equal(t, "1234.5", c.decimal(" 1,234.50 ").String())
	assert.Nil(t, c.decimal(""))
	assert.Nil(t, c.decimal("NA"))
	assert.Nil(t, c.decimal("1.2.3"))

	assert.Equal(t, int64(1200), *c.int64("1200.00"))
	assert.Equal(t, int64(12000), *c.int64("1.2E+4"))
	assert.Nil(t, c.int64(""))
	assert.Nil(t, c.int64("12.5"))

	assert.Nil(t, c.date("-"))
	assert.Nil(t, c.date("tomorrow"))

	assert.Equal(t, 3, c.nulled)
}
