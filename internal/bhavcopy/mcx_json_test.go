package bhavcopy

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mcxRows = `[
	{"__type":"MCX.Entity.BhavCopy","Date":"02/10/2025","Symbol":"GOLD ","ExpiryDate":"05APR2025",
	 "Open":84500,"High":85123.5,"Low":84210,"Close":85010,"PreviousClose":84400,"Volume":12345,
	 "VolumeInThousands":"123.45","Value":"104567.89","OpenInterest":15432,"DateDisplay":"10 Feb 2025",
	 "InstrumentName":"FUTCOM","StrikePrice":"0","OptionType":"-"},
	{"Date":"02/10/2025","Symbol":"CRUDEOIL","ExpiryDate":"14FEB2025","Open":"6100","High":"6150",
	 "Low":"6050","Close":"bad","PreviousClose":null,"Volume":"","VolumeInThousands":"","Value":0,
	 "OpenInterest":10,"DateDisplay":"","InstrumentName":"OPTFUT","StrikePrice":6200,"OptionType":"CE"},
	{"Date":"not a date","Symbol":"SILVER","ExpiryDate":"05MAR2025","InstrumentName":"FUTCOM"},
	{"Date":"02/10/2025","Symbol":"","ExpiryDate":"05MAR2025","InstrumentName":"FUTCOM"}
]`

func TestMcxStreamReadsRecords(t *testing.T) {
	path := writeFile(t, "mcx.json", `{"d":{"__type":"MCX.Entity.BhavCopyResult","Summary":{"Count":4},"Data":`+mcxRows+`}}`)

	stream, err := OpenMcxJSON(path)
	require.NoError(t, err)
	defer stream.Close()

	rec, ok := stream.Next()
	require.True(t, ok)
	assert.Equal(t, testDate, time.Time(rec.Date))
	assert.Equal(t, "GOLD", rec.Symbol)
	assert.Equal(t, time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC), time.Time(rec.ExpiryDate))
	assert.Equal(t, "85123.5", rec.HighPrice.String())
	assert.Equal(t, int64(12345), *rec.Volume)
	assert.Equal(t, "123.45", rec.VolumeInThousands)
	assert.Equal(t, "104567.89", rec.Value.String())
	assert.True(t, rec.StrikePrice.IsZero())
	assert.Equal(t, "FUTCOM", rec.InstrumentName)
	assert.Equal(t, "10 Feb 2025", rec.DateDisplay)

	rec, ok = stream.Next()
	require.True(t, ok)
	assert.Equal(t, "CRUDEOIL", rec.Symbol)
	assert.Equal(t, "6200", rec.StrikePrice.String())
	assert.Equal(t, "CE", rec.OptionType)
	assert.Equal(t, "6100", rec.OpenPrice.String())
	assert.Nil(t, rec.ClosePrice)
	assert.Nil(t, rec.PreviousClose)
	assert.Nil(t, rec.Volume)
	assert.True(t, rec.Value.IsZero())

	_, ok = stream.Next()
	assert.False(t, ok)
	assert.NoError(t, stream.Err())
	assert.Equal(t, 1, stream.NulledFields())
	assert.Equal(t, 2, stream.Skipped())

	rowErrors := stream.RowErrors()
	require.Len(t, rowErrors, 2)
	assert.Equal(t, 3, rowErrors[0].Line)
	assert.Contains(t, rowErrors[0].Reason, "Date")
	assert.Equal(t, 4, rowErrors[1].Line)
}

func TestMcxStreamDoubleEncoded(t *testing.T) {
	inner, err := json.Marshal(`{"Data":` + mcxRows + `}`)
	require.NoError(t, err)
	path := writeFile(t, "mcx.json", `{"d":`+string(inner)+`}`)

	stream, err := OpenMcxJSON(path)
	require.NoError(t, err)
	defer stream.Close()

	var symbols []string
	for rec, ok := stream.Next(); ok; rec, ok = stream.Next() {
		symbols = append(symbols, rec.Symbol)
	}
	assert.Equal(t, []string{"GOLD", "CRUDEOIL"}, symbols)
}

func TestMcxStreamEmptyData(t *testing.T) {
	stream, err := OpenMcxJSON(writeFile(t, "mcx.json", `{"d":{"Data":[]}}`))
	require.NoError(t, err)
	defer stream.Close()

	_, ok := stream.Next()
	assert.False(t, ok)
	assert.NoError(t, stream.Err())
}

func TestOpenMcxJSONSchemaMismatch(t *testing.T) {
	tests := map[string]string{
		"no d":          `{"data":[]}`,
		"no Data":       `{"d":{"Summary":{}}}`,
		"Data not list": `{"d":{"Data":{}}}`,
		"missing keys":  `{"d":{"Data":[{"Date":"02/10/2025","Symbol":"GOLD"}]}}`,
		"not json":      `<html>Access Denied</html>`,
		"d is number":   `{"d":5}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := OpenMcxJSON(writeFile(t, "mcx.json", content))
			require.Error(t, err)
			assert.Equal(t, KindSchemaMismatch, KindOf(err))
		})
	}
}

func TestMcxStreamTruncated(t *testing.T) {
	path := writeFile(t, "mcx.json", `{"d":{"Data":[{"Date":"02/10/2025","Symbol":"GOLD","ExpiryDate":"05APR2025","InstrumentName":"FUTCOM"},{"Date":`)

	stream, err := OpenMcxJSON(path)
	require.NoError(t, err)
	defer stream.Close()

	_, ok := stream.Next()
	require.True(t, ok)
	_, ok = stream.Next()
	assert.False(t, ok)
	assert.Equal(t, KindSchemaMismatch, KindOf(stream.Err()))
}
