package dbf_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dbf-pipeline/pkg/dbf"
	"github.com/LENAX/dbf-pipeline/pkg/dbf/dbftest"
)

func readAll(t *testing.T, r dbf.RecordReader) []dbf.Record {
	t.Helper()
	var out []dbf.Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestReader_TypedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "certificado.dbf")
	dbftest.MustWrite(t, path, dbftest.Table{
		Fields: []dbftest.Field{
			dbftest.Char("ANO_EJE", 4),
			dbftest.Numeric("SEC_EJEC", 6, 0),
			dbftest.Numeric("MONTO", 12, 2),
			dbftest.Logical("ACTIVO"),
			dbftest.Date("FECHA_DOC"),
		},
		Rows: [][]any{
			{"2024", 1137, 1500.25, true, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)},
			{"2025", nil, nil, nil, nil},
		},
	})

	r, err := dbf.Open(path, dbf.Options{})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 2, r.NumRecords())
	require.Len(t, r.Fields(), 5)

	records := readAll(t, r)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "2024", first["ANO_EJE"])
	assert.Equal(t, int64(1137), first["SEC_EJEC"])
	assert.InDelta(t, 1500.25, first["MONTO"], 0.0001)
	assert.Equal(t, true, first["ACTIVO"])
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), first["FECHA_DOC"])

	second := records[1]
	assert.Equal(t, "2025", second["ANO_EJE"])
	assert.Nil(t, second["SEC_EJEC"])
	assert.Nil(t, second["MONTO"])
	assert.Nil(t, second["ACTIVO"])
	assert.Nil(t, second["FECHA_DOC"])
}

func TestReader_SkipsDeletedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.dbf")
	dbftest.MustWrite(t, path, dbftest.Table{
		Fields:  []dbftest.Field{dbftest.Char("ID", 3)},
		Rows:    [][]any{{"a"}, {"b"}, {"c"}},
		Deleted: []int{1},
	})

	r, err := dbf.Open(path, dbf.Options{})
	require.NoError(t, err)
	defer r.Close()

	records := readAll(t, r)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0]["ID"])
	assert.Equal(t, "c", records[1]["ID"])
}

func TestReader_EmptyFileIsValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.dbf")
	dbftest.MustWrite(t, path, dbftest.Table{
		Fields: []dbftest.Field{dbftest.Char("ANO_EJE", 4)},
	})

	r, err := dbf.Open(path, dbf.Options{})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 0, r.NumRecords())
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_Cp1252Decoding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glosa.dbf")
	dbftest.MustWrite(t, path, dbftest.Table{
		Fields: []dbftest.Field{dbftest.Char("GLOSA", 8)},
		Rows:   [][]any{{[]byte{'A', 'C', 'C', 'I', 0xD3, 'N'}}},
	})

	r, err := dbf.Open(path, dbf.Options{Encoding: "cp1252", DecodeErrors: dbf.DecodeStrict})
	require.NoError(t, err)
	defer r.Close()

	records := readAll(t, r)
	require.Len(t, records, 1)
	assert.Equal(t, "ACCIÓN", records[0]["GLOSA"])
}

func TestReader_DecodePolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dbf")
	dbftest.MustWrite(t, path, dbftest.Table{
		Fields: []dbftest.Field{dbftest.Char("GLOSA", 4)},
		Rows:   [][]any{{[]byte{'A', 0xFF, 'B'}}},
	})

	strict, err := dbf.Open(path, dbf.Options{Encoding: "utf-8", DecodeErrors: dbf.DecodeStrict})
	require.NoError(t, err)
	defer strict.Close()
	_, err = strict.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, dbf.ErrSource)

	replace, err := dbf.Open(path, dbf.Options{Encoding: "utf-8", DecodeErrors: dbf.DecodeReplace})
	require.NoError(t, err)
	defer replace.Close()
	rec, err := replace.Next()
	require.NoError(t, err)
	assert.Equal(t, "A�B", rec["GLOSA"])
}

func TestReader_Cp1252UndefinedBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "undefined.dbf")
	dbftest.MustWrite(t, path, dbftest.Table{
		Fields: []dbftest.Field{dbftest.Char("GLOSA", 4)},
		Rows:   [][]any{{[]byte{'A', 0x81, 0x80, 'B'}}},
	})

	strict, err := dbf.Open(path, dbf.Options{Encoding: "cp1252", DecodeErrors: dbf.DecodeStrict})
	require.NoError(t, err)
	defer strict.Close()
	_, err = strict.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, dbf.ErrSource)

	replace, err := dbf.Open(path, dbf.Options{Encoding: "cp1252", DecodeErrors: dbf.DecodeReplace})
	require.NoError(t, err)
	defer replace.Close()
	rec, err := replace.Next()
	require.NoError(t, err)
	assert.Equal(t, "A\uFFFD€B", rec["GLOSA"])
}

func TestReader_Latin1IsNotWindows1252(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latin1.dbf")
	dbftest.MustWrite(t, path, dbftest.Table{
		Fields: []dbftest.Field{dbftest.Char("GLOSA", 2)},
		Rows:   [][]any{{[]byte{0x80, 0xE9}}},
	})

	r, err := dbf.Open(path, dbf.Options{Encoding: "iso-8859-1", DecodeErrors: dbf.DecodeStrict})
	require.NoError(t, err)
	defer r.Close()
	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "\u0080é", rec["GLOSA"])
}

func TestReader_MissingFile(t *testing.T) {
	_, err := dbf.Open(filepath.Join(t.TempDir(), "missing.dbf"), dbf.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, dbf.ErrSource)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReader_MalformedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.dbf")
	require.NoError(t, os.WriteFile(path, []byte{0x03, 0x01, 0x02}, 0644))

	_, err := dbf.Open(path, dbf.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, dbf.ErrSource)
}

func TestReader_TruncatedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truncated.dbf")
	data, err := dbftest.Table{
		Fields: []dbftest.Field{dbftest.Char("ID", 10)},
		Rows:   [][]any{{"abcdefghij"}},
	}.Encode()
	require.NoError(t, err)
	// 截掉EOF标记和记录尾部
	require.NoError(t, os.WriteFile(path, data[:len(data)-5], 0644))

	r, err := dbf.Open(path, dbf.Options{})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, dbf.ErrSource)
}

func TestReader_HeaderOverstatesRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overstated.dbf")
	dbftest.MustWrite(t, path, dbftest.Table{
		Fields:          []dbftest.Field{dbftest.Char("ID", 2)},
		DeclaredRecords: 3,
	})

	r, err := dbf.Open(path, dbf.Options{})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 3, r.NumRecords())
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_ReopenRestartsSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fase.dbf")
	dbftest.MustWrite(t, path, dbftest.Table{
		Fields: []dbftest.Field{dbftest.Char("ID", 1)},
		Rows:   [][]any{{"1"}, {"2"}},
	})

	opener := dbf.FileOpener{}
	for i := 0; i < 2; i++ {
		r, err := opener.Open(path, dbf.Options{})
		require.NoError(t, err)
		assert.Len(t, readAll(t, r), 2)
		require.NoError(t, r.Close())
	}
}

func TestLookupEncoding(t *testing.T) {
	assert.NoError(t, dbf.LookupEncoding("cp1252"))
	assert.NoError(t, dbf.LookupEncoding("latin1"))
	assert.NoError(t, dbf.LookupEncoding("utf-8"))
	assert.Error(t, dbf.LookupEncoding("klingon-7"))
}
