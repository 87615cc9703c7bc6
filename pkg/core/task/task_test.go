package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dbf-pipeline/pkg/core/marker"
	"github.com/LENAX/dbf-pipeline/pkg/dbf"
	"github.com/LENAX/dbf-pipeline/pkg/dbf/dbftest"
	"github.com/LENAX/dbf-pipeline/pkg/filter"
	"github.com/LENAX/dbf-pipeline/pkg/storage"
	"github.com/LENAX/dbf-pipeline/pkg/storage/sqlite"
)

// failingConnector 在指定步骤注入失败
type failingConnector struct {
	inner  storage.Connector
	failAt string
}

func (c *failingConnector) Connect(ctx context.Context, p storage.ConnectionParams) (storage.Conn, error) {
	if c.failAt == "connect" {
		return nil, errors.New("connection refused")
	}
	conn, err := c.inner.Connect(ctx, p)
	if err != nil {
		return nil, err
	}
	return &failingConn{Conn: conn, failAt: c.failAt}, nil
}

type failingConn struct {
	storage.Conn
	failAt string
}

func (c *failingConn) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := c.Conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, failAt: c.failAt}, nil
}

type failingTx struct {
	storage.Tx
	failAt string
}

func (t *failingTx) BulkInsert(ctx context.Context, table string, buf *storage.RowBuffer) (int64, error) {
	if t.failAt == "bulk" {
		return 0, errors.New("bulk insert rejected")
	}
	return t.Tx.BulkInsert(ctx, table, buf)
}

type destDB struct {
	path   string
	params storage.ConnectionParams
}

func newDestDB(t *testing.T) destDB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dest.db")
	db, err := sqlx.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE certificado (ANO_EJE TEXT, CERTIFICADO TEXT, TIPO_CERTIFICADO TEXT, ESTADO_REGISTRO TEXT)`)
	require.NoError(t, err)
	return destDB{path: path, params: storage.ConnectionParams{Type: storage.TypeSQLite, DBName: path}}
}

func (d destDB) rows(t *testing.T) [][]sql.NullString {
	t.Helper()
	db, err := sqlx.Open("sqlite3", d.path)
	require.NoError(t, err)
	defer db.Close()
	rows, err := db.Query(`SELECT ANO_EJE, CERTIFICADO, TIPO_CERTIFICADO, ESTADO_REGISTRO FROM certificado ORDER BY rowid`)
	require.NoError(t, err)
	defer rows.Close()
	var out [][]sql.NullString
	for rows.Next() {
		row := make([]sql.NullString, 4)
		require.NoError(t, rows.Scan(&row[0], &row[1], &row[2], &row[3]))
		out = append(out, row)
	}
	require.NoError(t, rows.Err())
	return out
}

func (d destDB) seed(t *testing.T, values ...string) {
	t.Helper()
	db, err := sqlx.Open("sqlite3", d.path)
	require.NoError(t, err)
	defer db.Close()
	for _, v := range values {
		_, err := db.Exec(`INSERT INTO certificado (ANO_EJE, CERTIFICADO) VALUES (?, ?)`, "2019", v)
		require.NoError(t, err)
	}
}

func sqliteConnector() storage.Connector {
	return storage.NewSQLConnector(sqlite.NewSQLiteDialect())
}

func certificadoSpec() LoadSpec {
	return LoadSpec{
		Table:   "certificado",
		Columns: []string{"ANO_EJE", "CERTIFICADO", "TIPO_CERTIFICADO", "ESTADO_REGISTRO"},
		FieldMap: map[string]string{
			"CERTIFICADO":      "CERTIFICAD",
			"TIPO_CERTIFICADO": "TIPO_CERTI",
			"ESTADO_REGISTRO":  "ESTADO_REG",
		},
		Truncate: true,
		Filter: filter.And(
			filter.FieldIn("TIPO_CERTI", "2"),
			filter.FieldIn("ESTADO_REG", "A"),
			filter.FieldIn("ANO_EJE", "2024", "2025"),
		),
	}
}

func writeCertificado(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "certificado.dbf")
	dbftest.MustWrite(t, path, dbftest.Table{
		Fields: []dbftest.Field{
			dbftest.Char("ANO_EJE", 4),
			dbftest.Char("TIPO_CERTI", 1),
			dbftest.Char("ESTADO_REG", 1),
		},
		Rows: [][]any{
			{"2023", "2", "A"},
			{"2024", "2", "A"},
			{"2024", "1", "A"},
		},
	})
	return path
}

func TestIdentity_KeyIsCanonical(t *testing.T) {
	a := Identity{Kind: KindLoad, Params: []Param{
		{Name: "table", Value: "t"},
		{Name: "columns", Value: []string{"B", "A"}},
		{Name: "field_map", Value: map[string]string{"Z": "z", "A": "a"}},
		{Name: "truncate", Value: true},
	}}
	assert.Equal(t, `load(table="t",columns=["B","A"],field_map={"A":"a","Z":"z"},truncate=true)`, a.Key())
}

func TestBulkLoadTask_SameParamsSameIdentity(t *testing.T) {
	conn := storage.ConnectionParams{Type: "sqlite", DBName: "x.db", Password: "one"}
	other := conn
	other.Password = "two"
	src := SourceParams{Path: "DATA/certificado.dbf"}

	a := NewBulkLoadTask(certificadoSpec(), src, conn, nil)
	b := NewBulkLoadTask(certificadoSpec(), src, other, nil)
	assert.Equal(t, Key(a), Key(b))
	assert.NotContains(t, Key(a), "one")

	spec := certificadoSpec()
	spec.Truncate = false
	c := NewBulkLoadTask(spec, src, conn, nil)
	assert.NotEqual(t, Key(a), Key(c))
}

func TestBulkLoadTask_RequiresMatchingExtract(t *testing.T) {
	src := SourceParams{Path: "DATA/certificado.dbf", Encoding: "latin1", DecodeErrors: dbf.DecodeStrict}
	load := NewBulkLoadTask(certificadoSpec(), src, storage.ConnectionParams{}, nil)

	reqs := load.Requires()
	require.Len(t, reqs, 1)
	assert.Equal(t, Key(NewExtractTask(src, nil)), Key(reqs[0]))
	assert.Equal(t, filepath.Clean("DATA/certificado.dbf.ready"), reqs[0].Output().Path)
}

func TestLoadMarkerPath(t *testing.T) {
	got := LoadMarkerPath("DATA/certificado.dbf", "bytsscom_bytsiaf.certificado")
	assert.Equal(t, filepath.Join("DATA", "certificado.dbf.bytsscom_bytsiaf_certificado.done"), got)
}

func TestExtractTask_Readable(t *testing.T) {
	path := writeCertificado(t, t.TempDir())
	res, err := NewExtractTask(SourceParams{Path: path}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), res.Marker)
}

func TestExtractTask_EmptyFileSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.dbf")
	dbftest.MustWrite(t, path, dbftest.Table{Fields: []dbftest.Field{dbftest.Char("ANO_EJE", 4)}})

	_, err := NewExtractTask(SourceParams{Path: path}, nil).Run(context.Background())
	assert.NoError(t, err)
}

func TestExtractTask_HeaderWithoutRecordsWarnsButSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "liar.dbf")
	dbftest.MustWrite(t, path, dbftest.Table{
		Fields:          []dbftest.Field{dbftest.Char("ANO_EJE", 4)},
		DeclaredRecords: 2,
	})

	_, err := NewExtractTask(SourceParams{Path: path}, nil).Run(context.Background())
	assert.NoError(t, err)
}

func TestExtractTask_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.dbf")
	_, err := NewExtractTask(SourceParams{Path: path}, nil).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSource)
	assert.Contains(t, err.Error(), path)

	var taskErr *Error
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, path, taskErr.Path)
}

func TestBulkLoadTask_CertificadoFilterLoadsOneRow(t *testing.T) {
	dest := newDestDB(t)
	path := writeCertificado(t, t.TempDir())

	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	load := NewBulkLoadTask(certificadoSpec(), SourceParams{Path: path}, dest.params, sqliteConnector(),
		WithClock(func() time.Time { return fixed }))

	res, err := load.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.Loaded)

	var m LoadMarker
	require.NoError(t, json.Unmarshal(res.Marker, &m))
	assert.Equal(t, 1, m.LoadedCount)
	assert.Equal(t, 3, m.ProcessedCount)
	assert.Equal(t, "certificado", m.Table)
	assert.Equal(t, path, m.Source)
	assert.True(t, fixed.Equal(m.CompletedAt))

	rows := dest.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024", rows[0][0].String)
	// CERTIFICAD不在源文件中，写入NULL
	assert.False(t, rows[0][1].Valid)
	assert.Equal(t, "2", rows[0][2].String)
	assert.Equal(t, "A", rows[0][3].String)
}

func TestBulkLoadTask_EmptySourceLoadsZero(t *testing.T) {
	dest := newDestDB(t)
	dest.seed(t, "old")
	path := filepath.Join(t.TempDir(), "certificado.dbf")
	dbftest.MustWrite(t, path, dbftest.Table{Fields: []dbftest.Field{dbftest.Char("ANO_EJE", 4)}})

	res, err := NewBulkLoadTask(certificadoSpec(), SourceParams{Path: path}, dest.params, sqliteConnector()).
		Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Loaded)

	var m LoadMarker
	require.NoError(t, json.Unmarshal(res.Marker, &m))
	assert.Equal(t, 0, m.LoadedCount)
	// 清表已提交
	assert.Empty(t, dest.rows(t))
}

func TestBulkLoadTask_NoTruncateAppends(t *testing.T) {
	dest := newDestDB(t)
	dest.seed(t, "old")
	path := writeCertificado(t, t.TempDir())

	spec := certificadoSpec()
	spec.Truncate = false
	spec.Filter = filter.AcceptAll()
	res, err := NewBulkLoadTask(spec, SourceParams{Path: path}, dest.params, sqliteConnector()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Loaded)
	assert.Len(t, dest.rows(t), 4)
}

func TestBulkLoadTask_FailureAfterTruncateRollsBack(t *testing.T) {
	dest := newDestDB(t)
	dest.seed(t, "keep-1", "keep-2")
	path := writeCertificado(t, t.TempDir())

	connector := &failingConnector{inner: sqliteConnector(), failAt: "bulk"}
	res, err := NewBulkLoadTask(certificadoSpec(), SourceParams{Path: path}, dest.params, connector).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDestination)
	assert.Nil(t, res.Marker)
	assert.Contains(t, err.Error(), "table=certificado")

	rows := dest.rows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "keep-1", rows[0][1].String)
}

func TestBulkLoadTask_SourceErrorRollsBack(t *testing.T) {
	dest := newDestDB(t)
	dest.seed(t, "keep")
	path := filepath.Join(t.TempDir(), "missing.dbf")

	_, err := NewBulkLoadTask(certificadoSpec(), SourceParams{Path: path}, dest.params, sqliteConnector()).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSource)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Len(t, dest.rows(t), 1)
}

func TestBulkLoadTask_ConnectFailure(t *testing.T) {
	path := writeCertificado(t, t.TempDir())
	connector := &failingConnector{failAt: "connect"}
	_, err := NewBulkLoadTask(certificadoSpec(), SourceParams{Path: path}, storage.ConnectionParams{}, connector).Run(context.Background())
	assert.ErrorIs(t, err, ErrDestination)
	assert.Equal(t, ErrDestination, KindOf(err))
}

func TestCleanupTask_RemovesStaleMarkersButNotItself(t *testing.T) {
	root := t.TempDir()
	store := marker.NewFileStore()
	stale := []string{
		"certificado.dbf.ready",
		"certificado.dbf.certificado.done",
		"_pipeline_cleaned_20240101000000.marker",
	}
	for _, name := range stale {
		require.NoError(t, store.Write(filepath.Join(root, name), []byte("x")))
	}
	keep := filepath.Join(root, "certificado.dbf")
	require.NoError(t, os.WriteFile(keep, []byte("data"), 0644))

	cleanup := NewCleanupTask(root, StaticRunID, store)
	self := cleanup.Output().Path
	require.NoError(t, store.Write(self, []byte("old")))

	res, err := cleanup.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Contains(t, string(res.Marker), "Cleaned at")

	for _, name := range stale {
		ok, err := store.Exists(filepath.Join(root, name))
		require.NoError(t, err)
		assert.False(t, ok, name)
	}
	ok, _ := store.Exists(self)
	assert.True(t, ok)
	_, err = os.Stat(keep)
	assert.NoError(t, err)
}

type brokenRemoveStore struct {
	*marker.FileStore
}

func (s brokenRemoveStore) Remove(path string) error {
	return &marker.IOError{Op: "remove", Path: path, Err: errors.New("locked")}
}

func TestCleanupTask_RemovalFailuresAreNotFatal(t *testing.T) {
	root := t.TempDir()
	fs := marker.NewFileStore()
	require.NoError(t, fs.Write(filepath.Join(root, "a.dbf.ready"), []byte("ok")))

	_, err := NewCleanupTask(root, "", brokenRemoveStore{fs}).Run(context.Background())
	assert.NoError(t, err)
}

func TestCleanupRunID(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	assert.Equal(t, StaticRunID, CleanupRunID(false, now))
	assert.Equal(t, "20240506070809", CleanupRunID(true, now))

	c := NewCleanupTask("DATA", CleanupRunID(false, now), nil)
	assert.Equal(t, filepath.Join("DATA", "_pipeline_cleaned_static_pipeline_clean.marker"), c.Output().Path)
}
