package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dbf-pipeline/pkg/config"
	"github.com/LENAX/dbf-pipeline/pkg/dbf/dbftest"
	"github.com/LENAX/dbf-pipeline/pkg/storage"
)

func TestApplyOverrides(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	c.Flags().StringVar(&dbfFolder, "dbf-folder", "", "")
	c.Flags().StringVar(&dbType, "db-type", "", "")
	c.Flags().IntVar(&dbPort, "db-port", 0, "")
	c.Flags().IntVar(&workers, "workers", 0, "")
	c.Flags().BoolVar(&failFast, "fail-fast", false, "")
	require.NoError(t, c.Flags().Parse([]string{"--dbf-folder", "/srv/dbf", "--db-type", "mariadb", "--workers", "3"}))

	cfg := config.Default()
	applyOverrides(c, cfg)
	cfg.ApplyDefaults()

	assert.Equal(t, "/srv/dbf", cfg.Pipeline.Source.DBFFolder)
	assert.Equal(t, storage.TypeMySQL, cfg.Pipeline.Destination.Type)
	assert.Equal(t, 3, cfg.Pipeline.Execution.Workers)
	// 未显式传入的参数保持配置值
	assert.Equal(t, 5432, cfg.Pipeline.Destination.Port)
	assert.False(t, cfg.Pipeline.Execution.FailFast)
}

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	folder := filepath.Join(dir, "DATA")
	require.NoError(t, os.MkdirAll(folder, 0755))
	dbPath := filepath.Join(dir, "dest.db")

	db, err := sqlx.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE certificado (ANO_EJE TEXT, CERTIFICADO TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	dbftest.MustWrite(t, filepath.Join(folder, "certificado.dbf"), dbftest.Table{
		Fields: []dbftest.Field{dbftest.Char("ANO_EJE", 4), dbftest.Char("CERTIFICAD", 10)},
		Rows:   [][]any{{"2024", "C-1"}, {"2019", "C-2"}},
	})

	content := fmt.Sprintf(`
dbf-pipeline:
  source:
    dbf_folder: %q
  destination:
    type: sqlite
    dbname: %q
  history:
    enabled: true
    dsn: %q
  tables:
    - name: certificado
      dbf_name: certificado.dbf
      columns: [ANO_EJE, CERTIFICADO]
      field_map:
        CERTIFICADO: CERTIFICAD
      filter:
        all:
          - field: ANO_EJE
            in: ["2024", "2025"]
`, folder, dbPath, filepath.Join(dir, "history.db"))
	path := filepath.Join(dir, "dbf-pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path, dbPath
}

func TestCommands_EndToEnd(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)

	run := func(args ...string) error {
		rootCmd.SetArgs(append(args, "--config", cfgPath))
		return rootCmd.Execute()
	}

	require.NoError(t, run("plan"))
	require.NoError(t, run("run"))

	db, err := sqlx.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM certificado`))
	assert.Equal(t, 1, n)

	// 第二次运行全部跳过，仍然成功
	require.NoError(t, run("run"))
	require.NoError(t, run("history", "list"))
	assert.Error(t, run("history", "show", "no-such-run"))
	require.NoError(t, run("clean"))

	// 源目录中没有文件时加载失败，返回错误
	assert.Error(t, run("run", "--dbf-folder", t.TempDir()))
}
