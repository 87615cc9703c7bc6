package pipeline

import (
	"github.com/LENAX/dbf-pipeline/pkg/config"
	"github.com/LENAX/dbf-pipeline/pkg/filter"
)

// TableSpec 一张目标表的加载规格（对外导出）
type TableSpec struct {
	// Name 目标表，可带schema前缀
	Name string
	// DBFName 源文件名，相对 dbf_folder
	DBFName string
	// Columns 目标列顺序
	Columns []string
	// FieldMap 目标列 -> 源字段
	FieldMap map[string]string
	// Truncate 为nil时默认清表
	Truncate *bool
	Filter   filter.Spec
}

// ShouldTruncate 是否在加载前清空目标表
func (s TableSpec) ShouldTruncate() bool {
	return s.Truncate == nil || *s.Truncate
}

// FromConfig 将配置中的表定义转换为加载规格
func FromConfig(tables []config.TableConfig) []TableSpec {
	specs := make([]TableSpec, 0, len(tables))
	for _, t := range tables {
		specs = append(specs, TableSpec{
			Name:     t.Name,
			DBFName:  t.DBFName,
			Columns:  t.Columns,
			FieldMap: t.FieldMap,
			Truncate: t.Truncate,
			Filter:   t.Filter,
		})
	}
	return specs
}

// ToConfig 将加载规格转换回配置表定义，用于统一校验
func ToConfig(specs []TableSpec) []config.TableConfig {
	tables := make([]config.TableConfig, 0, len(specs))
	for _, s := range specs {
		tables = append(tables, config.TableConfig{
			Name:     s.Name,
			DBFName:  s.DBFName,
			Columns:  s.Columns,
			FieldMap: s.FieldMap,
			Truncate: s.Truncate,
			Filter:   s.Filter,
		})
	}
	return tables
}

// recentYears 只加载这两个预算年度
var recentYears = filter.FieldIn("ANO_EJE", "2024", "2025")

// DefaultTables 内置的SIAF表注册表
// 未在配置中声明 tables 时使用
func DefaultTables() []TableSpec {
	return []TableSpec{
		{
			Name:    "bytsscom_bytsiaf.certificado",
			DBFName: "certificado.dbf",
			Columns: []string{
				"ANO_EJE", "CERTIFICADO", "SEC_EJEC", "TIPO_CERTIFICADO", "ESTADO_REGISTRO",
				"COD_ERROR", "COD_MENSA", "ESTADO_ENVIO",
			},
			FieldMap: map[string]string{
				"CERTIFICADO":      "CERTIFICAD",
				"TIPO_CERTIFICADO": "TIPO_CERTI",
				"ESTADO_REGISTRO":  "ESTADO_REG",
				"ESTADO_ENVIO":     "ESTADO_ENV",
			},
			Filter: filter.And(
				filter.FieldIn("TIPO_CERTI", "2"),
				filter.FieldIn("ESTADO_REG", "A"),
				recentYears,
			),
		},
		{
			Name:    "bytsscom_bytsiaf.certificado_fase",
			DBFName: "certificado_fase.dbf",
			Columns: []string{
				"ANO_EJE", "SEC_EJEC", "CERTIFICADO", "SECUENCIA", "SECUENCIA_PADRE", "FUENTE_FINANC", "ETAPA",
				"TIPO_ID", "RUC", "ES_COMPROMISO", "MONTO", "MONTO_COMPROMETIDO", "MONTO_NACIONAL", "GLOSA",
				"ESTADO_REGISTRO", "COD_ERROR", "COD_MENSA", "ESTADO_ENVIO", "SALDO_NACIONAL",
				"IND_ANULACION", "TIPO_FINANCIAMIENTO", "TIPO_OPERACION", "SEC_AREA",
			},
			FieldMap: map[string]string{
				"CERTIFICADO":         "CERTIFICAD",
				"SECUENCIA_PADRE":     "SECUENCIA_",
				"FUENTE_FINANC":       "FUENTE_FIN",
				"ES_COMPROMISO":       "ES_COMPROM",
				"MONTO_COMPROMETIDO":  "MONTO_COMP",
				"MONTO_NACIONAL":      "MONTO_NACI",
				"ESTADO_REGISTRO":     "ESTADO_REG",
				"ESTADO_ENVIO":        "ESTADO_ENV",
				"SALDO_NACIONAL":      "SALDO_NACI",
				"IND_ANULACION":       "IND_ANULAC",
				"TIPO_FINANCIAMIENTO": "TIPO_FINAN",
				"TIPO_OPERACION":      "TIPO_OPERA",
			},
			Filter: filter.And(recentYears),
		},
		{
			Name:    "bytsscom_bytsiaf.certificado_secuencia",
			DBFName: "certificado_secuencia.dbf",
			Columns: []string{
				"ANO_EJE", "SEC_EJEC", "CERTIFICADO", "SECUENCIA", "CORRELATIVO", "COD_DOC", "NUM_DOC", "FECHA_DOC",
				"ESTADO_REGISTRO", "ESTADO_ENVIO", "IND_CERTIFICACION", "ESTADO_REGISTRO2", "ESTADO_ENVIO2",
				"MONTO", "MONTO_COMPROMETIDO", "MONTO_NACIONAL", "MONEDA", "TIPO_CAMBIO", "COD_ERROR", "COD_MENSA",
				"TIPO_REGISTRO", "FECHA_BD_ORACLE", "ESTADO_CTB", "SECUENCIA_SOLICITUD", "FECHA_CREACION_CLT",
				"FECHA_MODIFICACION_CLT", "FLG_INTERFASE",
			},
			FieldMap: map[string]string{
				"CERTIFICADO":            "CERTIFICAD",
				"CORRELATIVO":            "CORRELATIV",
				"MONTO_COMPROMETIDO":     "MONTO_COMP",
				"MONTO_NACIONAL":         "MONTO_NACI",
				"ESTADO_REGISTRO":        "ESTADO_REG",
				"ESTADO_ENVIO":           "ESTADO_ENV",
				"IND_CERTIFICACION":      "IND_CERTIF",
				"TIPO_CAMBIO":            "TIPO_CAMBI",
				"TIPO_REGISTRO":          "TIPO_REGIS",
				"FECHA_BD_ORACLE":        "FECHA_BD_O",
				"FECHA_CREACION_CLT":     "FECHA_CREA",
				"FECHA_MODIFICACION_CLT": "FECHA_MODI",
			},
			Filter: filter.And(recentYears),
		},
		{
			Name:    "bytsscom_bytsiaf.certificado_meta",
			DBFName: "certificado_meta.dbf",
			Columns: []string{
				"ANO_EJE", "SEC_EJEC", "CERTIFICADO", "SECUENCIA", "CORRELATIVO", "ID_CLASIFICADOR", "SEC_FUNC",
				"MONTO", "MONTO_COMPROMETIDO", "MONTO_NACIONAL", "ESTADO_REGISTRO", "COD_ERROR", "COD_MENSA",
				"ESTADO_ENVIO", "MONTO_NACIONAL_AJUSTE", "SYS_COD_CLASIF", "SYS_ID_CLASIFICADOR",
			},
			FieldMap: map[string]string{
				"CERTIFICADO":           "CERTIFICAD",
				"CORRELATIVO":           "CORRELATIV",
				"MONTO_COMPROMETIDO":    "MONTO_COMP",
				"MONTO_NACIONAL":        "MONTO_NACI",
				"ESTADO_REGISTRO":       "ESTADO_REG",
				"ESTADO_ENVIO":          "ESTADO_ENV",
				"ID_CLASIFICADOR":       "ID_CLASIFI",
				"MONTO_NACIONAL_AJUSTE": "MONTO_NAC2",
			},
			Filter: filter.And(recentYears),
		},
		{
			Name:    "bytsscom_bytsiaf.expediente_fase",
			DBFName: "expediente_fase.dbf",
			Columns: []string{
				"ANO_EJE", "SEC_EJEC", "EXPEDIENTE", "CICLO", "FASE", "SECUENCIA", "SECUENCIA_PADRE", "SECUENCIA_ANTERIOR",
				"MES_CTB", "MONTO_NACIONAL", "MONTO_SALDO", "ORIGEN", "FUENTE_FINANC", "MEJOR_FECHA", "TIPO_ID", "RUC",
				"TIPO_PAGO", "TIPO_RECURSO", "TIPO_COMPROMISO", "ORGANISMO", "PROYECTO", "ESTADO", "ESTADO_ENVIO",
				"ARCHIVO", "TIPO_GIRO", "TIPO_FINANCIAMIENTO", "COD_DOC_REF", "FECHA_DOC_REF", "NUM_DOC_REF",
				"CERTIFICADO", "CERTIFICADO_SECUENCIA", "SEC_EJEC_RUC",
			},
			FieldMap: map[string]string{
				"SECUENCIA_PADRE":       "SECUENCIA2",
				"SECUENCIA_ANTERIOR":    "SECUENCIA_",
				"MONTO_NACIONAL":        "MONTO_NACI",
				"MONTO_SALDO":           "MONTO_SALD",
				"FUENTE_FINANC":         "FUENTE_FIN",
				"MEJOR_FECHA":           "MEJOR_FECH",
				"TIPO_RECURSO":          "TIPO_RECUR",
				"TIPO_COMPROMISO":       "TIPO_COMPR",
				"TIPO_FINANCIAMIENTO":   "TIPO_FINAN",
				"COD_DOC_REF":           "COD_DOC_RE",
				"FECHA_DOC_REF":         "FECHA_DOC_",
				"NUM_DOC_REF":           "NUM_DOC_RE",
				"CERTIFICADO":           "CERTIFICAD",
				"CERTIFICADO_SECUENCIA": "CERTIFICA2",
				"SEC_EJEC_RUC":          "SEC_EJEC_R",
			},
			Filter: filter.And(recentYears),
		},
	}
}
