package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpec_EmptyAcceptsAll(t *testing.T) {
	s := AcceptAll()
	assert.True(t, s.Empty())
	assert.True(t, s.Match(map[string]any{}))
	assert.True(t, s.Match(map[string]any{"ANO_EJE": nil}))
}

func TestSpec_CertificadoConditions(t *testing.T) {
	s := And(
		FieldIn("TIPO_CERTI", "2"),
		FieldIn("ESTADO_REG", "A"),
		FieldIn("ANO_EJE", "2024", "2025"),
	)

	records := []map[string]any{
		{"ANO_EJE": "2023", "TIPO_CERTI": "2", "ESTADO_REG": "A"},
		{"ANO_EJE": "2024", "TIPO_CERTI": "2", "ESTADO_REG": "A"},
		{"ANO_EJE": "2024", "TIPO_CERTI": "1", "ESTADO_REG": "A"},
	}

	accepted := 0
	for _, r := range records {
		if s.Match(r) {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.True(t, s.Match(records[1]))
}

func TestSpec_MissingAndNilNeverMatch(t *testing.T) {
	s := And(FieldIn("ANO_EJE", "2024"))
	assert.False(t, s.Match(map[string]any{"OTHER": "2024"}))
	assert.False(t, s.Match(map[string]any{"ANO_EJE": nil}))
}

func TestSpec_NumericValuesCompareByCanonicalForm(t *testing.T) {
	s := And(FieldIn("ANO_EJE", "2024", "2025"))
	assert.True(t, s.Match(map[string]any{"ANO_EJE": int64(2024)}))
	assert.True(t, s.Match(map[string]any{"ANO_EJE": float64(2025)}))
	assert.False(t, s.Match(map[string]any{"ANO_EJE": float64(2024.5)}))
}

func TestCanonical(t *testing.T) {
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{nil, "", false},
		{"A", "A", true},
		{int64(7), "7", true},
		{1500.25, "1500.25", true},
		{true, "true", true},
		{time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), "2024-03-09", true},
	}
	for _, c := range cases {
		got, ok := Canonical(c.in)
		assert.Equal(t, c.ok, ok, "%v", c.in)
		assert.Equal(t, c.want, got, "%v", c.in)
	}
}

func TestSpec_CanonicalKeyIgnoresValueOrder(t *testing.T) {
	a := And(FieldIn("ANO_EJE", "2025", "2024"))
	b := And(FieldIn("ANO_EJE", "2024", "2025", "2024"))
	assert.Equal(t, a.CanonicalKey(), b.CanonicalKey())
	assert.Equal(t, "all", AcceptAll().CanonicalKey())
}

func TestSpec_Validate(t *testing.T) {
	assert.NoError(t, AcceptAll().Validate())
	assert.Error(t, And(Condition{Field: "", In: []string{"x"}}).Validate())
	assert.Error(t, And(Condition{Field: "ANO_EJE"}).Validate())
}
