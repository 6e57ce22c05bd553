package validation_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequiredAndTypes(t *testing.T) {
	v := validation.NewSchemaValidator()

	ok, errs := v.Validate("folio", map[string]interface{}{
		"partner": models.Ref(models.Partner, 1),
		"state":   "confirm",
	})
	assert.True(t, ok, errs)

	ok, errs = v.Validate("folio", map[string]interface{}{
		"state": "sale",
	})
	assert.False(t, ok)
	assert.Contains(t, errs, "missing required field: partner")
	assert.Contains(t, errs, "field state: value sale not in allowed enum values")

	ok, errs = v.Validate("payment", map[string]interface{}{
		"journal": models.Ref(models.Folio, 3),
		"amount":  -5.0,
	})
	assert.False(t, ok)
	assert.Contains(t, errs, "field journal: references folio, want journal")
	assert.Contains(t, errs, "field amount: value too small (min 0)")

	ok, errs = v.Validate("invoice", map[string]interface{}{
		"partner":  models.Ref(models.Partner, 1),
		"payments": []interface{}{models.Ref(models.Payment, 2)},
		"number":   12,
	})
	assert.True(t, ok, errs)

	ok, errs = v.Validate("partner", map[string]interface{}{"name": 7})
	assert.False(t, ok)
	assert.Contains(t, errs, "field name: expected type string, got integer")

	ok, _ = v.Validate("unknown_entity", map[string]interface{}{})
	assert.True(t, ok)
}

func TestLoadSchemaDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partner.json"),
		[]byte(`{"required": ["name", "email"]}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0644))

	v := validation.NewSchemaValidator()
	require.NoError(t, v.LoadSchemaDir(dir))
	require.NoError(t, v.LoadSchemaDir(filepath.Join(dir, "missing")))

	ok, errs := v.Validate("partner", map[string]interface{}{"name": "Ana"})
	assert.False(t, ok)
	assert.Equal(t, []string{"missing required field: email"}, errs)
	assert.True(t, v.HasSchema("invoice"))
}

func TestNoOpValidator(t *testing.T) {
	var v validation.Validator = validation.NoOpValidator{}
	ok, errs := v.Validate("partner", nil)
	assert.True(t, ok)
	assert.Empty(t, errs)
	assert.False(t, v.HasSchema("partner"))
}
