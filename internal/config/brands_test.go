package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/callkit/internal/reconcile"
)

const sampleBrands = `
brands:
  - id: acme
    name: Acme Health
    agent_id: agent_acme
    api_key_env: ACME_KEY
    max_field_attempts: 3
    fields:
      - {name: first_name, kind: text, required: true}
      - {name: dob, kind: date_of_birth, required: true}
      - {name: member_id, kind: reference}
  - id: globex
    agent_id: agent_globex
    from_number: "+15550000"
`

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParseBrands(t *testing.T) {
	brands, err := ParseBrands([]byte(sampleBrands), "global", envMap(map[string]string{"ACME_KEY": "acme-secret"}))
	require.NoError(t, err)
	require.Len(t, brands, 2)

	acme := brands[0]
	assert.Equal(t, "acme-secret", acme.APIKey)
	assert.Equal(t, "dob", acme.Fields[1].Kind)
	assert.Equal(t, reconcile.Reconciler{
		Schema: map[string]reconcile.Kind{
			"first_name": reconcile.KindText,
			"dob":        reconcile.KindDateOfBirth,
			"member_id":  reconcile.KindReference,
		},
		MaxAttempts: 3,
	}, acme.Reconciler())

	globex := brands[1]
	assert.Equal(t, "global", globex.APIKey)
	assert.Equal(t, "globex", globex.Name)
}

func TestParseBrandsFallsBackToGlobalKeyWhenEnvEmpty(t *testing.T) {
	brands, err := ParseBrands([]byte(sampleBrands), "global", envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, "global", brands[0].APIKey)
}

func TestParseBrandsRejectsInvalidProfiles(t *testing.T) {
	cases := map[string]string{
		"empty":          `brands: []`,
		"missing id":     "brands:\n  - agent_id: a\n",
		"missing agent":  "brands:\n  - id: x\n",
		"duplicate id":   "brands:\n  - {id: x, agent_id: a}\n  - {id: x, agent_id: b}\n",
		"unknown kind":   "brands:\n  - id: x\n    agent_id: a\n    fields: [{name: f, kind: shoe_size}]\n",
		"dup field":      "brands:\n  - id: x\n    agent_id: a\n    fields: [{name: f}, {name: f}]\n",
		"negative bound": "brands:\n  - {id: x, agent_id: a, max_field_attempts: -1}\n",
		"not yaml":       "brands: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBrands([]byte(doc), "global", envMap(nil))
			assert.Error(t, err)
		})
	}
}

func TestParseBrandsRequiresSomeKey(t *testing.T) {
	_, err := ParseBrands([]byte("brands:\n  - {id: x, agent_id: a, api_key_env: X_KEY}\n"), "", envMap(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "X_KEY")
}

func TestLoadBrandsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brands.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleBrands), 0o600))
	t.Setenv("ACME_KEY", "from-env")

	brands, err := LoadBrands(path, "global")
	require.NoError(t, err)
	assert.Equal(t, "from-env", brands[0].APIKey)

	_, err = LoadBrands(filepath.Join(t.TempDir(), "missing.yaml"), "global")
	assert.Error(t, err)
}
