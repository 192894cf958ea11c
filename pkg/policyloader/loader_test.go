package policyloader_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/policyloader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBundleJSON(policyID string) string {
	return `{
		"basis_version": "1.0",
		"policy_id": "` + policyID + `",
		"metadata": {"name": "test bundle", "version": "1.0.0"},
		"constraints": [
			{"id": "no-dangerous-tools", "type": "tool_restriction", "action": "block", "values": ["rm", "dd"]}
		]
	}`
}

func TestLoader_LoadFile_CompilesPolicies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenant-a.json")
	require.NoError(t, os.WriteFile(path, []byte(validBundleJSON("tenant-a-bundle")), 0600))

	loader := policyloader.NewLoader(dir)
	require.NoError(t, loader.LoadFile(path))

	b, ok := loader.GetBundle("tenant-a")
	require.True(t, ok)
	assert.Equal(t, "tenant-a-bundle", b.PolicyID)

	policies := loader.ActivePolicies("tenant-a")
	require.Len(t, policies, 1)
	assert.Equal(t, contracts.EffectDeny, policies[0].Effect)
}

func TestLoader_LoadAll_IgnoresNonBundleFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tenant-a.json"), []byte(validBundleJSON("bundle-a")), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tenant-b.json"), []byte(validBundleJSON("bundle-b")), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignore"), 0600))

	loader := policyloader.NewLoader(dir)
	require.NoError(t, loader.LoadAll())

	assert.ElementsMatch(t, []string{"tenant-a", "tenant-b"}, loader.AllTenants())
}

func TestLoader_UnknownTenantGetsEmptyPolicySet(t *testing.T) {
	loader := policyloader.NewLoader(t.TempDir())
	assert.Empty(t, loader.ActivePolicies("nonexistent"))
}

func TestLoader_OnReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenant-a.json")
	require.NoError(t, os.WriteFile(path, []byte(validBundleJSON("tenant-a-bundle")), 0600))

	loader := policyloader.NewLoader(dir)
	var calledTenant string
	loader.OnReload(func(tenantID string, b contracts.Bundle) {
		calledTenant = tenantID
	})

	require.NoError(t, loader.LoadFile(path))
	assert.Equal(t, "tenant-a", calledTenant)
}
