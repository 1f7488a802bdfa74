package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NethermindEth/eternalgov/config"
)

func TestDAOsCommandExportsRegistry(t *testing.T) {
	out := filepath.Join(t.TempDir(), "daos.yaml")
	var stdout, stderr bytes.Buffer
	RootCmd.SetOut(&stdout)
	RootCmd.SetErr(&stderr)
	RootCmd.SetArgs([]string{"daos", "--out", out})
	t.Cleanup(func() {
		RootCmd.SetArgs(nil)
		daosOut = ""
	})

	require.NoError(t, RootCmd.Execute())

	var daos []config.DAO
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &daos))
	require.Len(t, daos, 4)
	assert.Equal(t, "aave", daos[0].Name)
	assert.Contains(t, stderr.String(), out)

	saved, err := config.LoadRegistry(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"aave", "compound", "makerdao", "uniswap"}, saved.Names())
	uni, ok := saved.Get("uniswap")
	require.True(t, ok)
	assert.Equal(t, "Against", uni.StatusQuo)
}
