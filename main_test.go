package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franklinjsmith-create/SupplyVerify/config"
	"github.com/franklinjsmith-create/SupplyVerify/registry"
	"github.com/franklinjsmith-create/SupplyVerify/service"
)

func TestCheckOptionsSingleOperation(t *testing.T) {
	res, err := checkOptions{id: "8150000123", products: []string{" ginger", "", "turmeric "}}.operations()
	require.NoError(t, err)
	require.Len(t, res.Operations, 1)
	assert.Equal(t, "Operation 8150000123", res.Operations[0].OperationName)
	assert.Equal(t, []string{"ginger", "turmeric"}, res.Operations[0].Products)
}

func TestCheckOptionsText(t *testing.T) {
	res, err := checkOptions{text: "Acme | 123 | beans\n456"}.operations()
	require.NoError(t, err)
	require.Len(t, res.Operations, 2)
	assert.Equal(t, "Acme", res.Operations[0].OperationName)
	assert.Equal(t, "456", res.Operations[1].ID)
}

func TestCheckTextFlagForms(t *testing.T) {
	usage := checkCmd.Flags().Lookup("text").Usage
	assert.Contains(t, usage, "ID | products")
	assert.Contains(t, usage, "name | ID | products")

	res, err := checkOptions{text: "111\n222 | beans\nAcme | 333 | rice"}.operations()
	require.NoError(t, err)
	require.Len(t, res.Operations, 3)
	assert.Equal(t, "111", res.Operations[0].ID)
	assert.Equal(t, []string{"beans"}, res.Operations[1].Products)
	assert.Equal(t, "Acme", res.Operations[2].OperationName)
}

func TestCheckOptionsFile(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "ops.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("nop_id,products\n123,beans\n"), 0o600))
	res, err := checkOptions{file: csvPath}.operations()
	require.NoError(t, err)
	require.Len(t, res.Operations, 1)

	txtPath := filepath.Join(dir, "ops.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("123"), 0o600))
	_, err = checkOptions{file: txtPath}.operations()
	assert.ErrorContains(t, err, "unsupported file type")

	_, err = checkOptions{file: filepath.Join(dir, "missing.csv")}.operations()
	assert.Error(t, err)
}

func TestNewDocumentSource(t *testing.T) {
	source, closeFn := newDocumentSource(&config.RegistryConfig{Renderer: "http"})
	assert.IsType(t, &registry.HTTPSource{}, source)
	assert.NoError(t, closeFn())

	source, closeFn = newDocumentSource(&config.RegistryConfig{Renderer: "browser"})
	assert.IsType(t, &registry.BrowserSource{}, source)
	assert.NoError(t, closeFn())
}

func TestNewStoreMemory(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeFn, err := newStore(ctx, &cfg.Store)
	require.NoError(t, err)
	assert.IsType(t, &service.MemoryStore{}, store)
	assert.NoError(t, closeFn())
}
