package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalithGihan/opis-service/internal/ingest/ingesttest"
	"github.com/MalithGihan/opis-service/internal/inventory"
)

func TestUnknownCommand(t *testing.T) {
	assert.Equal(t, 2, run(nil))
	assert.Equal(t, 2, run([]string{"frobnicate"}))
	assert.Equal(t, 0, run([]string{"version"}))
}

func TestRunThenAudit(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "work")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	cat := filepath.Join(root, "catalog.csv")
	ingesttest.Touch(t, cat, "Russian,English\nОсновной чертёж,drawing1\n")
	ingesttest.Touch(t, filepath.Join(dir, "drawing1.txt"), strings.Repeat("x\n", 60))
	common := []string{"--dir", dir, "--log-file", filepath.Join(root, "process.log"), "--renderers", "json,markdown"}

	require.Equal(t, 0, run(append([]string{"run", "--catalog", cat}, common...)))
	assert.FileExists(t, filepath.Join(dir, "Основной чертёж.txt"))

	rep, err := inventory.LoadJSON(filepath.Join(dir, "опись.json"))
	require.NoError(t, err)
	require.Len(t, rep.Entries, 1)
	assert.Equal(t, 2, rep.Entries[0].Pages)

	assert.Equal(t, 0, run(append([]string{"audit"}, common...)))
	require.NoError(t, os.Remove(filepath.Join(dir, "Основной чертёж.txt")))
	assert.Equal(t, 1, run(append([]string{"audit"}, common...)))
}

func TestRunWithBadCatalogFails(t *testing.T) {
	root := t.TempDir()
	code := run([]string{"run", "--dir", root, "--catalog", filepath.Join(root, "nope.xlsx"),
		"--log-file", filepath.Join(root, "process.log")})
	assert.Equal(t, 1, code)
}

func TestInvalidRendererFlag(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, 1, run([]string{"inventory", "--dir", root, "--renderers", "pdf",
		"--log-file", filepath.Join(root, "process.log")}))
}

func TestTextWritesIntoHiddenDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "work")
	ingesttest.Touch(t, filepath.Join(dir, "notes.txt"), "hello")
	common := []string{"--dir", dir, "--log-file", filepath.Join(root, "process.log"), "--renderers", "json"}

	require.Equal(t, 0, run(append([]string{"text"}, common...)))
	assert.FileExists(t, filepath.Join(dir, ".extracted", "extracted_data.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "extracted_data.txt"))

	require.Equal(t, 0, run(append([]string{"inventory"}, common...)))
	rep, err := inventory.LoadJSON(filepath.Join(dir, "опись.json"))
	require.NoError(t, err)
	require.Len(t, rep.Entries, 1)
	assert.Equal(t, "notes.txt", rep.Entries[0].Name)
}
