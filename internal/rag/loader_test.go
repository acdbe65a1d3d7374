package rag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadDocumentsTextFiles(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "notes.txt", "Week 1: introduction to analytics")
	writeDoc(t, dir, "faq.md", "## When is the midterm?\nFebruary 28, 2026")

	loader := NewLoader(dir)
	docs, err := loader.LoadDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// 文件名排序保证顺序稳定
	require.Equal(t, filepath.Join(dir, "faq.md"), docs[0].Source)
	require.Equal(t, filepath.Join(dir, "notes.txt"), docs[1].Source)
	require.Contains(t, docs[0].Content, "February 28, 2026")
	require.Equal(t, 0, docs[0].Page)
}

func TestLoadDocumentsSkipsUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "syllabus.txt", "Grading: 40% exams, 60% projects")
	writeDoc(t, dir, "lecture.pptx", "binary-ish slide deck")
	writeDoc(t, dir, "photo.jpg", "not text")

	loader := NewLoader(dir)
	docs, err := loader.LoadDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Contains(t, docs[0].Content, "40% exams")
}

func TestLoadDocumentsSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0755))
	writeDoc(t, dir, "a.txt", "alpha")

	loader := NewLoader(dir)
	docs, err := loader.LoadDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestLoadDocumentsEmptyDir(t *testing.T) {
	loader := NewLoader(t.TempDir())

	_, err := loader.LoadDocuments()
	require.ErrorIs(t, err, ErrNoDocumentsFound)
}

func TestLoadDocumentsOnlyUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "data.csv", "a,b,c")

	loader := NewLoader(dir)
	_, err := loader.LoadDocuments()
	require.ErrorIs(t, err, ErrNoDocumentsFound)
}

func TestLoadDocumentsMissingDir(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "does-not-exist"))

	_, err := loader.LoadDocuments()
	require.ErrorIs(t, err, ErrNoDocumentsFound)
}
