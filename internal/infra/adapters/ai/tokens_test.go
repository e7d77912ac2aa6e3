//go:build !integration

package ai

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOfflineBpeLoader(t *testing.T) {
	const url = "https://openaipublic.blob.core.windows.net/encodings/cl100k_base.tiktoken"

	t.Run("no dir never fetches", func(t *testing.T) {
		SetTokenizerDir("")
		if _, err := (offlineBpeLoader{}).LoadTiktokenBpe(url); !errors.Is(err, errNoTokenizer) {
			t.Fatalf("expected errNoTokenizer, got %v", err)
		}
		if n := tiktokenCount("offline-test-model", "hello world"); n != 0 {
			t.Errorf("estimate without tokenizer files should be 0, got %d", n)
		}
	})

	t.Run("reads ranks by base name", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "cl100k_base.tiktoken"), []byte("YQ== 0\nYg== 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		SetTokenizerDir(dir)
		defer SetTokenizerDir("")

		ranks, err := (offlineBpeLoader{}).LoadTiktokenBpe(url)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(ranks) != 2 || ranks["a"] != 0 || ranks["b"] != 1 {
			t.Errorf("unexpected ranks %v", ranks)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		SetTokenizerDir(t.TempDir())
		defer SetTokenizerDir("")
		if _, err := (offlineBpeLoader{}).LoadTiktokenBpe(url); !errors.Is(err, errNoTokenizer) {
			t.Fatalf("expected errNoTokenizer, got %v", err)
		}
	})
}

func TestParseBpeRanks_Malformed(t *testing.T) {
	for _, in := range []string{"YQ==", "!!! 1", "YQ== x"} {
		if _, err := parseBpeRanks(bufio.NewScanner(strings.NewReader(in))); err == nil {
			t.Errorf("%q: expected an error", in)
		}
	}
}
