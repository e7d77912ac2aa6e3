package ai

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkoukk/tiktoken-go"
)

var errNoTokenizer = errors.New("ai: tokenizer files not available offline")

var tokenizerDir atomic.Value // string

func init() {
	tokenizerDir.Store("")
	tiktoken.SetBpeLoader(offlineBpeLoader{})
}

// SetTokenizerDir points the token estimate at a directory holding
// *.tiktoken rank files. Encodings are never downloaded; without the files
// the estimate reports 0.
func SetTokenizerDir(dir string) {
	tokenizerDir.Store(dir)
}

// offlineBpeLoader reads rank files by base name from the tokenizer dir.
type offlineBpeLoader struct{}

func (offlineBpeLoader) LoadTiktokenBpe(file string) (map[string]int, error) {
	dir, _ := tokenizerDir.Load().(string)
	if dir == "" {
		return nil, errNoTokenizer
	}
	f, err := os.Open(filepath.Join(dir, path.Base(file)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNoTokenizer, err)
	}
	defer f.Close()
	return parseBpeRanks(bufio.NewScanner(f))
}

// parseBpeRanks reads "<base64 token> <rank>" lines.
func parseBpeRanks(sc *bufio.Scanner) (map[string]int, error) {
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	ranks := make(map[string]int)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		tok, rank, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("bpe: malformed line %q", line)
		}
		raw, err := base64.StdEncoding.DecodeString(tok)
		if err != nil {
			return nil, fmt.Errorf("bpe: token %q: %w", tok, err)
		}
		n, err := strconv.Atoi(rank)
		if err != nil {
			return nil, fmt.Errorf("bpe: rank %q: %w", rank, err)
		}
		ranks[string(raw)] = n
	}
	return ranks, sc.Err()
}

var (
	encMu    sync.Mutex
	encCache = map[string]*tiktoken.Tiktoken{}
)

// tiktokenCount is a best-effort estimate; unknown models use cl100k_base
// and a missing tokenizer reports 0.
func tiktokenCount(mdl, text string) int {
	if text == "" {
		return 0
	}
	encMu.Lock()
	enc, ok := encCache[mdl]
	if !ok {
		var err error
		enc, err = tiktoken.EncodingForModel(mdl)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err != nil {
			enc = nil
		}
		encCache[mdl] = enc
	}
	encMu.Unlock()
	if enc == nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}
