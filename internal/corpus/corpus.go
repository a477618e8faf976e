// Package corpus loads plain-text documents and encodes them into the
// separator-delimited token sequences the dataset consumes.
package corpus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrEmpty is returned for a document without sentences.
var ErrEmpty = errors.New("corpus: empty document")

// Header contains metadata parsed from the leading comment block.
type Header struct {
	Source string
	Author string
	Title  string
}

// ParseHeader extracts metadata from leading "# Key: value" lines and
// returns the header and the remaining body. The header is optional.
func ParseHeader(text string) (Header, string, error) {
	var h Header
	scanner := bufio.NewScanner(strings.NewReader(text))
	bodyStart := len(text)
	lineEnd := 0

	for scanner.Scan() {
		line := scanner.Text()
		lineEnd += len(line) + 1

		if !strings.HasPrefix(line, "#") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			bodyStart = lineEnd - len(line) - 1
			break
		}

		line = strings.TrimPrefix(line, "# ")
		if value, ok := strings.CutPrefix(line, "Source:"); ok {
			h.Source = strings.TrimSpace(value)
		} else if value, ok := strings.CutPrefix(line, "Author:"); ok {
			h.Author = strings.TrimSpace(value)
		} else if value, ok := strings.CutPrefix(line, "Title:"); ok {
			h.Title = strings.TrimSpace(value)
		}
	}

	if err := scanner.Err(); err != nil {
		return Header{}, "", fmt.Errorf("scan header: %w", err)
	}

	return h, strings.TrimSpace(text[bodyStart:]), nil
}

// Sentence is a sentence of a document body with byte offsets.
type Sentence struct {
	Text  string
	Start int
	End   int
}

// Common abbreviations that shouldn't end sentences
var abbreviations = regexp.MustCompile(`(?i)\b(Mr|Mrs|Ms|Dr|Prof|Sr|Jr|St|vs|etc|i\.e|e\.g|U\.S|U\.K)\.$`)

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\t' || ch == '\r'
}

// ParseSentences splits text at sentence-ending punctuation followed by
// whitespace, skipping common abbreviations. Blank lines also end a
// sentence.
func ParseSentences(text string) []Sentence {
	var sentences []Sentence
	start := 0

	emit := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, Sentence{Text: s, Start: start, End: end})
		}
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]
		paragraph := ch == '\n' && i+1 < len(text) && text[i+1] == '\n'
		if ch != '.' && ch != '?' && ch != '!' && !paragraph {
			continue
		}
		if !paragraph {
			if i+1 < len(text) && !isSpace(text[i+1]) {
				continue
			}
			if ch == '.' && abbreviations.MatchString(text[start:i+1]) {
				continue
			}
		}

		end := i + 1
		if paragraph {
			end = i
		}
		emit(end)

		for i+1 < len(text) && isSpace(text[i+1]) {
			i++
		}
		start = i + 1
	}

	if start < len(text) {
		emit(len(text))
	}
	return sentences
}

// Document is a loaded text file split into sentences.
type Document struct {
	ID        string // filename without extension
	Source    string
	Author    string
	Title     string
	Body      string
	Sentences []Sentence
}

// Texts returns the sentence strings.
func (d *Document) Texts() []string {
	texts := make([]string, len(d.Sentences))
	for i, s := range d.Sentences {
		texts[i] = s.Text
	}
	return texts
}

// LoadDocument loads and splits a text file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	header, body, err := ParseHeader(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	base := filepath.Base(path)
	doc := &Document{
		ID:        strings.TrimSuffix(base, filepath.Ext(base)),
		Source:    header.Source,
		Author:    header.Author,
		Title:     header.Title,
		Body:      body,
		Sentences: ParseSentences(body),
	}
	if len(doc.Sentences) == 0 {
		return nil, fmt.Errorf("%s: %w", base, ErrEmpty)
	}
	return doc, nil
}

// LoadCorpus loads every .txt file in dir, reading up to concurrency files
// at a time. Documents are returned in file name order.
func LoadCorpus(ctx context.Context, dir string, concurrency int) ([]*Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".txt" {
			continue
		}
		names = append(names, entry.Name())
	}
	slices.Sort(names)

	if concurrency <= 0 {
		concurrency = 1
	}
	docs := make([]*Document, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := LoadDocument(filepath.Join(dir, name))
			if err != nil {
				return fmt.Errorf("loading %s: %w", name, err)
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}
