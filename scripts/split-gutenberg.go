//go:build ignore

// Split raw Project Gutenberg downloads into one corpus document per chapter.
// Usage: go run ./scripts/split-gutenberg.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Book metadata
var books = map[string]struct {
	Title  string
	Author string
	Year   string
}{
	"pride_and_prejudice": {"Pride and Prejudice", "Jane Austen", "1813"},
	"moby_dick":           {"Moby Dick", "Herman Melville", "1851"},
	"great_expectations":  {"Great Expectations", "Charles Dickens", "1861"},
	"origin_of_species":   {"On the Origin of Species", "Charles Darwin", "1859"},
	"tom_sawyer":          {"The Adventures of Tom Sawyer", "Mark Twain", "1876"},
	"jane_eyre":           {"Jane Eyre", "Charlotte Brontë", "1847"},
}

// Chapters longer than this are cut at a sentence end; documents are
// truncated to a few hundred tokens at ingest anyway.
const maxChapterBytes = 8000

var chapterRe = regexp.MustCompile(`(?m)^(Chapter|CHAPTER)\s+([IVX]+|[0-9]+)[\.\]\s]`)

func main() {
	inDir := "testdata/gutenberg"
	outDir := "testdata/corpus"

	files, err := filepath.Glob(filepath.Join(inDir, "*_raw.txt"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error finding files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Println("No raw files found in testdata/gutenberg.")
		os.Exit(1)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", outDir, err)
		os.Exit(1)
	}

	for _, rawFile := range files {
		baseName := strings.TrimSuffix(filepath.Base(rawFile), "_raw.txt")
		meta, ok := books[baseName]
		if !ok {
			fmt.Printf("Skipping unknown book: %s\n", baseName)
			continue
		}

		n, err := splitBook(rawFile, outDir, baseName, meta.Title, meta.Author, meta.Year)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", baseName, err)
			continue
		}
		fmt.Printf("%s: %d chapters\n", baseName, n)
	}

	fmt.Printf("\nDone! Corpus files created in %s/\n", outDir)
}

func splitBook(inPath, outDir, name, title, author, year string) (int, error) {
	content, err := os.ReadFile(inPath)
	if err != nil {
		return 0, fmt.Errorf("reading file: %w", err)
	}

	body := cleanBody(stripBoilerplate(string(content)))
	starts := chapterRe.FindAllStringIndex(body, -1)
	if len(starts) == 0 {
		starts = [][]int{{0, 0}}
	}

	for i, loc := range starts {
		end := len(body)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		chapter := truncateAtSentence(strings.TrimSpace(body[loc[0]:end]), maxChapterBytes)

		outPath := filepath.Join(outDir, fmt.Sprintf("%s_%03d.txt", name, i+1))
		doc := fmt.Sprintf("# Source: https://www.gutenberg.org/\n# Author: %s\n# Title: %s (%s), chapter %d\n\n%s\n",
			author, title, year, i+1, chapter)
		if err := os.WriteFile(outPath, []byte(doc), 0o644); err != nil {
			return i, fmt.Errorf("writing %s: %w", outPath, err)
		}
	}
	return len(starts), nil
}

func stripBoilerplate(text string) string {
	startPatterns := []string{
		"*** START OF THE PROJECT GUTENBERG EBOOK",
		"*** START OF THIS PROJECT GUTENBERG EBOOK",
		"*END*THE SMALL PRINT",
	}
	for _, pattern := range startPatterns {
		if idx := strings.Index(text, pattern); idx != -1 {
			if eol := strings.Index(text[idx:], "\n"); eol != -1 {
				text = text[idx+eol+1:]
			}
			break
		}
	}

	endPatterns := []string{
		"*** END OF THE PROJECT GUTENBERG EBOOK",
		"*** END OF THIS PROJECT GUTENBERG EBOOK",
		"End of Project Gutenberg",
		"End of the Project Gutenberg",
	}
	for _, pattern := range endPatterns {
		if idx := strings.Index(text, pattern); idx != -1 {
			return text[:idx]
		}
	}
	return text
}

// truncateAtSentence cuts text at the first sentence end past limit.
func truncateAtSentence(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	for i := limit; i < len(text)-1 && i < limit+1000; i++ {
		if (text[i] == '.' || text[i] == '!' || text[i] == '?') && (text[i+1] == ' ' || text[i+1] == '\n') {
			return text[:i+1]
		}
	}
	return text[:limit]
}

func cleanBody(text string) string {
	// Normalize line endings
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	// Skip front matter before the first chapter heading.
	if loc := chapterRe.FindStringIndex(text); loc != nil && loc[0] < 50000 {
		text = text[loc[0]:]
	}

	// Remove illustration markers and other formatting artifacts
	illustrationRe := regexp.MustCompile(`\[Illustration[^\]]*\]`)
	text = illustrationRe.ReplaceAllString(text, "")

	// Remove excessive blank lines (more than 2 consecutive)
	multiBlank := regexp.MustCompile(`\n{3,}`)
	text = multiBlank.ReplaceAllString(text, "\n\n")

	// Trim leading/trailing whitespace
	text = strings.TrimSpace(text)

	// Join lines that are part of the same paragraph
	lines := strings.Split(text, "\n")
	var result []string
	var paragraph strings.Builder

	for _, line := range lines {
		line = strings.TrimRight(line, " \t")

		// Skip lines that look like chapter headers or page numbers in the middle
		if isChapterHeader(line) && paragraph.Len() > 0 {
			// Save current paragraph and add chapter header
			result = append(result, paragraph.String())
			paragraph.Reset()
			result = append(result, line)
			continue
		}

		if line == "" {
			// End of paragraph
			if paragraph.Len() > 0 {
				result = append(result, paragraph.String())
				paragraph.Reset()
			}
			continue
		}

		if paragraph.Len() > 0 {
			paragraph.WriteString(" ")
		}
		paragraph.WriteString(line)
	}

	// Don't forget the last paragraph
	if paragraph.Len() > 0 {
		result = append(result, paragraph.String())
	}

	return strings.Join(result, "\n\n")
}

func isChapterHeader(line string) bool {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "CHAPTER ") || strings.HasPrefix(line, "Chapter ") {
		return true
	}
	// Roman numeral chapters
	if matched, _ := regexp.MatchString(`^[IVXLC]+\.?$`, line); matched {
		return true
	}
	return false
}
