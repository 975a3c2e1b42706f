package worker

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrEmptyScript is returned when a script contains no words
var ErrEmptyScript = errors.New("script is empty")

// ReadScript returns the text of a .txt or .docx script
func ReadScript(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return readDocx(path)
	default:
		return readText(path)
	}
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	data = []byte(strings.TrimPrefix(string(data), "\ufeff"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	// not UTF-8: treat as Latin-1
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes), nil
}

// readDocx extracts paragraph text from word/document.xml
func readDocx(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		defer rc.Close()
		return docxText(rc)
	}
	return "", errors.New("docx has no word/document.xml")
}

// docxText collects w:t runs, breaking lines at w:p paragraph ends
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(el)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// SplitScript divides text into n segments of roughly equal word count.
// With fewer words than segments, the whole text is reused for the extras.
func SplitScript(text string, n int) ([]string, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, ErrEmptyScript
	}
	if n <= 0 {
		return nil, fmt.Errorf("segment count must be positive, got %d", n)
	}

	segments := make([]string, n)
	for i := 0; i < n; i++ {
		start := i * len(words) / n
		end := (i + 1) * len(words) / n
		if start == end {
			segments[i] = strings.Join(words, " ")
			continue
		}
		segments[i] = strings.Join(words[start:end], " ")
	}
	return segments, nil
}

// SceneTimings spreads n images evenly across total seconds
func SceneTimings(total float64, n int) (timestamps []float64, duration float64) {
	if n <= 0 {
		return nil, 0
	}
	duration = total / float64(n)
	timestamps = make([]float64, n)
	for i := range timestamps {
		timestamps[i] = float64(i) * duration
	}
	return timestamps, duration
}

// ScenePrompt builds the image prompt for one script segment
func ScenePrompt(scene int, character, style, segment string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scene %d: ", scene)
	if character != "" {
		b.WriteString(character)
		b.WriteString(", ")
	}
	if style == "" {
		style = "Photorealistic"
	}
	b.WriteString(style)
	b.WriteString(" style. ")
	b.WriteString(segment)
	return b.String()
}
