package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// ErrUnsupportedFileType marks declared file types the extractor cannot
// handle. Callers report it inline for the affected attachment and keep
// processing the rest of the request.
var ErrUnsupportedFileType = errors.New("unsupported file type")

func init() {
	// Load .env file from the current directory
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}
	if key := os.Getenv("UNIDOC_LICENSE_KEY"); key != "" {
		if err := license.SetMeteredKey(key); err != nil {
			fmt.Printf("ERROR: Failed to set Unidoc license key: %v. PDF processing will fail.\n", err)
		}
	}
}

// ExtractText converts attachment bytes into plain text based on the
// declared file type (Slack's `filetype` field). Image types are not handled
// here: they go through the multimodal analysis path instead.
func ExtractText(data []byte, declaredType string) (string, error) {
	switch strings.ToLower(declaredType) {
	case "text", "txt", "md", "markdown":
		return string(data), nil
	case "pdf":
		return extractTextFromPDF(data)
	case "docx":
		return extractTextFromDocx(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, declaredType)
	}
}

// IsImageType reports whether the declared Slack file type is an image the
// vision path can handle.
func IsImageType(declaredType string) bool {
	switch strings.ToLower(declaredType) {
	case "png", "jpg", "jpeg", "gif", "webp":
		return true
	default:
		return false
	}
}

// extractTextFromPDF uses UniPDF to get all text from a PDF document.
func extractTextFromPDF(data []byte) (string, error) {
	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return "", err
		}

		ex, err := extractor.New(page)
		if err != nil {
			return "", err
		}

		text, err := ex.ExtractText()
		if err != nil {
			return "", err
		}
		sb.WriteString(text)
		sb.WriteString("\n\n") // Add space between pages
	}

	return sb.String(), nil
}

// extractTextFromDocx pulls the paragraph text out of word/document.xml.
func extractTextFromDocx(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx archive: %w", err)
	}
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read document.xml: %w", err)
		}
		return parseDocxXML(content)
	}
	return "", fmt.Errorf("docx archive has no word/document.xml")
}

type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

func parseDocxXML(content []byte) (string, error) {
	var doc docxDocument
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("failed to parse document.xml: %w", err)
	}
	var sb strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			sb.WriteString("\n")
		}
		for _, run := range para.Runs {
			for _, t := range run.Text {
				sb.WriteString(t.Content)
			}
		}
	}
	return sb.String(), nil
}
