// Package vision implements the Vision PDF Processor (C7): renders a
// scanned bank-statement or financial-statement PDF page by page,
// sends each page image to the Gateway's vision model with a
// structure-extraction prompt, and recovers the model's JSON response
// through the same repair/Hjson fallback chain the teacher uses for
// every LLM JSON output (pkg/core/utils.SmartParse, adapted in
// finsight/pkg/jsonutil). Malformed output triggers exactly one
// re-prompt before the page is marked failed, per spec.md §4.7.
package vision

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"finsight/pkg/apperr"
	"finsight/pkg/jsonutil"
	"finsight/pkg/llm"
	"finsight/pkg/statement"
)

const maxRepromptAttempts = 2 // first attempt + one re-prompt

// PageResult is one page's extracted rows, or an error if the page
// could not be recovered after a re-prompt.
type PageResult struct {
	PageIndex int
	Rows      []statement.Row
	Text      string
	Err       error
}

type pageExtraction struct {
	Rows []rowJSON `json:"rows"`
}

type rowJSON struct {
	Label   string   `json:"label"`
	Current *float64 `json:"current"`
	Prior   *float64 `json:"prior"`
}

const extractionSystemPrompt = `You are a financial-statement extraction assistant. Given an image of one page of a financial document, return ONLY a JSON object of the shape {"rows":[{"label":"...","current":0.0,"prior":0.0}]} listing every labelled line item visible on the page, in order, with its current and prior period numeric values (null if a period's value is not present). Do not include narrative text, headers, or page numbers as rows.`

// RenderPages rasterizes every page of a PDF to PNG bytes. go-fitz is a
// new ecosystem dependency: no corpus repo renders PDF pages to images,
// and the standard library has no PDF support at all (see DESIGN.md).
func RenderPages(raw []byte) ([][]byte, string, error) {
	doc, err := fitz.NewFromMemory(raw)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.IngestionParseFailed, "could not open PDF", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n == 0 {
		return nil, "", apperr.New(apperr.IngestionParseFailed, "PDF contains no pages")
	}

	firstPageText, _ := doc.Text(0)

	pages := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		img, err := doc.Image(i)
		if err != nil {
			return nil, "", apperr.Wrap(apperr.IngestionParseFailed, fmt.Sprintf("could not rasterize page %d", i), err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", apperr.Wrap(apperr.IngestionParseFailed, fmt.Sprintf("could not encode page %d to PNG", i), err)
		}
		pages = append(pages, buf.Bytes())
	}

	return pages, firstPageText, nil
}

// ExtractPage sends one page image to the vision model and recovers
// structured rows, re-prompting once on malformed JSON.
func ExtractPage(ctx context.Context, gateway *llm.Gateway, visionModel string, pageIndex int, image []byte) PageResult {
	prompt := "Extract every labelled financial line item from this page as JSON."

	var lastErr error
	for attempt := 0; attempt < maxRepromptAttempts; attempt++ {
		if attempt > 0 {
			prompt = "Your previous response was not valid JSON matching the required schema. Return ONLY the JSON object, no commentary, no markdown fences."
			log.Warn().Str("component", "vision.ExtractPage").Int("page", pageIndex).Msg("re-prompting after malformed JSON")
		}

		raw, err := gateway.VisionGenerate(ctx, prompt, extractionSystemPrompt, [][]byte{image}, llm.Options{Model: visionModel})
		if err != nil {
			lastErr = err
			continue
		}

		var extraction pageExtraction
		if _, err := jsonutil.SmartParse(raw, &extraction); err != nil {
			lastErr = apperr.Wrap(apperr.LLMBadResponse, "vision model returned unparsable JSON", err)
			continue
		}

		rows := make([]statement.Row, 0, len(extraction.Rows))
		for _, r := range extraction.Rows {
			if r.Label == "" {
				continue
			}
			rows = append(rows, statement.Row{Label: r.Label, Current: r.Current, Prior: r.Prior})
		}

		return PageResult{PageIndex: pageIndex, Rows: rows}
	}

	return PageResult{PageIndex: pageIndex, Err: lastErr}
}

// ExtractDocument renders and extracts every page, returning the
// combined rows from pages that succeeded and a count of pages that
// failed after a re-prompt (spec.md §4.7's partial-success semantics).
func ExtractDocument(ctx context.Context, gateway *llm.Gateway, visionModel string, raw []byte) ([]statement.Row, int, error) {
	pages, _, err := RenderPages(raw)
	if err != nil {
		return nil, 0, err
	}

	var allRows []statement.Row
	failed := 0
	for i, page := range pages {
		result := ExtractPage(ctx, gateway, visionModel, i, page)
		if result.Err != nil {
			failed++
			log.Warn().Str("component", "vision.ExtractDocument").Int("page", i).Err(result.Err).Msg("page extraction failed after re-prompt")
			continue
		}
		allRows = append(allRows, result.Rows...)
	}

	if len(allRows) == 0 {
		return nil, failed, apperr.New(apperr.IngestionParseFailed, "no page in the document yielded usable rows")
	}

	return allRows, failed, nil
}
