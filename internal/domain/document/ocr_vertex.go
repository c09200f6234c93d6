package document

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/smart-finance-ingest/pkg/metrics"
)

const ocrSystemPrompt = "Você é um motor de OCR para documentos financeiros brasileiros."

const ocrUserPrompt = `Transcreva todo o texto visível desta página exatamente como aparece.
Mantenha uma linha do documento por linha de saída, preservando datas, valores e descrições.
Não resuma, não traduza e não adicione comentários. Responda apenas com o texto transcrito.`

// VertexOCR reads pages with a Gemini model on Vertex AI.
type VertexOCR struct {
	model   *genai.GenerativeModel
	client  *genai.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

func NewVertexOCR(ctx context.Context, projectID, region, modelName string, ratePerSec float64, m *metrics.Metrics) (*VertexOCR, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexOCR: projectID and region cannot be empty")
	}

	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(ocrSystemPrompt)}}
	model.GenerationConfig = genai.GenerationConfig{Temperature: genai.Ptr[float32](0)}

	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &VertexOCR{
		model:   model,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		metrics: m,
	}, nil
}

func (o *VertexOCR) Close() error {
	return o.client.Close()
}

func (o *VertexOCR) Recognize(ctx context.Context, page Page) (string, time.Duration, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", 0, err
	}

	start := time.Now()
	resp, err := o.model.GenerateContent(ctx,
		genai.Blob{MIMEType: page.MIMEType, Data: page.Data},
		genai.Text(ocrUserPrompt),
	)
	elapsed := time.Since(start)
	o.metrics.OCRPage(elapsed)
	if err != nil {
		return "", elapsed, fmt.Errorf("ocr page %d: %w", page.Number, err)
	}
	return responseText(resp), elapsed, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String())
}
