// Bootstraps the Milvus collection used by the milvus store backend. Run
// once against a fresh cluster; pass -dim to match the embedding provider.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"study-assistant-backend/config"
)

const (
	int64Type       = "Int64"
	floatVectorType = "FloatVector"
	varcharType     = "VarChar"
)

type CreateCollectionRequest struct {
	CollectionName string         `json:"collectionName"`
	Schema         *Schema        `json:"schema"`
	IndexParams    []*IndexParams `json:"indexParams"`
}

type Schema struct {
	AutoID             bool     `json:"autoId"`
	EnableDynamicField bool     `json:"enableDynamicField"`
	Fields             []*Field `json:"fields"`
}

type Field struct {
	FieldName         string            `json:"fieldName"`
	DataType          string            `json:"dataType"`
	ElementTypeParams map[string]string `json:"elementTypeParams"`
	IsPrimary         bool              `json:"isPrimary,omitempty"`
}

type IndexParams struct {
	MetricType string            `json:"metricType"`
	FieldName  string            `json:"fieldName"`
	IndexName  string            `json:"indexName"`
	Params     map[string]string `json:"params"`
}

func varcharField(name, maxLength string) *Field {
	return &Field{
		FieldName: name,
		DataType:  varcharType,
		ElementTypeParams: map[string]string{
			"max_length": maxLength,
		},
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	dim := flag.String("dim", "768", "embedding dimension of the collection")
	flag.Parse()

	if err := config.Load(*configPath); err != nil {
		slog.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := config.Cfg.RAG.Milvus.Endpoint + "/v2/vectordb/collections/create"

	fields := []*Field{
		{
			FieldName: "id",
			DataType:  varcharType,
			ElementTypeParams: map[string]string{
				"max_length": "128",
			},
			IsPrimary: true,
		},
		{
			FieldName: "vector",
			DataType:  floatVectorType,
			ElementTypeParams: map[string]string{
				"dim": *dim,
			},
		},
		varcharField("document_id", "64"),
		varcharField("subject_id", "64"),
		varcharField("user_id", "64"),
		varcharField("file_name", "512"),
		varcharField("file_ext", "16"),
		varcharField("source", "16"),
		varcharField("author", "255"),
		varcharField("tags", "2048"),
		{
			FieldName: "created_at",
			DataType:  int64Type,
		},
		varcharField("file_url", "1024"),
		{
			FieldName: "page",
			DataType:  int64Type,
		},
		{
			FieldName: "chunk_index",
			DataType:  int64Type,
		},
		varcharField("text", "65535"),
	}

	indexParams := []*IndexParams{
		{
			MetricType: "COSINE",
			FieldName:  "vector",
			IndexName:  "vector_index",
			Params: map[string]string{
				"indexType": "HNSW",
			},
		},
		{
			FieldName: "document_id",
			IndexName: "document_id_index",
			Params: map[string]string{
				"indexType": "INVERTED",
			},
		},
		{
			FieldName: "subject_id",
			IndexName: "subject_id_index",
			Params: map[string]string{
				"indexType": "INVERTED",
			},
		},
		{
			FieldName: "user_id",
			IndexName: "user_id_index",
			Params: map[string]string{
				"indexType": "INVERTED",
			},
		},
	}

	createCollectionRequest := &CreateCollectionRequest{
		CollectionName: config.Cfg.RAG.CollectionName,
		Schema: &Schema{
			EnableDynamicField: false,
			Fields:             fields,
		},
		IndexParams: indexParams,
	}

	payload, err := json.Marshal(createCollectionRequest)
	if err != nil {
		slog.Error("Failed to marshal request", "err", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		slog.Error("Failed to create request", "err", err)
		return
	}

	req.Header.Add("Authorization", "Bearer "+config.Cfg.RAG.Milvus.APIKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Error("Failed to send request", "err", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	slog.Info("create milvus collection response", "body", string(body))
}
