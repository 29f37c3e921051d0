package worker

import (
	"context"
	"fmt"
	"log/slog"

	"piggybank/internal/config"
	"piggybank/internal/export"
	gsheet "piggybank/internal/sheets/google"
)

// BuildSinks creates every export sink enabled in cfg.
func BuildSinks(ctx context.Context, cfg *config.Config) ([]export.Sink, error) {
	var sinks []export.Sink

	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, fmt.Errorf("google sheets sink: %w", err)
		}
		sinks = append(sinks, client)
		slog.InfoContext(ctx, "Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	if cfg.ElasticsearchURL != "" {
		es, err := export.NewElasticsearchV8(cfg.ElasticsearchIndex, cfg.ElasticsearchURL)
		if err != nil {
			return nil, fmt.Errorf("elasticsearch sink: %w", err)
		}
		sinks = append(sinks, es)
		slog.InfoContext(ctx, "Elasticsearch export enabled", "url", cfg.ElasticsearchURL)
	}

	if cfg.ExportDir != "" {
		sinks = append(sinks, export.NewJSONDir(cfg.ExportDir))
		slog.InfoContext(ctx, "JSON export enabled", "dir", cfg.ExportDir)
	}

	return sinks, nil
}
