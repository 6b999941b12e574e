package service

import (
	"context"

	"github.com/mbarkhau/stammtischbot/internal/model"
)

// tabStore is the slice of the spreadsheet client the services depend on.
type tabStore interface {
	Read(ctx context.Context, tab string) ([]model.Record, error)
	ReadRow(ctx context.Context, tab string, row int64) (model.Record, error)
	Append(ctx context.Context, tab string, recs []model.Record) error
	DeleteRow(ctx context.Context, tab string, row int64) error
	ColumnIndex(ctx context.Context, tab, field string) (int, error)
	UpdateCell(ctx context.Context, tab string, col int, row int64, value string) error
	Log(ctx context.Context, tab, line string)
}
