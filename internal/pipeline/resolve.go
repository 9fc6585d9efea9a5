// Package pipeline runs the resolver over JSON lines files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"newspeaker/internal/record"
	"newspeaker/internal/resolve"
)

const resolvedSuffix = "_resolved.jsonl"

// ErrInputMissing is returned when the input file does not exist.
var ErrInputMissing = errors.New("input file not found")

// Resolver resolves a batch of links in order.
type Resolver interface {
	ResolveBatch(ctx context.Context, links []string) ([]resolve.Result, error)
}

// OutputPath derives where the resolved copy of in is written.
//
//	""                 -> <dir of in>/<stem>_resolved.jsonl
//	existing directory -> <out>/<stem>_resolved.jsonl
//	no extension       -> <out>_resolved.jsonl
//	anything else      -> out
func OutputPath(in, out string) string {
	stem := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	if out == "" {
		return filepath.Join(filepath.Dir(in), stem+resolvedSuffix)
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, stem+resolvedSuffix)
	}
	if filepath.Ext(out) == "" {
		return out + resolvedSuffix
	}
	return out
}

// ResolveFile reads records from in, resolves each record's link and writes
// the records with resolved_url appended. It returns the output path.
func ResolveFile(ctx context.Context, r Resolver, in, out string, logger *zap.Logger) (string, error) {
	if _, err := os.Stat(in); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrInputMissing, in)
		}
		return "", err
	}
	recs, err := record.ReadFile(in)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", in, err)
	}

	if err := ResolveRecords(ctx, r, recs); err != nil {
		return "", err
	}

	path := OutputPath(in, out)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := record.WriteFile(path, recs); err != nil {
		return "", err
	}

	logger.Info("resolved file written",
		zap.String("input", in),
		zap.String("output", path),
		zap.Int("records", len(recs)))
	return path, nil
}

// ResolveRecords sets resolved_url on every record, null when unresolved.
func ResolveRecords(ctx context.Context, r Resolver, recs []*record.Record) error {
	links := make([]string, len(recs))
	for i, rec := range recs {
		links[i] = rec.String(record.FieldLink)
	}
	results, err := r.ResolveBatch(ctx, links)
	if err != nil {
		return err
	}
	for _, res := range results {
		recs[res.Index].SetNullableString(record.FieldResolvedURL, res.URL)
	}
	return nil
}
