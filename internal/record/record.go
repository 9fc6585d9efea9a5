// Package record reads and writes the JSON lines files exchanged between
// the capture, resolve and summarize steps. Records keep unknown fields and
// their original order so every step only appends what it owns.
package record

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// Field names shared across the pipeline.
const (
	FieldTitle        = "title"
	FieldLink         = "link"
	FieldPublishedAt  = "published_at"
	FieldSourceFeed   = "source_feed"
	FieldQuery        = "query"
	FieldResolvedURL  = "resolved_url"
	FieldText         = "text"
	FieldSummary      = "summary"
	FieldSummaryModel = "summary_model"
	FieldScrapeError  = "scrape_error"
)

var json = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

var errNotObject = errors.New("record is not a JSON object")

// Record is a JSON object whose field order survives a read/write cycle.
type Record struct {
	keys   []string
	fields map[string][]byte
}

// New returns an empty record.
func New() *Record {
	return &Record{fields: make(map[string][]byte)}
}

// Keys returns field names in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Has reports whether the field is present, including explicit nulls.
func (r *Record) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// String returns the field as a string, or "" when absent, null or not a string.
func (r *Record) String(key string) string {
	raw, ok := r.fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Set stores value under key. New keys are appended; existing keys keep
// their position.
func (r *Record) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode field %s: %w", key, err)
	}
	r.setRaw(key, raw)
	return nil
}

// SetNullableString stores s, or JSON null when s is empty.
func (r *Record) SetNullableString(key, s string) {
	if s == "" {
		r.setRaw(key, []byte("null"))
		return
	}
	_ = r.Set(key, s)
}

func (r *Record) setRaw(key string, raw []byte) {
	if _, ok := r.fields[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = raw
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	out := &Record{keys: r.Keys(), fields: make(map[string][]byte, len(r.fields))}
	for k, v := range r.fields {
		out.fields[k] = append([]byte(nil), v...)
	}
	return out
}

// UnmarshalJSON decodes a JSON object preserving field order.
func (r *Record) UnmarshalJSON(data []byte) error {
	iter := jsoniter.ParseBytes(json, data)
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return errNotObject
	}
	r.keys = nil
	r.fields = make(map[string][]byte)
	iter.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
		r.setRaw(key, append([]byte(nil), it.SkipAndReturnBytes()...))
		return true
	})
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return fmt.Errorf("decode record: %w", iter.Error)
	}
	return nil
}

// MarshalJSON encodes the record with fields in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	stream := jsoniter.NewStream(json, nil, 256)
	stream.WriteObjectStart()
	for i, k := range r.keys {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(k)
		stream.WriteRaw(string(r.fields[k]))
	}
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

// Read decodes JSON lines from rd, skipping blank lines.
func Read(rd io.Reader) ([]*Record, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []*Record
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		rec := New()
		if err := rec.UnmarshalJSON(b); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan jsonl: %w", err)
	}
	return out, nil
}

// Write encodes records as JSON lines.
func Write(w io.Writer, records []*Record) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		b, err := rec.MarshalJSON()
		if err != nil {
			return err
		}
		if _, err := bw.Write(b); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadFile reads a JSON lines file.
func ReadFile(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// WriteFile writes records to path, replacing any existing file.
func WriteFile(path string, records []*Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, records); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
