package cache

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// storedEnvelope is the warm tier wire format. Version 2 means the
// payload was gzipped before base64 encoding; version 1 or absent is a
// legacy uncompressed payload. Readers must keep accepting version 1
// indefinitely, writers always emit version 2.
type storedEnvelope struct {
	Data      string            `json:"data"`
	Headers   map[string]string `json:"headers"`
	Timestamp int64             `json:"timestamp"`
	Version   int               `json:"version,omitempty"`
}

const envelopeVersionGzip = 2

// encodeEnvelope serializes an entry into the warm tier wire format.
// It reports the raw and compressed payload sizes.
func encodeEnvelope(entry Entry) (data []byte, rawSize, gzSize int64, err error) {
	var buf bytes.Buffer

	zw := gzip.NewWriter(&buf)
	if _, err = zw.Write(entry.Payload); err != nil {
		return nil, 0, 0, fmt.Errorf("compress payload: %w", err)
	}
	if err = zw.Close(); err != nil {
		return nil, 0, 0, fmt.Errorf("compress payload: %w", err)
	}

	headers := entry.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	data, err = json.Marshal(storedEnvelope{
		Data:      base64.StdEncoding.EncodeToString(buf.Bytes()),
		Headers:   headers,
		Timestamp: entry.Timestamp.UnixMilli(),
		Version:   envelopeVersionGzip,
	})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("marshal envelope: %w", err)
	}

	return data, int64(len(entry.Payload)), int64(buf.Len()), nil
}

// decodeEnvelope parses the warm tier wire format back into an entry,
// handling both compressed and legacy uncompressed payloads.
func decodeEnvelope(data []byte) (Entry, error) {
	var envelope storedEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Entry{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	payload, err := base64.StdEncoding.DecodeString(envelope.Data)
	if err != nil {
		return Entry{}, fmt.Errorf("decode payload: %w", err)
	}

	if envelope.Version >= envelopeVersionGzip {
		zr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return Entry{}, fmt.Errorf("decompress payload: %w", err)
		}
		payload, err = io.ReadAll(zr)
		if err != nil {
			return Entry{}, fmt.Errorf("decompress payload: %w", err)
		}
		if err = zr.Close(); err != nil {
			return Entry{}, fmt.Errorf("decompress payload: %w", err)
		}
	}

	headers := envelope.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	return Entry{
		Payload:   payload,
		Headers:   headers,
		Timestamp: time.UnixMilli(envelope.Timestamp),
	}, nil
}
