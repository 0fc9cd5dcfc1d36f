package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AlexZinkM/local-keystore/internal/model"
)

// documentVersion is the version of the keystore document layout.
const documentVersion = 1

// ErrUnknownVersion is returned when the keystore was written by a newer build.
var ErrUnknownVersion = errors.New("unknown keystore version")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// document is the on-disk layout of a keystore file.
type document struct {
	Version int                   `json:"version"`
	Records *[]model.WalletRecord `json:"records"`
}

func encodeDocument(records []model.WalletRecord) ([]byte, error) {
	if records == nil {
		records = []model.WalletRecord{}
	}
	data, err := json.MarshalIndent(document{Version: documentVersion, Records: &records}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal keystore: %w", err)
	}
	return append(data, '\n'), nil
}

func decodeDocument(data []byte) ([]model.WalletRecord, error) {
	// Skip UTF-8 BOM if present
	data = bytes.TrimPrefix(data, utf8BOM)

	var doc document
	if err := decodeStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keystore: %w", err)
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, doc.Version)
	}
	if doc.Records == nil {
		return nil, errors.New("records is required")
	}
	if err := model.ValidateRecords(*doc.Records); err != nil {
		return nil, err
	}
	return *doc.Records, nil
}

func decodeRecord(data []byte) (model.WalletRecord, error) {
	var rec model.WalletRecord
	if err := decodeStrict(data, &rec); err != nil {
		return model.WalletRecord{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

// decodeStrict rejects unknown fields and trailing data.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after document")
	}
	return nil
}
